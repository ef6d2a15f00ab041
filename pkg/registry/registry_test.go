package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ExclusiveAccount/portguard/pkg/models"
)

func TestCreateAssignsFreshIdentifiers(t *testing.T) {
	r := New(nil)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		op := r.Create(models.KindScan)
		require.NotEmpty(t, op.ID)
		assert.False(t, seen[op.ID], "identifier reissued: %s", op.ID)
		seen[op.ID] = true
	}

	assert.Equal(t, 100, r.Len())
}

func TestCreateAppliesOptions(t *testing.T) {
	r := New(nil)

	op := r.Create(models.KindAction, func(op *models.Operation) {
		op.Port = 21
		op.Service = "FTP"
		op.Action = models.ActionClose
	})

	assert.Equal(t, models.StatusPending, op.Status)
	assert.Equal(t, 0, op.Progress)
	assert.Equal(t, 21, op.Port)
	assert.Equal(t, "FTP", op.Service)
}

func TestGetUnknownOperation(t *testing.T) {
	r := New(nil)

	_, err := r.Get("no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Apply("no-such-id", Update{Status: models.StatusRunning})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyProgressNeverRegresses(t *testing.T) {
	r := New(nil)
	op := r.Create(models.KindScan)

	updated, err := r.Apply(op.ID, Update{Status: models.StatusRunning, Progress: 75})
	require.NoError(t, err)
	assert.Equal(t, 75, updated.Progress)

	updated, err = r.Apply(op.ID, Update{Status: models.StatusRunning, Progress: 25, Message: "late update"})
	require.NoError(t, err)
	assert.Equal(t, 75, updated.Progress)
	assert.Equal(t, "late update", updated.Message)

	updated, err = r.Apply(op.ID, Update{Status: models.StatusCompleted, Progress: 100})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Progress)
	assert.True(t, updated.Status.Terminal())
}

func TestApplyRecordsSuccessAndResult(t *testing.T) {
	r := New(nil)
	op := r.Create(models.KindAction)

	ok := true
	result := &models.RemediationOutcome{Port: 23, Success: true}
	updated, err := r.Apply(op.ID, Update{
		Status:   models.StatusCompleted,
		Progress: 100,
		Success:  &ok,
		Result:   result,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Success)
	assert.True(t, *updated.Success)
	assert.Equal(t, result, updated.Result)
}

func TestGetReturnsCopies(t *testing.T) {
	r := New(nil)
	op := r.Create(models.KindScan)

	first, err := r.Get(op.ID)
	require.NoError(t, err)
	first.Progress = 999
	first.Message = "mutated"

	second, err := r.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Progress)
	assert.Empty(t, second.Message)
}

func TestDelete(t *testing.T) {
	r := New(nil)
	op := r.Create(models.KindScan)

	assert.True(t, r.Delete(op.ID))
	assert.False(t, r.Delete(op.ID))

	_, err := r.Get(op.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentDisjointWriters(t *testing.T) {
	r := New(nil)

	const writers = 16
	ids := make([]string, writers)
	for i := range ids {
		ids[i] = r.Create(models.KindAction).ID
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			for p := 1; p <= 100; p++ {
				_, err := r.Apply(id, Update{
					Status:   models.StatusRunning,
					Progress: p,
					Message:  fmt.Sprintf("writer %d at %d", i, p),
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}(i, id)
	}
	wg.Wait()

	for _, id := range ids {
		op, err := r.Get(id)
		require.NoError(t, err)
		assert.Equal(t, 100, op.Progress)
	}
	assert.Equal(t, writers, r.Len())
}
