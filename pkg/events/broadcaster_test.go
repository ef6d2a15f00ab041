package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ExclusiveAccount/portguard/pkg/models"
)

func event(n int) models.ProgressEvent {
	return models.ProgressEvent{
		Type:        models.EventScanUpdate,
		OperationID: "op-1",
		Progress:    n,
		Message:     fmt.Sprintf("event %d", n),
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := New(16, nil)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 1; i <= 5; i++ {
		b.Publish(event(i))
	}

	for i := 1; i <= 5; i++ {
		ev := <-sub.Events()
		assert.Equal(t, i, ev.Progress)
	}
}

func TestLateSubscriberSeesOnlyNewEvents(t *testing.T) {
	b := New(16, nil)

	early := b.Subscribe()
	defer b.Unsubscribe(early)

	b.Publish(event(1))
	b.Publish(event(2))

	late := b.Subscribe()
	defer b.Unsubscribe(late)

	b.Publish(event(3))

	ev := <-late.Events()
	assert.Equal(t, 3, ev.Progress)
	assert.Empty(t, late.Events())
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := New(1, nil)

	slow := b.Subscribe()
	healthy := b.Subscribe()
	defer b.Unsubscribe(healthy)

	// The slow observer never drains; its single-slot queue overflows on the
	// second publish. The healthy observer keeps up.
	b.Publish(event(1))
	ev := <-healthy.Events()
	assert.Equal(t, 1, ev.Progress)

	b.Publish(event(2))
	ev = <-healthy.Events()
	assert.Equal(t, 2, ev.Progress)

	assert.Equal(t, 1, b.Count())

	// Channel of the dropped observer is closed after its buffered event.
	ev, ok := <-slow.Events()
	require.True(t, ok)
	assert.Equal(t, 1, ev.Progress)
	_, ok = <-slow.Events()
	assert.False(t, ok)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(4, nil)
	sub := b.Subscribe()

	assert.Equal(t, 1, b.Count())
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.Count())

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Unsubscribing twice is harmless.
	b.Unsubscribe(sub)
}

func TestPublishWithNoSubscribers(t *testing.T) {
	b := New(4, nil)
	b.Publish(event(1))
	assert.Equal(t, 0, b.Count())
}
