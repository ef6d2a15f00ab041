package logbuf

import (
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookCapturesEntries(t *testing.T) {
	hook := New(10)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(hook)

	logger.Info("first")
	logger.Warn("second")

	entries := hook.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "second", entries[1].Message)
	assert.Equal(t, "warning", entries[1].Level)
}

func TestHookDropsOldestBeyondCapacity(t *testing.T) {
	hook := New(3)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(hook)

	for i := 1; i <= 5; i++ {
		logger.Infof("entry %d", i)
	}

	entries := hook.Entries()
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("entry %d", i+3), e.Message)
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	hook := New(5)
	require.NoError(t, hook.Fire(&logrus.Entry{Level: logrus.InfoLevel, Message: "kept"}))

	first := hook.Entries()
	first[0].Message = "mutated"

	assert.Equal(t, "kept", hook.Entries()[0].Message)
}
