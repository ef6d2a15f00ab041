// Package logbuf keeps a bounded in-memory history of log entries for the
// API's log endpoint, wired in as a logrus hook.
package logbuf

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry is one captured log record
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Hook captures the most recent log entries in a ring buffer
type Hook struct {
	mu      sync.Mutex
	max     int
	entries []Entry
}

// New creates a hook retaining at most max entries
func New(max int) *Hook {
	if max <= 0 {
		max = 100
	}
	return &Hook{max: max}
}

// Levels implements logrus.Hook
func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook
func (h *Hook) Fire(e *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, Entry{
		Timestamp: e.Time,
		Level:     e.Level.String(),
		Message:   e.Message,
	})
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	return nil
}

// Entries returns a copy of the captured entries, oldest first
func (h *Hook) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}
