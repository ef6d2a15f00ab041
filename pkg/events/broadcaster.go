// Package events fans out operation progress to any number of observers.
package events

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/portguard/pkg/models"
)

// Subscriber is one observer's handle on the event stream. Events arrive on
// the channel in publish order, starting from the moment of subscription.
type Subscriber struct {
	ch   chan models.ProgressEvent
	once sync.Once
}

// Events returns the channel events are delivered on. It is closed when the
// subscriber is removed.
func (s *Subscriber) Events() <-chan models.ProgressEvent {
	return s.ch
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Broadcaster pushes every published event to all current subscribers. An
// observer that cannot keep up is dropped rather than allowed to block the
// others; late subscribers only see events published after they joined.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	buffer int
	logger *logrus.Logger
}

// New creates a broadcaster with the given per-subscriber queue depth
func New(buffer int, logger *logrus.Logger) *Broadcaster {
	if logger == nil {
		logger = logrus.New()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new observer
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan models.ProgressEvent, b.buffer)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	total := len(b.subs)
	b.mu.Unlock()

	b.logger.Debugf("Observer subscribed. Total observers: %d", total)
	return sub
}

// Unsubscribe removes an observer and closes its event channel
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	if ok {
		delete(b.subs, sub)
	}
	total := len(b.subs)
	b.mu.Unlock()

	if ok {
		sub.close()
		b.logger.Debugf("Observer unsubscribed. Total observers: %d", total)
	}
}

// Publish delivers the event to every subscriber in publish order. A
// subscriber whose queue is full is removed so it cannot stall delivery to
// the rest.
func (b *Broadcaster) Publish(ev models.ProgressEvent) {
	b.mu.Lock()
	var dropped []*Subscriber
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		delete(b.subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range dropped {
		sub.close()
		b.logger.Warn("Dropped unresponsive observer")
	}
}

// Count returns the number of current subscribers
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
