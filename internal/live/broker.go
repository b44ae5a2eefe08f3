// Package live fans task-collection change signals out to subscribers.
//
// A signal carries no data: on receipt a subscriber re-reads the full list.
// Signals coalesce per subscriber, so a slow reader skips intermediate
// states but always catches up with the latest committed write.
package live

import (
	"context"
	"sync"
)

// Notifier is told that the task collection changed.
type Notifier interface {
	Notify(ctx context.Context)
}

type Broker struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan struct{}]struct{})}
}

// Subscribe registers a new observer. The returned cancel func unregisters it
// and is safe to call more than once.
func (b *Broker) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
		})
	}
}

func (b *Broker) Notify(context.Context) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// Subscribers returns the number of registered observers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
