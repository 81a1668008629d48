// Package broker fans committed listing snapshots out to subscribers, within
// one process or across server instances.
package broker

import (
	"context"
	"sync"

	"github.com/zfogg/listingboard/internal/metrics"
	"github.com/zfogg/listingboard/internal/models"
)

// Handler receives committed snapshots of one listing
type Handler func(models.Snapshot)

// Broker publishes committed snapshots and delivers them to subscribers of the same listing.
type Broker interface {
	// Publish announces a committed snapshot. It is called after the write committed.
	Publish(ctx context.Context, snap models.Snapshot) error
	// Subscribe registers fn for changes of ref. The returned func unsubscribes and is idempotent.
	Subscribe(ref models.ListingRef, fn Handler) (unsubscribe func())
	Close() error
}

// LocalBroker fans snapshots out to in-process subscribers. Handlers run on the
// publisher's goroutine, outside the broker lock.
type LocalBroker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
	closed bool
}

// NewLocalBroker creates an in-process broker
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[uint64]Handler)}
}

// Publish delivers snap to every current subscriber of its listing
func (b *LocalBroker) Publish(_ context.Context, snap models.Snapshot) error {
	b.Dispatch(snap)
	metrics.RecordBrokerMessage("local", "publish", nil)
	return nil
}

// Dispatch delivers snap to local subscribers without counting it as a publish
func (b *LocalBroker) Dispatch(snap models.Snapshot) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	set := b.subs[snap.Ref.Key()]
	handlers := make([]Handler, 0, len(set))
	for _, fn := range set {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(snap)
	}
}

// Subscribe registers fn for ref
func (b *LocalBroker) Subscribe(ref models.ListingRef, fn Handler) func() {
	key := ref.Key()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.nextID++
	id := b.nextID
	if b.subs[key] == nil {
		b.subs[key] = make(map[uint64]Handler)
	}
	b.subs[key][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[key]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(b.subs, key)
				}
			}
		})
	}
}

// SubscriberCount reports how many handlers are registered for ref
func (b *LocalBroker) SubscriberCount(ref models.ListingRef) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[ref.Key()])
}

// Close drops every subscriber; later publishes are ignored
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[uint64]Handler)
	return nil
}
