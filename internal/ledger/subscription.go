package ledger

import (
	"context"
	"sync"

	"github.com/zfogg/listingboard/internal/metrics"
	"github.com/zfogg/listingboard/internal/models"
)

// Subscription is a live watch on one listing. Callbacks of one subscription
// never run concurrently and see versions in increasing order. Cancel must be
// called to release it.
type Subscription struct {
	label       string
	deliver     func(models.Snapshot)
	unsubscribe func()

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []models.Snapshot
	last       int64
	closed     bool
	delivering bool
	once       sync.Once
}

func newSubscription(label string, deliver func(models.Snapshot)) *Subscription {
	s := &Subscription{label: label, deliver: deliver}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// noopSubscription is handed to anonymous watchers
func noopSubscription() *Subscription {
	s := newSubscription("", nil)
	s.closed = true
	return s
}

// Cancel stops the subscription. Once it returns no callback is running and
// none will run again. Calling it more than once is harmless. It must not be
// called from inside the subscription's own callback.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		wasOpen := !s.closed
		s.closed = true
		s.queue = nil
		s.cond.Broadcast()
		for s.delivering {
			s.cond.Wait()
		}
		s.mu.Unlock()

		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		if wasOpen {
			metrics.TrackSubscription(s.label, -1)
		}
	})
}

// enqueue is the broker handler. It never blocks on the callback.
func (s *Subscription) enqueue(snap models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, snap)
	s.cond.Broadcast()
}

// start delivers the initial snapshot on the caller's goroutine and then hands
// later changes to a delivery goroutine.
func (s *Subscription) start(initial models.Snapshot) {
	s.mu.Lock()
	s.last = initial.Version
	s.delivering = true
	s.mu.Unlock()

	s.deliver(initial)

	s.mu.Lock()
	s.delivering = false
	s.cond.Broadcast()
	s.mu.Unlock()

	go s.run()
}

func (s *Subscription) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		snap := s.queue[0]
		s.queue = s.queue[1:]
		if snap.Version <= s.last {
			s.mu.Unlock()
			continue
		}
		s.last = snap.Version
		s.delivering = true
		s.mu.Unlock()

		s.deliver(snap)

		s.mu.Lock()
		s.delivering = false
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// WatchStatistics calls fn with the current statistics of ref and again after
// every committed change, until the subscription is cancelled.
func (l *Ledger) WatchStatistics(ctx context.Context, ref models.ListingRef, fn func(models.Statistics)) (*Subscription, error) {
	return l.watch(ctx, ref, "statistics", func(snap models.Snapshot) {
		fn(snap.Statistics)
	})
}

// WatchRecommended calls fn with whether actor recommends ref, once right away
// and again after every committed change to the listing's statistics. An
// anonymous actor gets fn(false) once and an inert subscription.
func (l *Ledger) WatchRecommended(ctx context.Context, ref models.ListingRef, actor string, fn func(bool)) (*Subscription, error) {
	return l.watchMembership(ctx, models.SignalRecommend, ref, actor, fn)
}

// WatchFavorited is WatchRecommended for favorites
func (l *Ledger) WatchFavorited(ctx context.Context, ref models.ListingRef, actor string, fn func(bool)) (*Subscription, error) {
	return l.watchMembership(ctx, models.SignalFavorite, ref, actor, fn)
}

func (l *Ledger) watchMembership(ctx context.Context, signal models.Signal, ref models.ListingRef, actor string, fn func(bool)) (*Subscription, error) {
	if actor == "" {
		fn(false)
		return noopSubscription(), nil
	}
	return l.watch(ctx, ref, string(signal), func(snap models.Snapshot) {
		fn(snap.Statistics.Has(signal, actor))
	})
}

// watch registers with the store before reading the current snapshot, so no
// change committed after the read can be missed. Queued changes at or below
// the initial version are dropped.
func (l *Ledger) watch(ctx context.Context, ref models.ListingRef, label string, deliver func(models.Snapshot)) (*Subscription, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	sub := newSubscription(label, func(snap models.Snapshot) {
		snap.Statistics.Normalize()
		deliver(snap)
	})
	sub.unsubscribe = l.store.Subscribe(ref, sub.enqueue)

	snap, err := l.Snapshot(ctx, ref)
	if err != nil {
		sub.mu.Lock()
		sub.closed = true
		sub.mu.Unlock()
		sub.unsubscribe()
		return nil, err
	}

	metrics.TrackSubscription(label, 1)
	sub.start(snap)
	return sub, nil
}
