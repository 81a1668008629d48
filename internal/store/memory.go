package store

import (
	"context"
	"sync"

	"github.com/zfogg/listingboard/internal/broker"
	apperrors "github.com/zfogg/listingboard/internal/errors"
	"github.com/zfogg/listingboard/internal/models"
)

type memoryEntry struct {
	mu      sync.Mutex
	listing models.Listing
	stats   models.Statistics
	version int64
	deleted bool
}

// MemoryStore keeps statistics in process memory. Every listing has its own
// lock, so updates to different listings never contend.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[string]*memoryEntry
	broker   broker.Broker
}

// NewMemoryStore creates an empty store publishing changes to b
func NewMemoryStore(b broker.Broker) *MemoryStore {
	if b == nil {
		b = broker.NewLocalBroker()
	}
	return &MemoryStore{
		listings: make(map[string]*memoryEntry),
		broker:   b,
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) entry(ref models.ListingRef) (*memoryEntry, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	e, ok := s.listings[ref.Key()]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return e, nil
}

// CreateListing registers a listing with zero statistics unless it already
// carries some. Creating an existing listing is a no-op.
func (s *MemoryStore) CreateListing(_ context.Context, listing *models.Listing) error {
	ref := listing.Ref()
	if err := ref.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.listings[ref.Key()]; ok && !e.deleted {
		return nil
	}

	stats := listing.Statistics.Data()
	stats.Normalize()
	s.listings[ref.Key()] = &memoryEntry{listing: *listing, stats: stats, version: listing.StatisticsVersion}
	return nil
}

// DeleteListing removes a listing; later reads and updates report ErrNotFound
func (s *MemoryStore) DeleteListing(_ context.Context, ref models.ListingRef) error {
	s.mu.Lock()
	e, ok := s.listings[ref.Key()]
	delete(s.listings, ref.Key())
	s.mu.Unlock()
	if !ok {
		return apperrors.ErrNotFound
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

// Get returns the committed snapshot of ref
func (s *MemoryStore) Get(ctx context.Context, ref models.ListingRef) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, apperrors.Transient("get statistics", err)
	}
	e, err := s.entry(ref)
	if err != nil {
		return models.Snapshot{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return models.Snapshot{}, apperrors.ErrNotFound
	}
	return models.Snapshot{Ref: ref, Statistics: e.stats.Clone(), Version: e.version}, nil
}

// Update applies fn under the listing's lock
func (s *MemoryStore) Update(ctx context.Context, ref models.ListingRef, fn MutateFunc) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, apperrors.Transient("update statistics", err)
	}
	e, err := s.entry(ref)
	if err != nil {
		return models.Snapshot{}, err
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return models.Snapshot{}, apperrors.ErrNotFound
	}
	next, changed, err := apply(e.stats, fn)
	if err != nil {
		e.mu.Unlock()
		return models.Snapshot{}, err
	}
	if !changed {
		snap := models.Snapshot{Ref: ref, Statistics: e.stats.Clone(), Version: e.version}
		e.mu.Unlock()
		return snap, nil
	}
	e.stats = next
	e.version++
	snap := models.Snapshot{Ref: ref, Statistics: next.Clone(), Version: e.version}
	e.mu.Unlock()

	publish(ctx, s.broker, snap)
	return snap, nil
}

// Subscribe registers fn for committed changes of ref
func (s *MemoryStore) Subscribe(ref models.ListingRef, fn broker.Handler) func() {
	return s.broker.Subscribe(ref, fn)
}
