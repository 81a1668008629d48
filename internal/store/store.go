// Package store persists listing statistics and applies atomic
// read-modify-write updates to them.
package store

import (
	"context"
	"errors"

	"github.com/zfogg/listingboard/internal/broker"
	apperrors "github.com/zfogg/listingboard/internal/errors"
	"github.com/zfogg/listingboard/internal/models"
)

// ErrNoChange is returned by a MutateFunc to commit nothing. Update then
// succeeds with the current snapshot and publishes no change.
var ErrNoChange = errors.New("no change")

// ErrConflict reports that a concurrent writer won every attempt. It is transient.
var ErrConflict = apperrors.Transient("update statistics", errors.New("concurrent update conflict"))

// mutationError carries a MutateFunc failure out of a transaction unchanged
type mutationError struct {
	err error
}

func (e *mutationError) Error() string { return e.err.Error() }
func (e *mutationError) Unwrap() error { return e.err }

// MutateFunc transforms the statistics of one listing. It receives a private,
// normalized copy and may be called more than once when a backend retries
// after a concurrent write, so it must not have side effects beyond its
// argument and the caller's own result variables.
type MutateFunc func(stats *models.Statistics) error

// Store is the storage contract the ledger is written against.
type Store interface {
	// Get returns the committed snapshot of ref, or apperrors.ErrNotFound.
	Get(ctx context.Context, ref models.ListingRef) (models.Snapshot, error)
	// Update applies fn atomically with respect to every other Update of ref.
	// Either the whole change commits or none of it does.
	Update(ctx context.Context, ref models.ListingRef, fn MutateFunc) (models.Snapshot, error)
	// Subscribe calls fn with every snapshot committed after registration.
	// Snapshots may arrive out of order; Version orders them.
	Subscribe(ref models.ListingRef, fn broker.Handler) (cancel func())
}

// Catalog manages the listing records themselves. Listings are owned by the
// listings service; the catalog exists for seeding, tests and the CLI.
type Catalog interface {
	CreateListing(ctx context.Context, listing *models.Listing) error
	DeleteListing(ctx context.Context, ref models.ListingRef) error
}

// Backend is a Store that also manages listings
type Backend interface {
	Store
	Catalog
	Name() string
}

// apply runs fn on a normalized copy of current. It reports whether a new
// version must be committed.
func apply(current models.Statistics, fn MutateFunc) (models.Statistics, bool, error) {
	next := current.Clone()
	next.Normalize()
	if err := fn(&next); err != nil {
		if errors.Is(err, ErrNoChange) {
			return current, false, nil
		}
		return current, false, err
	}
	next.Normalize()
	return next, true, nil
}

// publish announces a committed snapshot. The write already committed, so a
// failed publish is not an update failure; watchers catch up on the next change.
func publish(ctx context.Context, b broker.Broker, snap models.Snapshot) {
	if b == nil {
		return
	}
	_ = b.Publish(context.WithoutCancel(ctx), snap)
}
