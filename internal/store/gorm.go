package store

import (
	"context"
	"errors"

	"github.com/zfogg/listingboard/internal/broker"
	apperrors "github.com/zfogg/listingboard/internal/errors"
	"github.com/zfogg/listingboard/internal/models"
	"github.com/zfogg/listingboard/internal/telemetry"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps statistics in the listings table. Updates run in a
// transaction holding a row lock (SELECT ... FOR UPDATE) on the listing.
type GormStore struct {
	db     *gorm.DB
	broker broker.Broker
	events *telemetry.InteractionEvents
}

// NewGormStore creates a store on db publishing changes to b
func NewGormStore(db *gorm.DB, b broker.Broker) *GormStore {
	if b == nil {
		b = broker.NewLocalBroker()
	}
	return &GormStore{db: db, broker: b, events: telemetry.GetInteractionEvents()}
}

func (s *GormStore) Name() string { return "postgres" }

// SetBroker replaces the broker. The postgres broker needs the store to reload
// rows, so it is attached after both exist.
func (s *GormStore) SetBroker(b broker.Broker) {
	s.broker = b
}

func whereRef(db *gorm.DB, ref models.ListingRef) *gorm.DB {
	return db.Where("kind = ? AND owner_id = ? AND listing_id = ?", ref.Kind, ref.OwnerID, ref.ListingID)
}

// CreateListing inserts the listing row; an existing row for the same ref is left untouched
func (s *GormStore) CreateListing(ctx context.Context, listing *models.Listing) error {
	if err := listing.Ref().Validate(); err != nil {
		return err
	}
	db := s.db.WithContext(ctx)
	// A soft-deleted row still holds the unique ref
	purge := whereRef(db.Unscoped(), listing.Ref()).Where("deleted_at IS NOT NULL").Delete(&models.Listing{})
	if purge.Error != nil {
		return apperrors.Transient("create listing", purge.Error)
	}
	err := db.
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "kind"}, {Name: "owner_id"}, {Name: "listing_id"}}, DoNothing: true}).
		Create(listing).Error
	return apperrors.Transient("create listing", err)
}

// DeleteListing soft-deletes the listing row
func (s *GormStore) DeleteListing(ctx context.Context, ref models.ListingRef) error {
	result := whereRef(s.db.WithContext(ctx), ref).Delete(&models.Listing{})
	if result.Error != nil {
		return apperrors.Transient("delete listing", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Get returns the committed snapshot of ref
func (s *GormStore) Get(ctx context.Context, ref models.ListingRef) (models.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return models.Snapshot{}, err
	}

	ctx, span := s.events.TraceStoreCall(ctx, s.Name(), "get")
	defer span.End()

	var listing models.Listing
	err := whereRef(s.db.WithContext(ctx), ref).
		Select("id", "kind", "owner_id", "listing_id", "statistics", "statistics_version").
		Take(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Snapshot{}, apperrors.ErrNotFound
		}
		telemetry.RecordResult(span, "failed", err)
		return models.Snapshot{}, apperrors.Transient("get statistics", err)
	}
	return listing.Snapshot(), nil
}

// Update applies fn inside a transaction holding the listing's row lock
func (s *GormStore) Update(ctx context.Context, ref models.ListingRef, fn MutateFunc) (models.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return models.Snapshot{}, err
	}

	ctx, span := s.events.TraceStoreCall(ctx, s.Name(), "update")
	defer span.End()

	var (
		snap    models.Snapshot
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing models.Listing
		err := whereRef(tx.Clauses(clause.Locking{Strength: "UPDATE"}), ref).
			Select("id", "kind", "owner_id", "listing_id", "statistics", "statistics_version").
			Take(&listing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}

		current := listing.Snapshot()
		next, ok, err := apply(current.Statistics, fn)
		if err != nil {
			return &mutationError{err: err}
		}
		if !ok {
			snap = current
			return nil
		}

		version := current.Version + 1
		result := tx.Model(&models.Listing{}).
			Where("id = ? AND statistics_version = ?", listing.ID, current.Version).
			Updates(map[string]interface{}{
				"statistics":         datatypes.NewJSONType(next),
				"statistics_version": version,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}

		snap = models.Snapshot{Ref: ref, Statistics: next, Version: version}
		changed = true
		return nil
	})
	if err != nil {
		var mutErr *mutationError
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			return models.Snapshot{}, err
		case errors.As(err, &mutErr):
			return models.Snapshot{}, mutErr.err
		}
		telemetry.RecordResult(span, "failed", err)
		return models.Snapshot{}, apperrors.Transient("update statistics", err)
	}

	if changed {
		publish(ctx, s.broker, snap)
	}
	return snap, nil
}

// Subscribe registers fn for committed changes of ref
func (s *GormStore) Subscribe(ref models.ListingRef, fn broker.Handler) func() {
	return s.broker.Subscribe(ref, fn)
}

// Load reads a snapshot for the postgres broker
func (s *GormStore) Load(ctx context.Context, ref models.ListingRef) (models.Snapshot, error) {
	return s.Get(ctx, ref)
}
