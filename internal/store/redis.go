package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zfogg/listingboard/internal/broker"
	apperrors "github.com/zfogg/listingboard/internal/errors"
	"github.com/zfogg/listingboard/internal/metrics"
	"github.com/zfogg/listingboard/internal/models"
	"github.com/zfogg/listingboard/internal/telemetry"
)

// RedisKeyPrefix prefixes the hash holding one listing's statistics
const RedisKeyPrefix = "ledger:listing:"

const (
	fieldCreatedAt  = "created_at"
	fieldTitle      = "title"
	fieldStatistics = "statistics"
	fieldVersion    = "version"
)

// RedisStore keeps each listing in a hash and updates it with optimistic
// WATCH/MULTI/EXEC transactions, retrying when another writer got there first.
type RedisStore struct {
	client     *redis.Client
	broker     broker.Broker
	maxRetries int
	events     *telemetry.InteractionEvents
}

// NewRedisStore creates a store on client publishing changes to b
func NewRedisStore(client *redis.Client, b broker.Broker, maxRetries int) *RedisStore {
	if b == nil {
		b = broker.NewLocalBroker()
	}
	if maxRetries < 1 {
		maxRetries = 10
	}
	return &RedisStore{
		client:     client,
		broker:     b,
		maxRetries: maxRetries,
		events:     telemetry.GetInteractionEvents(),
	}
}

func (s *RedisStore) Name() string { return "redis" }

func redisKey(ref models.ListingRef) string {
	return RedisKeyPrefix + ref.Key()
}

// CreateListing creates the listing hash if it does not exist. Every field is
// written in one transaction, so an Update never sees a half-created listing.
func (s *RedisStore) CreateListing(ctx context.Context, listing *models.Listing) error {
	ref := listing.Ref()
	if err := ref.Validate(); err != nil {
		return err
	}

	stats := listing.Statistics.Data()
	stats.Normalize()
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode statistics: %w", err)
	}

	key := redisKey(ref)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		start := time.Now()
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			exists, err := tx.Exists(ctx, key).Result()
			if err != nil || exists > 0 {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key,
					fieldCreatedAt, time.Now().UTC().Format(time.RFC3339Nano),
					fieldTitle, listing.Title,
					fieldStatistics, raw,
					fieldVersion, listing.StatisticsVersion,
				)
				return nil
			})
			return err
		}, key)
		metrics.RecordRedisOperation("watch_create", time.Since(start), err)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			metrics.RecordConflictRetry(s.Name())
			continue
		default:
			return apperrors.Transient("create listing", err)
		}
	}
	return ErrConflict
}

// DeleteListing removes the listing hash
func (s *RedisStore) DeleteListing(ctx context.Context, ref models.ListingRef) error {
	n, err := s.client.Del(ctx, redisKey(ref)).Result()
	if err != nil {
		return apperrors.Transient("delete listing", err)
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// decodeHash turns the HMGET reply for created_at, statistics, version into a snapshot
func decodeHash(ref models.ListingRef, vals []interface{}) (models.Snapshot, error) {
	if len(vals) != 3 || vals[0] == nil {
		return models.Snapshot{}, apperrors.ErrNotFound
	}

	var stats models.Statistics
	if raw, ok := vals[1].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &stats); err != nil {
			return models.Snapshot{}, fmt.Errorf("decode statistics of %s: %w", ref, err)
		}
	}
	stats.Normalize()

	var version int64
	if raw, ok := vals[2].(string); ok && raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("decode version of %s: %w", ref, err)
		}
		version = v
	}

	return models.Snapshot{Ref: ref, Statistics: stats, Version: version}, nil
}

// hashReader is satisfied by both *redis.Client and *redis.Tx
type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

func (s *RedisStore) read(ctx context.Context, c hashReader, ref models.ListingRef) (models.Snapshot, error) {
	start := time.Now()
	vals, err := c.HMGet(ctx, redisKey(ref), fieldCreatedAt, fieldStatistics, fieldVersion).Result()
	metrics.RecordRedisOperation("hmget", time.Since(start), err)
	if err != nil {
		return models.Snapshot{}, err
	}
	return decodeHash(ref, vals)
}

// Get returns the committed snapshot of ref
func (s *RedisStore) Get(ctx context.Context, ref models.ListingRef) (models.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return models.Snapshot{}, err
	}

	ctx, span := s.events.TraceStoreCall(ctx, s.Name(), "get")
	defer span.End()

	snap, err := s.read(ctx, s.client, ref)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		telemetry.RecordResult(span, "failed", err)
		return models.Snapshot{}, apperrors.Transient("get statistics", err)
	}
	return snap, err
}

// Update applies fn with WATCH/MULTI/EXEC, retrying up to maxRetries times on conflict
func (s *RedisStore) Update(ctx context.Context, ref models.ListingRef, fn MutateFunc) (models.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return models.Snapshot{}, err
	}

	ctx, span := s.events.TraceStoreCall(ctx, s.Name(), "update")
	defer span.End()

	key := redisKey(ref)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var (
			snap    models.Snapshot
			changed bool
		)

		start := time.Now()
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := s.read(ctx, tx, ref)
			if err != nil {
				return err
			}

			next, ok, err := apply(current.Statistics, fn)
			if err != nil {
				return &mutationError{err: err}
			}
			if !ok {
				snap = current
				return nil
			}

			raw, err := json.Marshal(next)
			if err != nil {
				return &mutationError{err: fmt.Errorf("encode statistics: %w", err)}
			}

			version := current.Version + 1
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, fieldStatistics, raw, fieldVersion, version)
				return nil
			})
			if err != nil {
				return err
			}

			snap = models.Snapshot{Ref: ref, Statistics: next, Version: version}
			changed = true
			return nil
		}, key)
		metrics.RecordRedisOperation("watch_update", time.Since(start), err)

		var mutErr *mutationError
		switch {
		case err == nil:
			if changed {
				publish(ctx, s.broker, snap)
			}
			return snap, nil
		case errors.Is(err, redis.TxFailedErr):
			metrics.RecordConflictRetry(s.Name())
			continue
		case errors.Is(err, apperrors.ErrNotFound):
			return models.Snapshot{}, err
		case errors.As(err, &mutErr):
			return models.Snapshot{}, mutErr.err
		default:
			telemetry.RecordResult(span, "failed", err)
			return models.Snapshot{}, apperrors.Transient("update statistics", err)
		}
	}

	telemetry.RecordResult(span, "conflict", ErrConflict)
	return models.Snapshot{}, ErrConflict
}

// Subscribe registers fn for committed changes of ref
func (s *RedisStore) Subscribe(ref models.ListingRef, fn broker.Handler) func() {
	return s.broker.Subscribe(ref, fn)
}
