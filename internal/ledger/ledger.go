// Package ledger records recommend, favorite and click interactions on
// listings and lets callers watch them change.
//
// Actors are passed explicitly. The empty actor id means the caller is not
// signed in: toggles are rejected, clicks are ignored and membership checks
// report false.
package ledger

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/zfogg/listingboard/internal/errors"
	"github.com/zfogg/listingboard/internal/logger"
	"github.com/zfogg/listingboard/internal/metrics"
	"github.com/zfogg/listingboard/internal/models"
	"github.com/zfogg/listingboard/internal/store"
	"github.com/zfogg/listingboard/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultToggleTimeout bounds a toggle shared by coalesced callers
const DefaultToggleTimeout = 10 * time.Second

// Ledger applies interactions through a store. It is safe for concurrent use.
type Ledger struct {
	store         store.Store
	now           func() time.Time
	toggleTimeout time.Duration
	events        *telemetry.InteractionEvents
	inflight      singleflight.Group
}

// Toggled is the outcome of a toggle: whether the actor holds the signal
// afterwards and the snapshot the toggle committed.
type Toggled struct {
	Active   bool
	Snapshot models.Snapshot
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock sets the clock used to date clicks
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithToggleTimeout bounds the store transaction of a toggle. Coalesced
// callers share that transaction, so it is not tied to any one caller's context.
func WithToggleTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.toggleTimeout = d
		}
	}
}

// New creates a ledger on s
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:         s,
		now:           time.Now,
		toggleTimeout: DefaultToggleTimeout,
		events:        telemetry.GetInteractionEvents(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ToggleRecommend flips actor's recommendation of ref and returns whether the
// listing is recommended by actor afterwards.
func (l *Ledger) ToggleRecommend(ctx context.Context, ref models.ListingRef, actor string) (bool, error) {
	res, err := l.Toggle(ctx, models.SignalRecommend, ref, actor)
	return res.Active, err
}

// ToggleFavorite flips actor's favorite of ref and returns whether the listing
// is a favorite of actor afterwards.
func (l *Ledger) ToggleFavorite(ctx context.Context, ref models.ListingRef, actor string) (bool, error) {
	res, err := l.Toggle(ctx, models.SignalFavorite, ref, actor)
	return res.Active, err
}

// Toggle runs one atomic flip of a recommend or favorite signal. Concurrent
// identical toggles (same signal, listing and actor) share a single
// transaction and all callers get its result, so a double submit flips once.
// The shared transaction keeps running if the caller that started it goes
// away; it is bounded by the toggle timeout instead.
func (l *Ledger) Toggle(ctx context.Context, signal models.Signal, ref models.ListingRef, actor string) (Toggled, error) {
	start := time.Now()
	ctx, span := l.events.Start(ctx, "toggle", telemetry.InteractionAttrs{
		ListingKey: ref.Key(),
		Signal:     string(signal),
		ActorID:    actor,
	})
	defer span.End()

	if actor == "" {
		l.observe(span, "toggle", signal, start, apperrors.ErrUnauthenticated)
		return Toggled{}, apperrors.ErrUnauthenticated
	}
	if err := ref.Validate(); err != nil {
		l.observe(span, "toggle", signal, start, err)
		return Toggled{}, err
	}

	key := string(signal) + "|" + ref.Key() + "|" + actor
	v, err, shared := l.inflight.Do(key, func() (interface{}, error) {
		txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.toggleTimeout)
		defer cancel()

		var res Toggled
		snap, err := l.store.Update(txCtx, ref, func(stats *models.Statistics) error {
			var err error
			res.Active, err = stats.Toggle(signal, actor)
			return err
		})
		res.Snapshot = snap
		return res, err
	})
	if shared {
		metrics.RecordCoalescedToggle(string(signal))
	}

	l.observe(span, "toggle", signal, start, err)
	if err != nil {
		return Toggled{}, err
	}
	return v.(Toggled), nil
}

// RecordClick records actor's first click on ref. Later clicks by the same
// actor and clicks by anonymous visitors change nothing. It reports whether a
// click was added.
func (l *Ledger) RecordClick(ctx context.Context, ref models.ListingRef, actor string) (bool, error) {
	start := time.Now()
	ctx, span := l.events.Start(ctx, "click", telemetry.InteractionAttrs{
		ListingKey: ref.Key(),
		Signal:     string(models.SignalClick),
		ActorID:    actor,
	})
	defer span.End()

	if actor == "" {
		telemetry.RecordResult(span, "anonymous", nil)
		metrics.RecordLedgerOperation("click", string(models.SignalClick), "anonymous", time.Since(start))
		return false, nil
	}
	if err := ref.Validate(); err != nil {
		l.observe(span, "click", models.SignalClick, start, err)
		return false, err
	}

	var recorded bool
	_, err := l.store.Update(ctx, ref, func(stats *models.Statistics) error {
		recorded = stats.Click.Record(actor, l.now())
		if !recorded {
			return store.ErrNoChange
		}
		return nil
	})
	if err == nil && !recorded {
		telemetry.RecordResult(span, "duplicate", nil)
		metrics.RecordLedgerOperation("click", string(models.SignalClick), "duplicate", time.Since(start))
		return false, nil
	}
	l.observe(span, "click", models.SignalClick, start, err)
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetStatistics returns the statistics of ref with zero-state defaults applied
func (l *Ledger) GetStatistics(ctx context.Context, ref models.ListingRef) (models.Statistics, error) {
	snap, err := l.Snapshot(ctx, ref)
	if err != nil {
		return models.Statistics{}, err
	}
	return snap.Statistics, nil
}

// Snapshot returns the statistics of ref together with their version
func (l *Ledger) Snapshot(ctx context.Context, ref models.ListingRef) (models.Snapshot, error) {
	start := time.Now()
	ctx, span := l.events.Start(ctx, "get", telemetry.InteractionAttrs{ListingKey: ref.Key()})
	defer span.End()

	if err := ref.Validate(); err != nil {
		l.observe(span, "get", "", start, err)
		return models.Snapshot{}, err
	}
	snap, err := l.store.Get(ctx, ref)
	l.observe(span, "get", "", start, err)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap.Statistics.Normalize()
	return snap, nil
}

// CheckRecommended reports whether actor recommends ref
func (l *Ledger) CheckRecommended(ctx context.Context, ref models.ListingRef, actor string) (bool, error) {
	return l.check(ctx, models.SignalRecommend, ref, actor)
}

// CheckFavorited reports whether ref is a favorite of actor
func (l *Ledger) CheckFavorited(ctx context.Context, ref models.ListingRef, actor string) (bool, error) {
	return l.check(ctx, models.SignalFavorite, ref, actor)
}

func (l *Ledger) check(ctx context.Context, signal models.Signal, ref models.ListingRef, actor string) (bool, error) {
	if actor == "" {
		return false, nil
	}
	stats, err := l.GetStatistics(ctx, ref)
	if err != nil {
		return false, err
	}
	return stats.Has(signal, actor), nil
}

// observe finishes a span and records the operation metric
func (l *Ledger) observe(span trace.Span, operation string, signal models.Signal, start time.Time, err error) {
	result := resultOf(err)
	telemetry.RecordResult(span, result, err)
	metrics.RecordLedgerOperation(operation, string(signal), result, time.Since(start))
	if result == "failed" || result == "error" {
		logger.Warn("Ledger operation failed",
			zap.String("operation", operation),
			logger.WithSignal(string(signal)),
			zap.Error(err),
		)
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrInvalidListing):
		return "invalid"
	case errors.Is(err, apperrors.ErrTransient):
		return "failed"
	default:
		return "error"
	}
}
