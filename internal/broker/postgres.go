package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	apperrors "github.com/zfogg/listingboard/internal/errors"
	"github.com/zfogg/listingboard/internal/logger"
	"github.com/zfogg/listingboard/internal/metrics"
	"github.com/zfogg/listingboard/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PostgresChannel is the LISTEN/NOTIFY channel carrying ledger changes
const PostgresChannel = "ledger_changes"

// notification is the NOTIFY payload. Statistics are not carried because
// NOTIFY payloads are capped at 8000 bytes; receivers reload the row.
type notification struct {
	Key     string `json:"key"`
	Version int64  `json:"version"`
}

// SnapshotLoader reads the committed snapshot of a listing
type SnapshotLoader func(ctx context.Context, ref models.ListingRef) (models.Snapshot, error)

// PostgresBroker announces changes with pg_notify and listens with a lib/pq
// listener so every instance sharing the database sees every change.
type PostgresBroker struct {
	db       *gorm.DB
	listener *pq.Listener
	load     SnapshotLoader
	local    *LocalBroker

	done      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

// NewPostgresBroker starts listening on PostgresChannel using its own connection to dsn.
// db issues the NOTIFYs and load re-reads a listing when a notification arrives.
func NewPostgresBroker(dsn string, db *gorm.DB, load SnapshotLoader) (*PostgresBroker, error) {
	listener := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Log.Warn("Postgres listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(PostgresChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", PostgresChannel, err)
	}

	b := &PostgresBroker{
		db:       db,
		listener: listener,
		load:     load,
		local:    NewLocalBroker(),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	go b.run()
	return b, nil
}

// Publish issues pg_notify for snap
func (b *PostgresBroker) Publish(ctx context.Context, snap models.Snapshot) error {
	payload, err := encodeNotification(snap)
	if err != nil {
		return err
	}
	err = b.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", PostgresChannel, payload).Error
	metrics.RecordBrokerMessage("postgres", "publish", err)
	if err != nil {
		return fmt.Errorf("notify %s: %w", snap.Ref, err)
	}
	return nil
}

// Subscribe registers fn for changes of ref on any instance
func (b *PostgresBroker) Subscribe(ref models.ListingRef, fn Handler) func() {
	return b.local.Subscribe(ref, fn)
}

func (b *PostgresBroker) run() {
	defer close(b.done)

	for {
		select {
		case <-b.stop:
			return
		case n, ok := <-b.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected; notifications sent while disconnected are lost.
				// Watchers resync on the next change they receive.
				logger.Log.Info("Postgres listener reconnected")
				continue
			}
			b.handle(n.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := b.listener.Ping(); err != nil {
					logger.Log.Warn("Postgres listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (b *PostgresBroker) handle(payload string) {
	ref, version, err := decodeNotification(payload)
	if err != nil {
		metrics.RecordBrokerMessage("postgres", "receive", err)
		logger.Log.Warn("Dropping malformed ledger notification", zap.String("payload", payload), zap.Error(err))
		return
	}

	// Skip the reload when nobody here watches the listing
	if b.local.SubscriberCount(ref) == 0 {
		metrics.RecordBrokerMessage("postgres", "receive", nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := b.load(ctx, ref)
	metrics.RecordBrokerMessage("postgres", "receive", err)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			logger.Log.Warn("Failed to reload listing after notification",
				logger.WithListing(ref.Key()), zap.Int64("version", version), zap.Error(err))
		}
		return
	}
	b.local.Dispatch(snap)
}

func encodeNotification(snap models.Snapshot) (string, error) {
	raw, err := json.Marshal(notification{Key: snap.Ref.Key(), Version: snap.Version})
	if err != nil {
		return "", fmt.Errorf("encode notification: %w", err)
	}
	return string(raw), nil
}

func decodeNotification(payload string) (models.ListingRef, int64, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return models.ListingRef{}, 0, err
	}
	ref, err := models.ParseListingKey(n.Key)
	return ref, n.Version, err
}

// Close stops listening
func (b *PostgresBroker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stop)
		err = b.listener.Close()
		<-b.done
		_ = b.local.Close()
	})
	return err
}
