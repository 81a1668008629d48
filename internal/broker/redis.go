package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zfogg/listingboard/internal/logger"
	"github.com/zfogg/listingboard/internal/metrics"
	"github.com/zfogg/listingboard/internal/models"
	"go.uber.org/zap"
)

// RedisChannelPrefix prefixes the pub/sub channel of every listing
const RedisChannelPrefix = "ledger:changes:"

// RedisBroker publishes snapshots over Redis Pub/Sub so watchers on every
// server instance see changes committed by any of them. Messages published by
// this instance come back through the pattern subscription and are dispatched
// locally from there, so there is a single delivery path.
type RedisBroker struct {
	client *redis.Client
	pubsub *redis.PubSub
	local  *LocalBroker

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewRedisBroker subscribes to every listing channel and starts the receive loop
func NewRedisBroker(ctx context.Context, client *redis.Client) (*RedisBroker, error) {
	pubsub := client.PSubscribe(ctx, RedisChannelPrefix+"*")

	// Wait for the subscription confirmation so no publish is missed after return
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s*: %w", RedisChannelPrefix, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b := &RedisBroker{
		client: client,
		pubsub: pubsub,
		local:  NewLocalBroker(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.run(loopCtx)
	return b, nil
}

// Publish sends snap to every subscribed instance, this one included
func (b *RedisBroker) Publish(ctx context.Context, snap models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	start := time.Now()
	err = b.client.Publish(ctx, RedisChannelPrefix+snap.Ref.Key(), payload).Err()
	metrics.RecordRedisOperation("publish", time.Since(start), err)
	metrics.RecordBrokerMessage("redis", "publish", err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", snap.Ref, err)
	}
	return nil
}

// Subscribe registers fn for changes of ref on any instance
func (b *RedisBroker) Subscribe(ref models.ListingRef, fn Handler) func() {
	return b.local.Subscribe(ref, fn)
}

func (b *RedisBroker) run(ctx context.Context) {
	defer close(b.done)

	ch := b.pubsub.Channel(redis.WithChannelHealthCheckInterval(30 * time.Second))
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			snap, err := decodeRedisMessage(msg)
			metrics.RecordBrokerMessage("redis", "receive", err)
			if err != nil {
				logger.Log.Warn("Dropping malformed ledger change", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			b.local.Dispatch(snap)
		}
	}
}

func decodeRedisMessage(msg *redis.Message) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
		return snap, err
	}
	key := strings.TrimPrefix(msg.Channel, RedisChannelPrefix)
	if snap.Ref.Key() != key {
		return snap, fmt.Errorf("payload listing %s does not match channel %s", snap.Ref.Key(), key)
	}
	snap.Statistics.Normalize()
	return snap, nil
}

// Close stops the receive loop and releases the subscription
func (b *RedisBroker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.cancel()
		err = b.pubsub.Close()
		<-b.done
		_ = b.local.Close()
	})
	return err
}
