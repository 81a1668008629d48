package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInitializeIsSingleton(t *testing.T) {
	assert.Same(t, Initialize(), Get())
}

func TestRecordLedgerOperation(t *testing.T) {
	m := Get()
	m.LedgerOperationsTotal.Reset()

	RecordLedgerOperation("toggle", "favorite", "added", 2*time.Millisecond)
	RecordLedgerOperation("toggle", "favorite", "added", 3*time.Millisecond)
	RecordLedgerOperation("toggle", "favorite", "removed", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LedgerOperationsTotal.WithLabelValues("toggle", "favorite", "added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerOperationsTotal.WithLabelValues("toggle", "favorite", "removed")))
}

func TestStatusLabels(t *testing.T) {
	m := Get()
	m.RedisOperationsTotal.Reset()
	m.BrokerMessagesTotal.Reset()

	RecordRedisOperation("watch", time.Millisecond, nil)
	RecordRedisOperation("watch", time.Millisecond, errors.New("down"))
	RecordBrokerMessage("redis", "publish", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisOperationsTotal.WithLabelValues("watch", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisOperationsTotal.WithLabelValues("watch", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerMessagesTotal.WithLabelValues("redis", "publish", "success")))
}

func TestGauges(t *testing.T) {
	m := Get()
	m.LedgerSubscriptions.Reset()
	m.WebSocketConnections.Reset()

	TrackSubscription("recommend", 1)
	TrackSubscription("recommend", 1)
	TrackSubscription("recommend", -1)
	TrackWebSocketConnection(true, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerSubscriptions.WithLabelValues("recommend")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebSocketConnections.WithLabelValues("true")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.WebSocketConnections.WithLabelValues("false")))
}
