package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/listingboard/internal/auth"
	"github.com/zfogg/listingboard/internal/broker"
	"github.com/zfogg/listingboard/internal/ledger"
	"github.com/zfogg/listingboard/internal/logger"
	"github.com/zfogg/listingboard/internal/models"
	"github.com/zfogg/listingboard/internal/store"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "-")
	os.Exit(m.Run())
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.metrics)
	assert.NotNil(t, hub.handlers)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(MessageTypeStatistics, StatisticsPayload{SubscriptionID: "s1"})

	assert.Equal(t, MessageTypeStatistics, msg.Type)
	assert.NotNil(t, msg.Payload)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestNewReply(t *testing.T) {
	original := NewMessageWithID(MessageTypePing, "original-id", nil)
	reply := NewReply(original, MessageTypePong, nil)

	assert.Equal(t, MessageTypePong, reply.Type)
	assert.Equal(t, "original-id", reply.ReplyTo)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("test_error", "Something went wrong")

	assert.Equal(t, MessageTypeError, msg.Type)
	payload, ok := msg.Payload.(ErrorPayload)
	assert.True(t, ok)
	assert.Equal(t, "test_error", payload.Code)
	assert.Equal(t, "Something went wrong", payload.Message)
}

func TestMessageParsePayload(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "watch",
		"timestamp": 1700000000000,
		"payload": {"listing": {"kind": "job", "owner_id": "o1", "listing_id": "l1"}, "signal": "favorite"}
	}`), &msg))

	var watch WatchPayload
	require.NoError(t, msg.ParsePayload(&watch))
	assert.Equal(t, models.KindJob, watch.Listing.Kind)
	assert.Equal(t, "o1", watch.Listing.OwnerID)
	assert.Equal(t, "l1", watch.Listing.ListingID)
	assert.Equal(t, WatchFavorite, watch.Signal)
	assert.Equal(t, int64(1700000000000), msg.Timestamp.UnixMilli())
}

func TestFlexibleTimeAcceptsRFC3339(t *testing.T) {
	var ft FlexibleTime
	require.NoError(t, json.Unmarshal([]byte(`"2026-01-02T03:04:05Z"`), &ft))
	assert.Equal(t, 2026, ft.Year())
	assert.Error(t, json.Unmarshal([]byte(`true`), &ft))
}

func TestHubMetrics(t *testing.T) {
	hub := NewHub()

	m := hub.GetMetrics()
	assert.Equal(t, int64(0), m.TotalConnections)
	assert.Equal(t, int64(0), m.ActiveConnections)
	assert.Contains(t, m.String(), "connections=0/0")
}

func TestDefaultRateLimitConfig(t *testing.T) {
	config := DefaultRateLimitConfig()

	assert.Equal(t, 10, config.MaxMessagesPerSecond)
	assert.Equal(t, 20, config.BurstSize)
	assert.Equal(t, 64, config.MaxSubscriptions)
}

func TestHubRegisterHandler(t *testing.T) {
	hub := NewHub()
	hub.RegisterHandler("test_type", func(client *Client, msg *Message) error {
		return nil
	})

	handler, ok := hub.GetHandler("test_type")
	assert.True(t, ok)
	assert.NotNil(t, handler)

	_, ok = hub.GetHandler("nonexistent")
	assert.False(t, ok)
}

// testEnv is a running websocket endpoint backed by an in-memory ledger
type testEnv struct {
	hub    *Hub
	ledger *ledger.Ledger
	broker *broker.LocalBroker
	ref    models.ListingRef
	url    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	b := broker.NewLocalBroker()
	mem := store.NewMemoryStore(b)
	ref := models.ListingRef{Kind: models.KindJob, OwnerID: "cafe", ListingID: "barista"}
	require.NoError(t, mem.CreateListing(context.Background(), &models.Listing{
		Kind: ref.Kind, OwnerID: ref.OwnerID, ListingID: ref.ListingID,
	}))
	l := ledger.New(mem)

	hub := NewHub()
	go hub.Run()

	tokens := auth.NewMockAuthService(map[string]string{"token-ana": "ana"})
	handler := NewHandler(hub, l, tokens, nil)
	handler.RegisterDefaultHandlers()

	mux := http.NewServeMux()
	mux.Handle("GET /ws", handler)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		srv.Close()
	})

	return &testEnv{
		hub:    hub,
		ledger: l,
		broker: b,
		ref:    ref,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

// envelope is a received message with its payload left raw
type envelope struct {
	Type    string          `json:"type"`
	ReplyTo string          `json:"reply_to"`
	Payload json.RawMessage `json:"payload"`
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := e.url
	if token != "" {
		url += "?token=" + token
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	hello := read(t, conn)
	require.Equal(t, MessageTypeSystem, hello.Type)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var env envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	return env
}

func write(t *testing.T, conn *websocket.Conn, msg *Message) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

func watchMessage(id string, ref models.ListingRef, signal string) *Message {
	return NewMessageWithID(MessageTypeWatch, id, WatchPayload{Listing: ref, Signal: signal})
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

func TestWatchFavoriteFollowsLedger(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "token-ana")
	ctx := context.Background()

	write(t, conn, watchMessage("w1", env.ref, WatchFavorite))

	ack := read(t, conn)
	require.Equal(t, MessageTypeWatching, ack.Type)
	assert.Equal(t, "w1", ack.ReplyTo)
	watching := decode[WatchingPayload](t, ack)
	assert.Equal(t, env.ref, watching.Listing)

	initial := decode[MembershipPayload](t, read(t, conn))
	assert.Equal(t, watching.SubscriptionID, initial.SubscriptionID)
	assert.Equal(t, WatchFavorite, initial.Signal)
	assert.False(t, initial.Active)

	_, err := env.ledger.ToggleFavorite(ctx, env.ref, "ana")
	require.NoError(t, err)
	update := read(t, conn)
	require.Equal(t, MessageTypeMembership, update.Type)
	assert.True(t, decode[MembershipPayload](t, update).Active)

	// Changes by other actors are delivered too
	_, err = env.ledger.ToggleFavorite(ctx, env.ref, "bo")
	require.NoError(t, err)
	assert.True(t, decode[MembershipPayload](t, read(t, conn)).Active)

	write(t, conn, NewMessageWithID(MessageTypeUnwatch, "u1", UnwatchPayload{SubscriptionID: watching.SubscriptionID}))
	unwatched := read(t, conn)
	assert.Equal(t, MessageTypeUnwatched, unwatched.Type)
	assert.Equal(t, "u1", unwatched.ReplyTo)
	assert.Equal(t, 0, env.broker.SubscriberCount(env.ref))
}

func TestWatchStatistics(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "")

	write(t, conn, watchMessage("s1", env.ref, WatchStatistics))
	require.Equal(t, MessageTypeWatching, read(t, conn).Type)

	initial := decode[StatisticsPayload](t, read(t, conn))
	assert.Equal(t, 0, initial.Statistics.Recommend.Count)

	_, err := env.ledger.ToggleRecommend(context.Background(), env.ref, "ana")
	require.NoError(t, err)

	update := read(t, conn)
	require.Equal(t, MessageTypeStatistics, update.Type)
	stats := decode[StatisticsPayload](t, update).Statistics
	assert.Equal(t, models.Tally{Count: 1, Users: []string{"ana"}}, stats.Recommend)
}

func TestAnonymousMembershipWatchIsFalseAndInert(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "")

	write(t, conn, watchMessage("w1", env.ref, WatchRecommend))
	require.Equal(t, MessageTypeWatching, read(t, conn).Type)
	assert.False(t, decode[MembershipPayload](t, read(t, conn)).Active)
	assert.Equal(t, 0, env.broker.SubscriberCount(env.ref))
}

func TestDisconnectReleasesSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "token-ana")

	write(t, conn, watchMessage("a", env.ref, WatchStatistics))
	read(t, conn)
	read(t, conn)
	write(t, conn, watchMessage("b", env.ref, WatchFavorite))
	read(t, conn)
	read(t, conn)
	require.Equal(t, 2, env.broker.SubscriberCount(env.ref))

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	assert.Eventually(t, func() bool {
		return env.broker.SubscriberCount(env.ref) == 0 && env.hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchErrors(t *testing.T) {
	env := newTestEnv(t)
	env.hub.SetRateLimitConfig(RateLimitConfig{MaxMessagesPerSecond: 100, BurstSize: 100, MaxSubscriptions: 1})
	conn := env.dial(t, "token-ana")

	badKind := models.ListingRef{Kind: "venue", OwnerID: "cafe", ListingID: "barista"}
	missing := models.ListingRef{Kind: models.KindPartner, OwnerID: "cafe", ListingID: "barista"}

	tests := []struct {
		name string
		msg  *Message
		code string
	}{
		{"unknown kind", watchMessage("e1", badKind, WatchFavorite), "INVALID_LISTING"},
		{"missing listing", watchMessage("e2", missing, WatchFavorite), "NOT_FOUND"},
		{"click is not watchable", watchMessage("e3", env.ref, "click"), "invalid_signal"},
		{"unknown subscription", NewMessageWithID(MessageTypeUnwatch, "e4", UnwatchPayload{SubscriptionID: "nope"}), "unknown_subscription"},
		{"unknown type", NewMessageWithID("shout", "e5", nil), "unknown_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			write(t, conn, tt.msg)
			reply := read(t, conn)
			require.Equal(t, MessageTypeError, reply.Type)
			assert.Equal(t, tt.code, decode[ErrorPayload](t, reply).Code)
		})
	}

	write(t, conn, watchMessage("ok", env.ref, WatchStatistics))
	require.Equal(t, MessageTypeWatching, read(t, conn).Type)
	read(t, conn)

	write(t, conn, watchMessage("over", env.ref, WatchFavorite))
	reply := read(t, conn)
	require.Equal(t, MessageTypeError, reply.Type)
	assert.Equal(t, "too_many_subscriptions", decode[ErrorPayload](t, reply).Code)
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "")

	write(t, conn, NewMessageWithID(MessageTypePing, "p1", PingPayload{ClientTime: time.Now().UnixMilli()}))
	pong := read(t, conn)
	assert.Equal(t, MessageTypePong, pong.Type)
	assert.Equal(t, "p1", pong.ReplyTo)
	assert.Positive(t, decode[PongPayload](t, pong).ServerTime)
}

func TestInvalidTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, env.url+"?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
