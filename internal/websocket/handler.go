package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zfogg/listingboard/internal/auth"
	apperrors "github.com/zfogg/listingboard/internal/errors"
	"github.com/zfogg/listingboard/internal/ledger"
	"github.com/zfogg/listingboard/internal/logger"
	"github.com/zfogg/listingboard/internal/models"
	"github.com/zfogg/listingboard/internal/util"
	"go.uber.org/zap"
)

var (
	errTooManySubscriptions = errors.New("too many subscriptions on this connection")
	errUnknownSubscription  = errors.New("unknown subscription")
	errUnknownSignal        = errors.New("signal must be recommend, favorite or statistics")
)

// Handler handles WebSocket HTTP upgrade requests and watch messages
type Handler struct {
	hub            *Hub
	ledger         *ledger.Ledger
	tokens         auth.TokenValidator
	originPatterns []string
}

// NewHandler creates a new WebSocket handler. originPatterns restricts the
// browser origins allowed to connect; empty allows only same-origin requests.
func NewHandler(hub *Hub, l *ledger.Ledger, tokens auth.TokenValidator, originPatterns []string) *Handler {
	return &Handler{
		hub:            hub,
		ledger:         l,
		tokens:         tokens,
		originPatterns: originPatterns,
	}
}

// ServeHTTP handles WebSocket upgrade requests. It is mounted on a plain
// net/http mux in front of gin: gin's response writer refuses to be hijacked
// once the 101 status has been flushed.
// A token is optional: ?token=... or Authorization: Bearer <token>.
// Anonymous connections may watch statistics; their membership watches
// always report false.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if tokenString := auth.BearerToken(r); tokenString != "" {
		claims, err := h.tokens.ValidateToken(tokenString)
		if err != nil {
			logger.Log.Debug("WebSocket auth failed", zap.Error(err))
			util.WriteAPIError(w, r, apperrors.Unauthorized(err.Error()))
			return
		}
		userID = claims.UserID
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, userID)
	client.RemoteAddr = remoteIP(r)
	client.UserAgent = r.UserAgent()

	h.hub.Register(client)

	_ = client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event:   "connected",
		Message: "Watching listing interactions",
		Data: map[string]interface{}{
			"user_id":       userID,
			"authenticated": userID != "",
			"server_time":   time.Now().UTC().UnixMilli(),
		},
	}))

	go client.WritePump()
	client.ReadPump() // This blocks until client disconnects
}

// remoteIP prefers the first X-Forwarded-For hop set by a proxy
func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// HandleMetrics returns WebSocket metrics (for monitoring)
func (h *Handler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket":     h.hub.GetMetrics(),
		"clients":       h.hub.ClientCount(),
		"subscriptions": h.hub.SubscriptionCount(),
		"timestamp":     time.Now().UTC(),
	})
}

// RegisterDefaultHandlers registers the watch and unwatch message handlers
func (h *Handler) RegisterDefaultHandlers() {
	h.hub.RegisterHandler(MessageTypeWatch, h.handleWatch)
	h.hub.RegisterHandler(MessageTypeUnwatch, h.handleUnwatch)
}

func (h *Handler) handleWatch(client *Client, msg *Message) error {
	var req WatchPayload
	if err := msg.ParsePayload(&req); err != nil {
		return apperrors.BadRequest("invalid watch payload")
	}
	ref, err := models.NewListingRef(string(req.Listing.Kind), req.Listing.OwnerID, req.Listing.ListingID)
	if err != nil {
		return err
	}
	if err := client.reserveSubscription(); err != nil {
		return err
	}

	id := uuid.New().String()
	out := newOrderedSender(client)
	var sub *ledger.Subscription

	switch req.Signal {
	case WatchStatistics:
		sub, err = h.ledger.WatchStatistics(client.ctx, ref, func(stats models.Statistics) {
			out.send(NewMessage(MessageTypeStatistics, StatisticsPayload{
				SubscriptionID: id,
				Listing:        ref,
				Statistics:     stats,
			}))
		})
	case WatchRecommend, WatchFavorite:
		signal := req.Signal
		onChange := func(active bool) {
			out.send(NewMessage(MessageTypeMembership, MembershipPayload{
				SubscriptionID: id,
				Listing:        ref,
				Signal:         signal,
				Active:         active,
			}))
		}
		if signal == WatchRecommend {
			sub, err = h.ledger.WatchRecommended(client.ctx, ref, client.UserID, onChange)
		} else {
			sub, err = h.ledger.WatchFavorited(client.ctx, ref, client.UserID, onChange)
		}
	default:
		return errUnknownSignal
	}
	if err != nil {
		return err
	}

	if err := client.addSubscription(id, sub); err != nil {
		sub.Cancel()
		return err
	}

	// The acknowledgement goes out before the initial state captured during Watch
	_ = client.Send(NewReply(msg, MessageTypeWatching, WatchingPayload{
		SubscriptionID: id,
		Listing:        ref,
		Signal:         req.Signal,
	}))
	out.release()
	return nil
}

func (h *Handler) handleUnwatch(client *Client, msg *Message) error {
	var req UnwatchPayload
	if err := msg.ParsePayload(&req); err != nil {
		return apperrors.BadRequest("invalid unwatch payload")
	}
	if !client.removeSubscription(req.SubscriptionID) {
		return errUnknownSubscription
	}
	return client.Send(NewReply(msg, MessageTypeUnwatched, req))
}

// Shutdown gracefully shuts down the WebSocket handler
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.hub.Shutdown(ctx)
}

// GetHub returns the hub for external access
func (h *Handler) GetHub() *Hub {
	return h.hub
}

// orderedSender holds a subscription's messages until the watch has been
// acknowledged, then passes them straight through in order.
type orderedSender struct {
	client   *Client
	mu       sync.Mutex
	pending  []*Message
	released bool
}

func newOrderedSender(client *Client) *orderedSender {
	return &orderedSender{client: client}
}

func (o *orderedSender) send(msg *Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.released {
		o.pending = append(o.pending, msg)
		return
	}
	_ = o.client.Send(msg)
}

func (o *orderedSender) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, msg := range o.pending {
		_ = o.client.Send(msg)
	}
	o.pending = nil
	o.released = true
}

// errorCode maps a handler failure to the code sent to the client
func errorCode(err error) string {
	switch {
	case errors.Is(err, errTooManySubscriptions):
		return "too_many_subscriptions"
	case errors.Is(err, errUnknownSubscription):
		return "unknown_subscription"
	case errors.Is(err, errUnknownSignal):
		return "invalid_signal"
	case errors.Is(err, errClientClosed):
		return "closed"
	}
	return string(apperrors.FromDomain(err).Code)
}
