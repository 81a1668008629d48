package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zfogg/listingboard/internal/models"
)

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON implements custom marshaling (always output as RFC3339)
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Message types for WebSocket communication
const (
	// System messages
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"

	// Client requests
	MessageTypeWatch   = "watch"
	MessageTypeUnwatch = "unwatch"

	// Replies and live updates
	MessageTypeWatching   = "watching"
	MessageTypeUnwatched  = "unwatched"
	MessageTypeMembership = "membership"
	MessageTypeStatistics = "statistics"
)

// Watch targets. recommend and favorite report the caller's membership,
// statistics reports the full counts.
const (
	WatchRecommend  = "recommend"
	WatchFavorite   = "favorite"
	WatchStatistics = "statistics"
)

// Message represents a WebSocket message
type Message struct {
	// Type identifies the message type for routing
	Type string `json:"type"`

	// Payload contains the message-specific data
	Payload interface{} `json:"payload,omitempty"`

	// ID is a client-chosen identifier echoed in ReplyTo
	ID string `json:"id,omitempty"`

	// ReplyTo references the original message ID for responses
	ReplyTo string `json:"reply_to,omitempty"`

	// Timestamp when the message was created (accepts Unix ms or RFC3339)
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewMessageWithID creates a new message with a specific ID
func NewMessageWithID(msgType string, id string, payload interface{}) *Message {
	msg := NewMessage(msgType, payload)
	msg.ID = id
	return msg
}

// NewReply creates a reply message to an original message
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	msg := NewMessage(msgType, payload)
	msg.ReplyTo = original.ID
	return msg
}

// NewErrorMessage creates an error message
func NewErrorMessage(code string, message string) *Message {
	return NewMessage(MessageTypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}

// ErrorPayload represents an error message payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PingPayload represents a ping message payload
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

// PongPayload represents a pong message payload
type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// SystemPayload carries connection lifecycle events
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// WatchPayload asks for live updates of one listing
type WatchPayload struct {
	Listing models.ListingRef `json:"listing"`
	Signal  string            `json:"signal"`
}

// UnwatchPayload releases a subscription
type UnwatchPayload struct {
	SubscriptionID string `json:"subscription_id"`
}

// WatchingPayload acknowledges a watch request
type WatchingPayload struct {
	SubscriptionID string            `json:"subscription_id"`
	Listing        models.ListingRef `json:"listing"`
	Signal         string            `json:"signal"`
}

// MembershipPayload reports whether the caller recommends or favors a listing
type MembershipPayload struct {
	SubscriptionID string            `json:"subscription_id"`
	Listing        models.ListingRef `json:"listing"`
	Signal         string            `json:"signal"`
	Active         bool              `json:"active"`
}

// StatisticsPayload carries the current statistics of a watched listing
type StatisticsPayload struct {
	SubscriptionID string            `json:"subscription_id"`
	Listing        models.ListingRef `json:"listing"`
	Statistics     models.Statistics `json:"statistics"`
}

// ParsePayload unmarshals the payload into a specific type
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}

	// Re-marshal and unmarshal to properly type the payload
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
