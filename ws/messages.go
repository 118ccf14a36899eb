// Package ws provides the WebSocket boundary for gateway clients.
package ws

import (
	"time"
)

// Request is the envelope for every inbound client message. Fields
// beyond Type are interpreted per message type; unknown fields are
// ignored.
type Request struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`

	Platform   string `json:"platform,omitempty"`
	Symbol     string `json:"symbol,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Depth      int    `json:"depth,omitempty"`
	IntervalMs int    `json:"intervalMs,omitempty"`

	Side      string  `json:"side,omitempty"`
	OrderType string  `json:"orderType,omitempty"`
	Quantity  float64 `json:"quantity,omitempty"`
	Price     float64 `json:"price,omitempty"`
	OrderID   string  `json:"orderId,omitempty"`

	APIKey    string `json:"apiKey,omitempty"`
	APISecret string `json:"apiSecret,omitempty"`

	Enabled *bool `json:"enabled,omitempty"`
}

// Response answers one request. Success is false for every rejected or
// failed request, with Message and Code describing why.
type Response struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Code      string      `json:"code,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// StreamEvent carries one streamed payload or stream error to a
// subscribed client.
type StreamEvent struct {
	Type      string      `json:"type"`
	Platform  string      `json:"platform"`
	Symbol    string      `json:"symbol"`
	Channel   string      `json:"channel"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func now() int64 {
	return time.Now().UnixMilli()
}
