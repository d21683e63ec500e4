// Package events holds the listener registry that validated webhook
// deliveries are emitted on, plus a small replay hub for streaming them out.
package events

import (
	"net/http"
	"time"
)

// Reserved bus keys.
const (
	// Wildcard receives every validated event regardless of type.
	Wildcard = "*"
	// KeyError names the rejection channel; see Bus.OnError.
	KeyError = "error"
)

// Event is a delivery that passed every check.
type Event struct {
	ID         string         `json:"id"`
	Delivery   string         `json:"delivery"`
	Type       string         `json:"type"`
	Source     string         `json:"source,omitempty"`
	Payload    map[string]any `json:"payload"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Failure describes a rejected delivery. Request and Response are the live
// objects of the request being rejected and are only valid during the call.
type Failure struct {
	Err      error
	Request  *http.Request
	Response http.ResponseWriter
}
