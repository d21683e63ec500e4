package webhook

import (
	"context"
	"errors"

	"github.com/mattjoyce/hookbus/internal/events"
)

//go:generate mockgen -destination=mocks/mock_emitter.go -package=mocks github.com/mattjoyce/hookbus/internal/webhook Emitter

// Emitter is where validated deliveries and rejections are published.
// *events.Bus implements it.
type Emitter interface {
	Emit(ctx context.Context, key string, ev events.Event) error
	Fail(f events.Failure)
}

// SourceFunc extracts the source identifier an event is additionally
// emitted under. An empty result skips the source emission.
type SourceFunc func(payload map[string]any) string

// Config holds the settings of one webhook endpoint.
// Zero-valued fields are defaulted by New.
type Config struct {
	// Path is the URL path this handler intercepts (required).
	Path string `yaml:"path"`

	// Secret enables signature verification when non-empty.
	Secret string `yaml:"secret,omitempty"`

	DeliveryHeader  string `yaml:"delivery_header"`
	EventHeader     string `yaml:"event_header"`
	SignatureHeader string `yaml:"signature_header"`

	// SignData computes the expected signature (default SignSHA1).
	SignData SignFunc `yaml:"-"`

	// SourceKey picks the source emission key (default RepositoryName).
	SourceKey SourceFunc `yaml:"-"`

	// MaxBodySize caps the raw body read from the request (default 1 MB).
	MaxBodySize int64 `yaml:"max_body_size,omitempty"`
}

// SuccessResponse is the body of an accepted delivery.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the body of a rejected delivery.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	DefaultDeliveryHeader  = "X-GitHub-Delivery"
	DefaultEventHeader     = "X-GitHub-Event"
	DefaultSignatureHeader = "X-Hub-Signature"
	DefaultMaxBodySize     = 1048576 // 1 MB
)

// Rejection messages. They are sent verbatim to the client.
var (
	ErrNoDelivery     = errors.New("No id found in the request")
	ErrNoEvent        = errors.New("No event found in the request")
	ErrNoSignature    = errors.New("No signature found in the request")
	ErrNoBody         = errors.New("Make sure body-parser is used")
	ErrBadSignature   = errors.New("Failed to verify signature")
	ErrPayloadNotJSON = errors.New("payload is not a JSON object")
)

// RepositoryName returns payload.repository.name, or "" if absent.
func RepositoryName(payload map[string]any) string {
	repo, ok := payload["repository"].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := repo["name"].(string)
	return name
}

func (c Config) withDefaults() Config {
	if c.DeliveryHeader == "" {
		c.DeliveryHeader = DefaultDeliveryHeader
	}
	if c.EventHeader == "" {
		c.EventHeader = DefaultEventHeader
	}
	if c.SignatureHeader == "" {
		c.SignatureHeader = DefaultSignatureHeader
	}
	if c.SignData == nil {
		c.SignData = SignSHA1
	}
	if c.SourceKey == nil {
		c.SourceKey = RepositoryName
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	return c
}
