package config

import "time"

// Config represents the complete hookbus configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Webhook WebhookConfig `yaml:"webhook"`
	Stream  StreamConfig  `yaml:"stream"`
}

// ServiceConfig defines process-level settings.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Tracing         bool          `yaml:"tracing"` // export request spans to stdout
}

// WebhookConfig defines the intercepted endpoint and how deliveries to it
// are authenticated.
type WebhookConfig struct {
	Path            string `yaml:"path"`
	Secret          string `yaml:"secret"`
	DeliveryHeader  string `yaml:"delivery_header"`
	EventHeader     string `yaml:"event_header"`
	SignatureHeader string `yaml:"signature_header"`
	Algorithm       string `yaml:"algorithm"`     // sha1, sha256 or blake3
	MaxBodySize     string `yaml:"max_body_size"` // e.g. "1MB", "1048576"
	QueueSize       int    `yaml:"queue_size"`
}

// StreamConfig controls the server-sent events endpoint. The stream carries
// full payloads, so enabling it requires at least one token.
type StreamConfig struct {
	Enabled bool          `yaml:"enabled"`
	Buffer  int           `yaml:"buffer"`
	Tokens  []TokenConfig `yaml:"tokens"`
}

// TokenConfig is a bearer token accepted by GET /events.
type TokenConfig struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"` // events:ro, events:rw or *
}

// Defaults returns a Config with every optional field filled in.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "hookbus",
			LogLevel:        "info",
			LogFormat:       "json",
			Listen:          "127.0.0.1:8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Webhook: WebhookConfig{
			Path:            "/webhook",
			DeliveryHeader:  "X-GitHub-Delivery",
			EventHeader:     "X-GitHub-Event",
			SignatureHeader: "X-Hub-Signature",
			Algorithm:       "sha1",
			MaxBodySize:     "1MB",
			QueueSize:       256,
		},
		Stream: StreamConfig{
			Enabled: false,
			Buffer:  100,
		},
	}
}
