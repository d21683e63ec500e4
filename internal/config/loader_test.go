package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty file uses defaults",
			yaml: ``,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Webhook.Path != "/webhook" {
					t.Errorf("webhook.path = %q, want /webhook", cfg.Webhook.Path)
				}
				if cfg.Webhook.DeliveryHeader != "X-GitHub-Delivery" {
					t.Errorf("delivery_header = %q", cfg.Webhook.DeliveryHeader)
				}
				if cfg.Webhook.Algorithm != "sha1" {
					t.Errorf("algorithm = %q, want sha1", cfg.Webhook.Algorithm)
				}
				if cfg.Stream.Enabled {
					t.Error("stream should be disabled by default")
				}
				if cfg.Service.ReadTimeout != 10*time.Second {
					t.Errorf("read_timeout = %v", cfg.Service.ReadTimeout)
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  name: hooks
  log_level: DEBUG
  log_format: text
  listen: 0.0.0.0:9000
  read_timeout: 30s
webhook:
  path: /github
  secret: s3cret
  signature_header: X-Hub-Signature-256
  algorithm: sha256
  max_body_size: 2MB
  queue_size: 16
stream:
  enabled: false
  buffer: 10
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.LogLevel != "debug" {
					t.Errorf("log_level = %q, want lower-cased debug", cfg.Service.LogLevel)
				}
				if cfg.Service.ReadTimeout != 30*time.Second {
					t.Errorf("read_timeout = %v", cfg.Service.ReadTimeout)
				}
				if cfg.Webhook.Path != "/github" || cfg.Webhook.Secret != "s3cret" {
					t.Errorf("webhook = %+v", cfg.Webhook)
				}
				if cfg.Webhook.EventHeader != "X-GitHub-Event" {
					t.Errorf("event_header default lost: %q", cfg.Webhook.EventHeader)
				}
				if cfg.Stream.Enabled {
					t.Error("stream.enabled not parsed")
				}
			},
		},
		{
			name: "stream with tokens",
			yaml: `
stream:
  enabled: true
  tokens:
    - token: ${HOOKBUS_TEST_STREAM_TOKEN}
      scopes: [events:ro]
`,
			env: map[string]string{"HOOKBUS_TEST_STREAM_TOKEN": "tok"},
			checkFn: func(t *testing.T, cfg *Config) {
				if !cfg.Stream.Enabled {
					t.Error("stream.enabled not parsed")
				}
				if len(cfg.Stream.Tokens) != 1 || cfg.Stream.Tokens[0].Token != "tok" {
					t.Errorf("tokens = %+v", cfg.Stream.Tokens)
				}
				if len(cfg.Stream.Tokens[0].Scopes) != 1 || cfg.Stream.Tokens[0].Scopes[0] != "events:ro" {
					t.Errorf("scopes = %+v", cfg.Stream.Tokens[0].Scopes)
				}
			},
		},
		{
			name:    "stream without tokens",
			yaml:    "stream:\n  enabled: true\n",
			wantErr: "stream.tokens: at least one token is required",
		},
		{
			name: "stream token unset variable",
			yaml: `
stream:
  enabled: true
  tokens:
    - token: ${HOOKBUS_TEST_UNSET_TOKEN}
      scopes: [events:ro]
`,
			wantErr: "stream.tokens[0].token: environment variable ${HOOKBUS_TEST_UNSET_TOKEN} is not set",
		},
		{
			name:    "stream token without scopes",
			yaml:    "stream:\n  enabled: true\n  tokens:\n    - token: abc\n",
			wantErr: "stream.tokens[0].scopes is required",
		},
		{
			name: "env var interpolation",
			yaml: `
webhook:
  secret: ${HOOKBUS_TEST_SECRET}
`,
			env: map[string]string{"HOOKBUS_TEST_SECRET": "from-env"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Webhook.Secret != "from-env" {
					t.Errorf("secret = %q, want from-env", cfg.Webhook.Secret)
				}
			},
		},
		{
			name: "unset secret variable",
			yaml: `
webhook:
  secret: ${HOOKBUS_TEST_UNSET_SECRET}
`,
			wantErr: "${HOOKBUS_TEST_UNSET_SECRET} is not set",
		},
		{
			name:    "relative path",
			yaml:    "webhook:\n  path: github\n",
			wantErr: "webhook.path must start with /",
		},
		{
			name:    "unknown algorithm",
			yaml:    "webhook:\n  algorithm: md5\n",
			wantErr: "webhook.algorithm",
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "malformed yaml",
			yaml:    "service: [",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0600); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() error = nil, want %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("webhook:\n  path: /hooks\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
	if cfg.Webhook.Path != "/hooks" {
		t.Errorf("webhook.path = %q, want /hooks", cfg.Webhook.Path)
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load() of a directory without config.yaml should fail")
	}
}

func TestDiscoverFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.yaml")
	if err := os.WriteFile(path, []byte(""), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOOKBUS_CONFIG", path)

	got, err := Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if got != path {
		t.Errorf("Discover() = %q, want %q", got, path)
	}
}
