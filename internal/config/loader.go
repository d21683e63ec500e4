package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up when a directory is given.
const DefaultFileName = "config.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, defaults and validates the configuration at
// path. path may name a file or a directory containing config.yaml.
// If a .checksums manifest sits next to the file, the file must match it.
func Load(path string) (*Config, error) {
	absPath, err := ResolvePath(path)
	if err != nil {
		return nil, err
	}

	if err := VerifyChecksum(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML onto Defaults() and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	cfg.Service.LogFormat = strings.ToLower(cfg.Service.LogFormat)
	cfg.Webhook.Algorithm = strings.ToLower(cfg.Webhook.Algorithm)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath returns the absolute config file path for path.
func ResolvePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", path, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFileName)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", DefaultFileName, absPath)
		}
	}
	return absPath, nil
}

// Discover finds a config file in the standard locations.
// Priority order: $HOOKBUS_CONFIG, ./config.yaml, ~/.config/hookbus, /etc/hookbus.
func Discover() (string, error) {
	if p := os.Getenv("HOOKBUS_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	candidates := []string{DefaultFileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "hookbus", DefaultFileName))
	}
	candidates = append(candidates, filepath.Join("/etc", "hookbus", DefaultFileName))

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", c, err)
		}
	}

	return "", fmt.Errorf("no config found (checked: $HOOKBUS_CONFIG, %s)", strings.Join(candidates, ", "))
}

// interpolateEnv replaces ${VAR} with the variable's value. Unset variables
// are left in place so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	if cfg.Service.Listen == "" {
		return fmt.Errorf("service.listen is required")
	}

	if cfg.Webhook.Path == "" {
		return fmt.Errorf("webhook.path is required")
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with / (got %q)", cfg.Webhook.Path)
	}
	if matches := envVarPattern.FindStringSubmatch(cfg.Webhook.Secret); matches != nil {
		return fmt.Errorf("webhook.secret: environment variable ${%s} is not set", matches[1])
	}
	switch cfg.Webhook.Algorithm {
	case "sha1", "sha256", "blake3":
	default:
		return fmt.Errorf("webhook.algorithm must be one of: sha1, sha256, blake3 (got %q)", cfg.Webhook.Algorithm)
	}
	if cfg.Webhook.QueueSize < 0 {
		return fmt.Errorf("webhook.queue_size must not be negative")
	}

	if cfg.Stream.Buffer < 0 {
		return fmt.Errorf("stream.buffer must not be negative")
	}
	if cfg.Stream.Enabled && len(cfg.Stream.Tokens) == 0 {
		return fmt.Errorf("stream.tokens: at least one token is required when stream.enabled is true")
	}
	for i, t := range cfg.Stream.Tokens {
		if t.Token == "" {
			return fmt.Errorf("stream.tokens[%d].token is required", i)
		}
		if matches := envVarPattern.FindStringSubmatch(t.Token); matches != nil {
			return fmt.Errorf("stream.tokens[%d].token: environment variable ${%s} is not set", i, matches[1])
		}
		if len(t.Scopes) == 0 {
			return fmt.Errorf("stream.tokens[%d].scopes is required", i)
		}
	}
	return nil
}
