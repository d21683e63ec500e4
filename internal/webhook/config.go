package webhook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattjoyce/hookbus/internal/config"
)

// FromGlobalConfig converts the file-level webhook section into a handler
// Config, resolving the signing algorithm and body size limit.
func FromGlobalConfig(wc *config.WebhookConfig) (Config, error) {
	if wc == nil {
		return Config{}, fmt.Errorf("webhook config is nil")
	}

	sign, err := SignerFor(wc.Algorithm)
	if err != nil {
		return Config{}, fmt.Errorf("webhook %q: %w", wc.Path, err)
	}

	maxBodySize, err := parseMaxBodySize(wc.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("webhook %q: invalid max_body_size %q: %w", wc.Path, wc.MaxBodySize, err)
	}

	return Config{
		Path:            wc.Path,
		Secret:          wc.Secret,
		DeliveryHeader:  wc.DeliveryHeader,
		EventHeader:     wc.EventHeader,
		SignatureHeader: wc.SignatureHeader,
		SignData:        sign,
		MaxBodySize:     maxBodySize,
	}, nil
}

// parseMaxBodySize parses "1MB", "512KB", "1048576" and the like into bytes.
// Empty means DefaultMaxBodySize.
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		factor int64
	}{
		{"KB", 1 << 10},
		{"MB", 1 << 20},
		{"GB", 1 << 30},
	} {
		if strings.HasSuffix(upper, unit.suffix) {
			multiplier = unit.factor
			upper = strings.TrimSuffix(upper, unit.suffix)
			break
		}
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
