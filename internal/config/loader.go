package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if FXA_CONFIG is set
//  3. env (prefix FXA_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("FXA_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: FXA_API_KEY, FXA_MAX_EVENTS_PER_BATCH, ...
	// Map env keys like FXA_WORKER_COUNT -> worker_count (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("FXA_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "fxa_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations the pipeline cannot run with. Missing
// secrets are fatal rather than degraded.
func (c *Config) validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("%w: api_key must not be empty", ErrInvalidConfig)
	case c.HMACKey == "":
		return fmt.Errorf("%w: hmac_key must not be empty", ErrInvalidConfig)
	case c.PubSubProject == "" || c.PubSubTopic == "" || c.PubSubSubscription == "":
		return fmt.Errorf("%w: pubsub_project, pubsub_topic and pubsub_subscription must not be empty", ErrInvalidConfig)
	case c.EndpointMode != ModeCombined && c.EndpointMode != ModeSplit:
		return fmt.Errorf("%w: endpoint_mode must be %q or %q", ErrInvalidConfig, ModeCombined, ModeSplit)
	case c.MaxEventsPerBatch <= 0:
		return fmt.Errorf("%w: max_events_per_batch must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.MaxRetries <= 0:
		return fmt.Errorf("%w: max_retries must be positive", ErrInvalidConfig)
	case c.IdleTimeout <= 0:
		return fmt.Errorf("%w: idle_timeout must be positive", ErrInvalidConfig)
	case c.NackDelayMin < 0 || c.NackDelayMax < c.NackDelayMin:
		return fmt.Errorf("%w: nack delay window must satisfy 0 <= min <= max", ErrInvalidConfig)
	case c.OpsAddr == "":
		return fmt.Errorf("%w: ops_addr must not be empty", ErrInvalidConfig)
	}
	return nil
}
