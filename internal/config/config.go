// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"time"
)

// Endpoint modes selecting the outbound deployment variant.
const (
	// ModeCombined sends every event class to the single batch endpoint.
	ModeCombined = "combined"
	// ModeSplit sends primary events to the httpapi endpoint and identify
	// events to the identify endpoint.
	ModeSplit = "split"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// APIKey authenticates outbound delivery calls.
	APIKey string `koanf:"api_key"`

	// HMACKey is the pseudonymization secret. Missing is a fatal
	// configuration error.
	HMACKey string `koanf:"hmac_key"`

	// Pub/Sub subscription identifiers.
	PubSubProject      string `koanf:"pubsub_project"`
	PubSubTopic        string `koanf:"pubsub_topic"`
	PubSubSubscription string `koanf:"pubsub_subscription"`

	// EndpointMode selects the outbound deployment variant: combined or split.
	EndpointMode string `koanf:"endpoint_mode"`

	// Outbound endpoint URLs.
	BatchEndpoint    string `koanf:"batch_endpoint"`
	HTTPAPIEndpoint  string `koanf:"httpapi_endpoint"`
	IdentifyEndpoint string `koanf:"identify_endpoint"`

	// MaxEventsPerBatch caps the size of one outbound batch.
	MaxEventsPerBatch int `koanf:"max_events_per_batch"`

	// WorkerCount sets the number of delivery workers per endpoint queue.
	WorkerCount int `koanf:"worker_count"`

	// MaxRetries bounds delivery attempts for one batch.
	MaxRetries int `koanf:"max_retries"`

	// RetryBackoff is the base delay for exponential delivery backoff.
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	// NackDelayMin and NackDelayMax bound the jittered redelivery delay
	// applied when a batch permanently fails.
	NackDelayMin time.Duration `koanf:"nack_delay_min"`
	NackDelayMax time.Duration `koanf:"nack_delay_max"`

	// IdleTimeout is the liveness watchdog window; no message for this long
	// terminates the process.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// StaleThreshold triggers a warning for messages published longer ago
	// than this at intake.
	StaleThreshold time.Duration `koanf:"stale_threshold"`

	// FlushInterval triggers delivery of partially filled batches.
	FlushInterval time.Duration `koanf:"flush_interval"`

	// IgnoredEvents is a JSON-encoded mapping from event_type to a list of
	// match criteria; matching events are dropped.
	IgnoredEvents string `koanf:"ignored_events"`

	// OpsAddr configures the health/metrics HTTP listen address.
	OpsAddr string `koanf:"ops_addr"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		EndpointMode:      ModeSplit,
		BatchEndpoint:     "https://api.amplitude.com/batch",
		HTTPAPIEndpoint:   "https://api.amplitude.com/2/httpapi",
		IdentifyEndpoint:  "https://api.amplitude.com/identify",
		MaxEventsPerBatch: 10,
		WorkerCount:       4,
		MaxRetries:        3,
		RetryBackoff:      15 * time.Second,
		NackDelayMin:      30 * time.Second,
		NackDelayMax:      10 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		StaleThreshold:    10 * time.Minute,
		FlushInterval:     10 * time.Second,
		IgnoredEvents:     "{}",
		OpsAddr:           ":9090",
	}
}
