package service

import (
	"time"

	"github.com/mozilla/fxa-amplitude-send/internal/watchdog"
	"github.com/mozilla/fxa-amplitude-send/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStaleThreshold sets the message age beyond which intake logs a
// staleness warning. Zero disables the check.
func WithStaleThreshold(threshold time.Duration) Option {
	return func(s *Service) {
		s.staleThreshold = threshold
	}
}

// WithWatchdog attaches a liveness watchdog, reset on every message.
func WithWatchdog(w *watchdog.Watchdog) Option {
	return func(s *Service) {
		s.watchdog = w
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
