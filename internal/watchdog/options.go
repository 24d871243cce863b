package watchdog

import (
	"context"
	"time"

	"github.com/mozilla/fxa-amplitude-send/pkg/logger"
)

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithIdleTimeout sets the countdown duration.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(w *Watchdog) {
		if timeout > 0 {
			w.idleTimeout = timeout
		}
	}
}

// WithOnFire overrides the action taken when the countdown expires. The
// default terminates the process.
func WithOnFire(fn func(ctx context.Context)) Option {
	return func(w *Watchdog) {
		w.onFire = fn
	}
}

// WithLogger sets the logger for the watchdog.
func WithLogger(l logger.Logger) Option {
	return func(w *Watchdog) {
		w.logger = l
	}
}
