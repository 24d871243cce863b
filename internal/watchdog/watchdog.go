// Package watchdog guards pipeline liveness. Streaming subscriptions can
// silently stop yielding messages; the watchdog turns that stall into a
// process exit so the supervisor restarts the connection.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/mozilla/fxa-amplitude-send/pkg/logger"
	"github.com/mozilla/fxa-amplitude-send/pkg/metrics"
)

const defaultIdleTimeout = 5 * time.Minute

// Watchdog fires after a configured idle period without a Reset.
type Watchdog struct {
	idleTimeout time.Duration
	onFire      func(ctx context.Context)
	logger      logger.Logger

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// New creates a Watchdog with configuration options. It does not start
// counting down until Start is called.
func New(opts ...Option) *Watchdog {
	w := &Watchdog{
		idleTimeout: defaultIdleTimeout,
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named("watchdog")
	}
	if w.onFire == nil {
		w.onFire = func(ctx context.Context) {
			w.logger.Fatal(ctx, "no messages received within idle timeout",
				logger.Type("watchdog.idle"),
				logger.Duration("idleTimeout", w.idleTimeout),
			)
		}
	}

	return w
}

// Start arms the countdown. The watchdog disarms when ctx is canceled.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		return
	}
	w.timer = time.AfterFunc(w.idleTimeout, func() {
		w.fire(ctx)
	})

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
}

// Reset restarts the countdown. Call it for every received message,
// including ones that end up discarded.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer == nil || w.stopped {
		return
	}
	w.timer.Reset(w.idleTimeout)
	metrics.RecordWatchdogReset()
}

// Stop disarms the watchdog permanently.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watchdog) fire(ctx context.Context) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()
	w.onFire(ctx)
}
