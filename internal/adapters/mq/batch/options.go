package batch

import (
	"time"

	"github.com/mozilla/fxa-amplitude-send/pkg/logger"
)

// Option configures a Queue.
type Option func(*Queue)

// WithCapacity sets the number of events per formed batch.
func WithCapacity(capacity int) Option {
	return func(q *Queue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithWorkers sets the delivery worker count.
func WithWorkers(workers int) Option {
	return func(q *Queue) {
		if workers > 0 {
			q.workers = workers
		}
	}
}

// WithMaxRetries bounds delivery attempts per batch.
func WithMaxRetries(retries int) Option {
	return func(q *Queue) {
		if retries > 0 {
			q.maxRetries = retries
		}
	}
}

// WithRetryBackoff sets the base retry delay; the effective delay grows
// exponentially per attempt with jitter applied.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(q *Queue) {
		if backoff > 0 {
			q.retryBackoff = backoff
		}
	}
}

// WithFlushInterval sets how often partial batches are flushed.
func WithFlushInterval(interval time.Duration) Option {
	return func(q *Queue) {
		if interval > 0 {
			q.flushInterval = interval
		}
	}
}

// WithLogger sets the logger for the queue.
func WithLogger(l logger.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}
