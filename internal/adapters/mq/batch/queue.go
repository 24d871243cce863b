// Package batch accumulates routed events into per-endpoint batches and
// drives their delivery, retry and acknowledgment.
package batch

import (
	"context"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mozilla/fxa-amplitude-send/internal/adapters/delivery"
	"github.com/mozilla/fxa-amplitude-send/internal/domain/event"
	"github.com/mozilla/fxa-amplitude-send/pkg/logger"
	"github.com/mozilla/fxa-amplitude-send/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity      = 10
	defaultWorkers       = 4
	defaultMaxRetries    = 3
	defaultRetryBackoff  = 15 * time.Second
	defaultFlushInterval = 10 * time.Second

	// batchBuffer bounds formed batches awaiting a worker; a full buffer
	// applies backpressure to the dispatch loop.
	batchBuffer = 16

	queueShutdownTimeout = 30 * time.Second

	// drainAttemptTimeout bounds a delivery attempt made after the run
	// context is canceled, so the final flush can still reach the endpoint.
	drainAttemptTimeout = 10 * time.Second
)

// Item is one routed event awaiting delivery, carrying the dedup key that
// correlates its outcome back to the source message.
type Item struct {
	Event       event.Event
	Key         string
	PublishTime time.Time
}

// Acker receives delivery outcomes per dedup key.
type Acker interface {
	MarkDelivered(key string)
	MarkFailed(key string)
}

// Queue accumulates events for one endpoint and delivers them in bounded,
// order-preserving batches through a worker pool.
type Queue struct {
	endpoint delivery.Endpoint
	client   delivery.Client
	acker    Acker

	capacity      int
	workers       int
	maxRetries    int
	retryBackoff  time.Duration
	flushInterval time.Duration

	mu      sync.Mutex
	pending []Item
	closed  bool

	batches chan []Item
	done    chan struct{}
	wg      sync.WaitGroup

	logger logger.Logger
}

// New creates a Queue for one endpoint with configuration options.
func New(endpoint delivery.Endpoint, client delivery.Client, acker Acker, opts ...Option) *Queue {
	q := &Queue{
		endpoint:      endpoint,
		client:        client,
		acker:         acker,
		capacity:      defaultCapacity,
		workers:       defaultWorkers,
		maxRetries:    defaultMaxRetries,
		retryBackoff:  defaultRetryBackoff,
		flushInterval: defaultFlushInterval,
		batches:       make(chan []Item, batchBuffer),
		done:          make(chan struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(q)
	}

	if q.logger == nil {
		q.logger = logger.Get().Named("batch-" + endpoint.Name)
	}

	return q
}

// Start launches the delivery workers and the periodic flush loop.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for items := range q.batches {
				q.deliver(ctx, items)
			}
		}()
	}

	go func() {
		q.wg.Wait()
		close(q.done)
	}()

	go q.flushLoop(ctx)
}

// Enqueue appends an event to the pending sequence, forming a batch
// whenever the capacity threshold is reached. Returns false once the queue
// is closed or ctx is canceled.
func (q *Queue) Enqueue(ctx context.Context, item Item) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, item)
	var formed [][]Item
	for len(q.pending) >= q.capacity {
		formed = append(formed, q.pending[:q.capacity:q.capacity])
		q.pending = q.pending[q.capacity:]
	}
	metrics.UpdateQueueDepth(q.endpoint.Name, len(q.pending))
	q.mu.Unlock()

	for _, items := range formed {
		select {
		case q.batches <- items:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// Flush hands the partially filled pending sequence to the workers.
func (q *Queue) Flush(ctx context.Context) {
	q.mu.Lock()
	items := q.pending
	q.pending = nil
	metrics.UpdateQueueDepth(q.endpoint.Name, 0)
	q.mu.Unlock()

	if len(items) == 0 {
		return
	}
	select {
	case q.batches <- items:
	case <-ctx.Done():
	}
}

// Len returns the current number of pending (unbatched) events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Shutdown flushes the remaining events, stops intake and waits for
// in-flight deliveries to complete or fail naturally.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	items := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(items) > 0 {
		q.batches <- items
	}
	close(q.batches)

	shutdownCtx, cancel := context.WithTimeout(ctx, queueShutdownTimeout)
	defer cancel()

	select {
	case <-q.done:
		return nil
	case <-shutdownCtx.Done():
		q.logger.Warn(ctx, "queue shutdown timed out", logger.String("endpoint", q.endpoint.Name))
		return ErrShutdownTimeout
	}
}

// flushLoop periodically flushes partial batches so quiet periods do not
// strand events below the capacity threshold.
func (q *Queue) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case <-ticker.C:
			q.Flush(ctx)
		}
	}
}

// deliver posts one batch, retrying with jittered exponential backoff, and
// drives the acknowledgment outcome for every item.
func (q *Queue) deliver(ctx context.Context, items []Item) {
	batchID := uuid.NewString()
	events := q.payload(items)

	for attempt := 0; ; attempt++ {
		start := time.Now()
		attemptCtx, cancel := q.attemptContext(ctx)
		err := q.client.Post(attemptCtx, q.endpoint, events)
		cancel()
		metrics.RecordDeliveryLatency(q.endpoint.Name, time.Since(start).Seconds())

		if err == nil {
			q.succeed(ctx, batchID, items, events, attempt)
			return
		}

		if attempt+1 >= q.maxRetries || ctx.Err() != nil {
			q.fail(ctx, batchID, items, err)
			return
		}

		metrics.RecordBatchRetry(q.endpoint.Name)
		q.logger.Error(ctx, "batch delivery failed, retrying",
			logger.Type("amplitude.batch.error"),
			logger.String("batchID", batchID),
			logger.Int("attempt", attempt+1),
			logger.Error(err),
		)

		select {
		case <-time.After(q.backoffDelay(attempt)):
		case <-ctx.Done():
		}
	}
}

// succeed marks every item delivered, in batch order.
func (q *Queue) succeed(ctx context.Context, batchID string, items []Item, events []event.Event, attempt int) {
	minPublished, maxPublished := publishWindow(items)
	for _, item := range items {
		q.acker.MarkDelivered(item.Key)
		metrics.RecordEventDelivered()
	}
	metrics.RecordBatchDelivered(q.endpoint.Name)
	q.logger.Info(ctx, "events processed",
		logger.Type("events.processed"),
		logger.String("batchID", batchID),
		logger.Int("inputCount", len(items)),
		logger.Int("outputCount", len(events)),
		logger.Int("attempts", attempt+1),
		logger.Time("minPublishedTime", minPublished),
		logger.Time("maxPublishedTime", maxPublished),
	)
}

// fail treats the batch as permanently failed; every referenced message is
// forced to negative acknowledgment.
func (q *Queue) fail(ctx context.Context, batchID string, items []Item, err error) {
	for _, item := range items {
		q.acker.MarkFailed(item.Key)
		metrics.RecordEventFailed()
	}
	metrics.RecordBatchFailed(q.endpoint.Name)
	q.logger.Error(ctx, "batch permanently failed",
		logger.Type("amplitude.batch.exhausted"),
		logger.String("batchID", batchID),
		logger.Int("count", len(items)),
		logger.Error(err),
	)
}

// payload builds the outbound event slice in item order. Identify endpoints
// additionally suppress exact duplicates and repeated user ids within the
// batch to help prevent destination rate limiting; suppressed items still
// share the batch outcome.
func (q *Queue) payload(items []Item) []event.Event {
	if !q.endpoint.Identify {
		events := make([]event.Event, len(items))
		for i, item := range items {
			events[i] = item.Event
		}
		return events
	}

	events := make([]event.Event, 0, len(items))
	seenUsers := make(map[string]bool, len(items))
	for _, item := range items {
		if uid := item.Event.UserID(); uid != "" && seenUsers[uid] {
			metrics.RecordIdentifySuppressed()
			continue
		}
		if containsEqual(events, item.Event) {
			metrics.RecordIdentifySuppressed()
			continue
		}
		if uid := item.Event.UserID(); uid != "" {
			seenUsers[uid] = true
		}
		events = append(events, item.Event)
	}
	return events
}

func containsEqual(events []event.Event, ev event.Event) bool {
	for _, other := range events {
		if reflect.DeepEqual(other, ev) {
			return true
		}
	}
	return false
}

// attemptContext bounds one delivery attempt. Once the run context is
// canceled the queue is draining; attempts then run on a detached,
// time-bounded context so pending batches get one real delivery attempt
// instead of failing instantly. Retries stay disabled during the drain.
func (q *Queue) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() != nil {
		return context.WithTimeout(context.WithoutCancel(ctx), drainAttemptTimeout)
	}
	return context.WithCancel(ctx)
}

// backoffDelay grows exponentially with ±20% jitter to prevent a
// thundering herd of synchronized retries.
func (q *Queue) backoffDelay(attempt int) time.Duration {
	base := q.retryBackoff * time.Duration(1<<attempt)
	jitterFactor := 0.8 + (rand.Float64() * 0.4)
	return time.Duration(float64(base) * jitterFactor)
}

// publishWindow returns the oldest and newest publish times in the batch.
func publishWindow(items []Item) (minPublished, maxPublished time.Time) {
	for _, item := range items {
		if item.PublishTime.IsZero() {
			continue
		}
		if minPublished.IsZero() || item.PublishTime.Before(minPublished) {
			minPublished = item.PublishTime
		}
		if maxPublished.IsZero() || item.PublishTime.After(maxPublished) {
			maxPublished = item.PublishTime
		}
	}
	return minPublished, maxPublished
}
