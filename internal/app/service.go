// Package service runs the event forwarding pipeline: it consumes raw
// messages from the subscription, normalizes and pseudonymizes events,
// splits identify updates, and fans the results out to the per-endpoint
// batch queues.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mozilla/fxa-amplitude-send/internal/adapters/delivery"
	"github.com/mozilla/fxa-amplitude-send/internal/adapters/mq/batch"
	"github.com/mozilla/fxa-amplitude-send/internal/adapters/mq/source"
	"github.com/mozilla/fxa-amplitude-send/internal/domain/ack"
	"github.com/mozilla/fxa-amplitude-send/internal/domain/event"
	"github.com/mozilla/fxa-amplitude-send/internal/domain/filter"
	"github.com/mozilla/fxa-amplitude-send/internal/domain/identify"
	"github.com/mozilla/fxa-amplitude-send/internal/domain/identity"
	"github.com/mozilla/fxa-amplitude-send/internal/watchdog"
	"github.com/mozilla/fxa-amplitude-send/pkg/logger"
	"github.com/mozilla/fxa-amplitude-send/pkg/metrics"
)

// Service is the single dispatch point of the pipeline. One goroutine pulls
// messages in order; concurrency lives downstream in the batch queues.
type Service struct {
	source     source.MessageSource
	hasher     *identity.Hasher
	filter     *filter.Filter
	router     *delivery.Router
	correlator *ack.Correlator
	queues     map[string]*batch.Queue
	watchdog   *watchdog.Watchdog

	staleThreshold time.Duration

	logger logger.Logger
}

// New creates a Service over its collaborators. The queues mapping is keyed
// by endpoint name and must cover every endpoint the router can return.
func New(
	src source.MessageSource,
	hasher *identity.Hasher,
	fltr *filter.Filter,
	router *delivery.Router,
	correlator *ack.Correlator,
	queues map[string]*batch.Queue,
	opts ...Option,
) *Service {
	s := &Service{
		source:     src,
		hasher:     hasher,
		filter:     fltr,
		router:     router,
		correlator: correlator,
		queues:     queues,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("pipeline")
	}

	return s
}

// Run consumes the subscription until ctx is canceled or the message channel
// closes, then drains the batch queues. In-flight batches complete or fail
// naturally; unfinished messages are redelivered by the subscription.
func (s *Service) Run(ctx context.Context) error {
	messages, err := s.source.Receive(ctx)
	if err != nil {
		return fmt.Errorf("receive from subscription: %w", err)
	}

	for _, q := range s.queues {
		q.Start(ctx)
	}
	if s.watchdog != nil {
		s.watchdog.Start(ctx)
	}

	s.logger.Info(ctx, "pipeline started")

	for {
		select {
		case <-ctx.Done():
			return s.drain(ctx)
		case msg, ok := <-messages:
			if !ok {
				return s.drain(ctx)
			}
			s.process(ctx, msg)
		}
	}
}

// process handles one raw message end to end: decode, normalize, filter,
// pseudonymize, split and enqueue. Discarded messages are acked immediately;
// forwarded ones are registered with the correlator and disposed by delivery
// outcome.
func (s *Service) process(ctx context.Context, msg source.RawMessage) {
	if s.watchdog != nil {
		s.watchdog.Reset()
	}
	metrics.RecordMessagePulled()

	if s.staleThreshold > 0 && time.Since(msg.PublishTime()) > s.staleThreshold {
		metrics.RecordStaleMessage()
		s.logger.Warn(ctx, "processing stale message",
			logger.Type("message.stale"),
			logger.Time("publishTime", msg.PublishTime()),
		)
	}

	ev, warnings, err := event.Parse(source.DecodePayload(msg.Data()))
	for _, w := range warnings {
		s.logger.Warn(ctx, "event field coerced",
			logger.Type(w.Type),
			logger.String("detail", w.Detail),
		)
	}
	if err != nil || !ev.Valid() {
		if err == nil {
			err = errors.New("missing required fields")
		}
		metrics.RecordMalformedEvent()
		s.logger.Warn(ctx, "discarding malformed event",
			logger.Type("event.malformed"),
			logger.Error(err),
		)
		// Retrying cannot fix malformed data; ack so it is not redelivered.
		msg.Ack()
		metrics.RecordMessageAcked()
		return
	}

	if s.filter.Ignore(ev) {
		metrics.RecordFilteredEvent()
		s.logger.Debug(ctx, "ignoring filtered event",
			logger.String("eventType", ev.EventType()),
		)
		msg.Ack()
		metrics.RecordMessageAcked()
		return
	}

	s.hasher.Pseudonymize(ev)

	// Extract before computing keys: splitting mutates user_properties.
	identifyEv := identify.Extract(ev)

	primaryKey := ev.InsertID()
	keys := make([]string, 0, 2)
	var identifyKey string
	if identifyEv != nil {
		// Keyed off the parent, not the identify event itself: the split
		// event has no time or session, and a key built only from ids would
		// collide across every in-flight identify for the same user.
		identifyKey = s.hasher.DerivedInsertID(ev, identify.EventType)
		keys = append(keys, identifyKey)
	}
	keys = append(keys, primaryKey)
	s.correlator.Register(msg, keys...)

	// The identify update must land before the event that references the
	// changed profile.
	if identifyEv != nil {
		s.enqueue(ctx, delivery.ClassIdentify, batch.Item{
			Event:       identifyEv,
			Key:         identifyKey,
			PublishTime: msg.PublishTime(),
		})
	}
	s.enqueue(ctx, delivery.ClassPrimary, batch.Item{
		Event:       ev,
		Key:         primaryKey,
		PublishTime: msg.PublishTime(),
	})
}

func (s *Service) enqueue(ctx context.Context, class delivery.EventClass, item batch.Item) {
	endpoint := s.router.Route(class)
	q, ok := s.queues[endpoint.Name]
	if !ok {
		// Wiring error; surfaced loudly instead of silently dropping.
		s.logger.Error(ctx, "no queue for endpoint",
			logger.String("endpoint", endpoint.Name),
			logger.String("class", string(class)),
		)
		s.correlator.MarkFailed(item.Key)
		return
	}
	if !q.Enqueue(ctx, item) {
		// Queue already closed; dispose now rather than waiting out the
		// ack deadline.
		s.correlator.MarkFailed(item.Key)
	}
}

// drain stops intake and flushes the queues.
func (s *Service) drain(ctx context.Context) error {
	if s.watchdog != nil {
		s.watchdog.Stop()
	}

	// Shutdown must outlive the canceled run context.
	drainCtx := context.WithoutCancel(ctx)

	var errs []error
	for name, q := range s.queues {
		if err := q.Shutdown(drainCtx); err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", name, err))
		}
	}
	s.logger.Info(ctx, "pipeline stopped",
		logger.Int("pendingMessages", s.correlator.Size()),
	)
	return errors.Join(errs...)
}
