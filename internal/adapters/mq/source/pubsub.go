package source

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/mozilla/fxa-amplitude-send/pkg/logger"
)

const defaultMaxOutstanding = 100

// PubSub adapts a Cloud Pub/Sub subscription to the MessageSource contract.
// It is a thin wrapper; flow control, deadline extension and the ack/nack
// RPCs belong to the client library.
type PubSub struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
	logger logger.Logger
}

// NewPubSub connects to the subscription identified by projectID and
// subscriptionID.
func NewPubSub(ctx context.Context, projectID, subscriptionID string, opts ...PubSubOption) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubscriptionUnavailable, err)
	}

	sub := client.Subscription(subscriptionID)
	sub.ReceiveSettings.MaxOutstandingMessages = defaultMaxOutstanding

	p := &PubSub{
		client: client,
		sub:    sub,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logger.Get().Named("pubsub")
	}

	return p, nil
}

// Receive starts the subscription and yields its messages on a channel until
// ctx is canceled. The channel is closed when the subscription ends.
func (p *PubSub) Receive(ctx context.Context) (<-chan RawMessage, error) {
	ch := make(chan RawMessage)

	go func() {
		defer close(ch)
		err := p.sub.Receive(ctx, func(cctx context.Context, m *pubsub.Message) {
			select {
			case ch <- &pubsubMessage{msg: m}:
			case <-cctx.Done():
				m.Nack()
			}
		})
		if err != nil && ctx.Err() == nil {
			p.logger.Error(ctx, "subscription receive ended",
				logger.Type("pubsub.receive.error"),
				logger.Error(err),
			)
		}
	}()

	return ch, nil
}

// Close releases the underlying client.
func (p *PubSub) Close() error {
	return p.client.Close()
}

// PubSubOption configures a PubSub source.
type PubSubOption func(*PubSub)

// WithMaxOutstanding bounds the number of unacknowledged messages held at
// once.
func WithMaxOutstanding(n int) PubSubOption {
	return func(p *PubSub) {
		if n > 0 {
			p.sub.ReceiveSettings.MaxOutstandingMessages = n
		}
	}
}

// WithPubSubLogger sets the logger for the source.
func WithPubSubLogger(l logger.Logger) PubSubOption {
	return func(p *PubSub) {
		p.logger = l
	}
}

// pubsubMessage adapts one delivery to the RawMessage contract.
type pubsubMessage struct {
	msg *pubsub.Message
}

func (m *pubsubMessage) Data() []byte           { return m.msg.Data }
func (m *pubsubMessage) PublishTime() time.Time { return m.msg.PublishTime }
func (m *pubsubMessage) Ack()                   { m.msg.Ack() }

// Nack requests redelivery. The transport has no per-message redelivery
// delay, so the message is held open for the requested delay first; the
// client keeps extending the ack deadline while it is outstanding.
func (m *pubsubMessage) Nack(delay time.Duration) {
	if delay <= 0 {
		m.msg.Nack()
		return
	}
	time.AfterFunc(delay, m.msg.Nack)
}
