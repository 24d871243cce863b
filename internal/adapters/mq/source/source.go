// Package source defines the contract for receiving raw messages from the
// upstream subscription.
//
// The subscription transport itself (connecting, pull, ack/nack RPCs) is an
// external collaborator; the pipeline only depends on these interfaces.
package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"
)

// RawMessage is one at-least-once delivery from the subscription. The
// transport owns the message until exactly one of Ack/Nack is invoked.
type RawMessage interface {
	// Data returns the opaque message payload.
	Data() []byte

	// PublishTime returns the queue-assigned publish timestamp.
	PublishTime() time.Time

	// Ack positively acknowledges the message.
	Ack()

	// Nack requests redelivery after the given delay.
	Nack(delay time.Duration)
}

// MessageSource yields raw messages until ctx is canceled. The channel is
// closed when the subscription ends.
type MessageSource interface {
	Receive(ctx context.Context) (<-chan RawMessage, error)
}

// envelope is the log-router wrapper around exported analytics events.
type envelope struct {
	JSONPayload json.RawMessage `json:"jsonPayload"`
}

// DecodePayload extracts the event payload from a raw message body. Bodies
// arrive either as a JSON envelope carrying jsonPayload, or as the base64
// encoding of one; bodies in neither shape are returned unchanged and left
// to the normalizer's malformed-event handling.
func DecodePayload(data []byte) []byte {
	if payload, ok := unwrap(data); ok {
		return payload
	}

	decoded, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return data
	}
	if payload, ok := unwrap(decoded); ok {
		return payload
	}
	return decoded
}

func unwrap(data []byte) ([]byte, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.JSONPayload == nil {
		return nil, false
	}
	return env.JSONPayload, true
}
