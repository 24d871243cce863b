// Package ack correlates delivery outcomes of derived events back to their
// originating queue messages.
package ack

import (
	"math/rand"
	"sync"
	"time"

	"github.com/mozilla/fxa-amplitude-send/pkg/metrics"
)

// Message is the acknowledgment surface of a raw queue message. Exactly one
// of Ack/Nack is invoked per message.
type Message interface {
	Ack()
	Nack(delay time.Duration)
}

// entry is the pending-delivery record for one source message. It is shared
// between all dedup keys derived from that message.
type entry struct {
	msg       Message
	remaining int
	keys      []string
}

// Correlator maps each derived event's dedup key to its originating message
// and a pending-delivery count. It guarantees at-most-one disposition per
// message even when derived events complete concurrently and out of order
// across different batch queues.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*entry

	nackDelayMin time.Duration
	nackDelayMax time.Duration
}

// New creates a Correlator with configuration options.
func New(opts ...Option) *Correlator {
	c := &Correlator{
		pending:      make(map[string]*entry),
		nackDelayMin: 30 * time.Second,
		nackDelayMax: 10 * time.Minute,
	}

	// Apply all options
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Register records that msg yielded one derived event per dedup key. The
// message is acknowledged once every key is marked delivered, and nacked as
// soon as any key is marked failed.
func (c *Correlator) Register(msg Message, keys ...string) {
	if len(keys) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{msg: msg, remaining: len(keys), keys: keys}
	for _, key := range keys {
		c.pending[key] = e
	}
	metrics.UpdatePendingAcks(c.sizeLocked())
}

// MarkDelivered records a durable delivery for the given dedup key. When it
// was the last outstanding delivery for its message, the message is
// acknowledged and the entry removed. Unknown keys are no-ops; they occur
// when a sibling completes after the message was already disposed.
func (c *Correlator) MarkDelivered(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.pending[key]
	if !ok {
		return
	}

	e.remaining--
	if e.remaining > 0 {
		return
	}

	c.removeLocked(e)
	e.msg.Ack()
	metrics.RecordMessageAcked()
	metrics.UpdatePendingAcks(c.sizeLocked())
}

// MarkFailed records a permanent delivery failure for the given dedup key.
// The originating message is immediately nacked with a jittered delay, even
// if sibling deliveries are still pending or already succeeded; a single
// permanent failure vetoes the whole message. Unknown keys are no-ops.
func (c *Correlator) MarkFailed(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.pending[key]
	if !ok {
		return
	}

	c.removeLocked(e)
	e.msg.Nack(c.nackDelay())
	metrics.RecordMessageNacked()
	metrics.UpdatePendingAcks(c.sizeLocked())
}

// Size returns the number of messages awaiting disposition.
func (c *Correlator) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sizeLocked()
}

// removeLocked deletes every key of the entry so a late sibling completion
// cannot dispose the message a second time. Must be called with c.mu held.
func (c *Correlator) removeLocked(e *entry) {
	for _, key := range e.keys {
		delete(c.pending, key)
	}
}

// sizeLocked counts distinct pending messages. Must be called with c.mu held.
func (c *Correlator) sizeLocked() int {
	seen := make(map[*entry]bool, len(c.pending))
	for _, e := range c.pending {
		seen[e] = true
	}
	return len(seen)
}

// nackDelay picks a randomized redelivery delay within the configured
// window. The jitter avoids synchronized redelivery storms when many
// workers fail at once.
func (c *Correlator) nackDelay() time.Duration {
	window := c.nackDelayMax - c.nackDelayMin
	if window <= 0 {
		return c.nackDelayMin
	}
	return c.nackDelayMin + time.Duration(rand.Int63n(int64(window)))
}
