// Package identity pseudonymizes identity fields and derives the stable
// dedup key attached to every delivered event.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/mozilla/fxa-amplitude-send/internal/domain/event"
)

// Hasher computes keyed digests over event identity fields. The key is the
// process-wide pseudonymization secret.
type Hasher struct {
	key []byte
}

// NewHasher creates a Hasher from the shared secret. An empty secret is a
// configuration error.
func NewHasher(secret string) (*Hasher, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Hasher{key: []byte(secret)}, nil
}

// hash digests the given components in order. Empty components contribute
// nothing, not a placeholder, so historical keys stay stable.
func (h *Hasher) hash(components ...string) string {
	mac := hmac.New(sha256.New, h.key)
	for _, c := range components {
		if c != "" {
			mac.Write([]byte(c))
		}
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// HashUserID returns the pseudonymous replacement for a raw user id.
func (h *Hasher) HashUserID(userID string) string {
	return h.hash(userID)
}

// Pseudonymize replaces the event's user_id in place with its keyed digest
// and then computes and attaches the insert_id dedup key. The user_id is
// hashed first so the dedup key is itself pseudonymous.
func (h *Hasher) Pseudonymize(ev event.Event) {
	if uid := ev.UserID(); uid != "" {
		ev.SetUserID(h.HashUserID(uid))
	}
	ev.SetInsertID(h.InsertID(ev))
}

// InsertID computes the deterministic dedup key over
// (user_id, device_id, session_id, event_type, time), in that order.
func (h *Hasher) InsertID(ev event.Event) string {
	return h.DerivedInsertID(ev, ev.EventType())
}

// DerivedInsertID computes the dedup key for an event of the given type
// derived from ev. Derived events carry no session or time of their own;
// anchoring the key to the parent's identity, session and time keeps keys
// from distinct occurrences distinct.
func (h *Hasher) DerivedInsertID(ev event.Event, eventType string) string {
	var session string
	if sid, ok := ev.SessionID(); ok {
		session = strconv.FormatInt(sid, 10)
	}

	return h.hash(
		ev.UserID(),
		ev.DeviceID(),
		session,
		eventType,
		strconv.FormatInt(ev.Time(), 10),
	)
}
