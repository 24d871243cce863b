// Package event contains the canonical event record and its normalization
// from raw queue payloads.
package event

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Well-known field keys.
const (
	KeyEventType       = "event_type"
	KeyTime            = "time"
	KeyUserID          = "user_id"
	KeyDeviceID        = "device_id"
	KeySessionID       = "session_id"
	KeyInsertID        = "insert_id"
	KeyEventProperties = "event_properties"
	KeyUserProperties  = "user_properties"
)

// InvalidSessionID is substituted when a session_id string cannot be parsed
// as an integer.
const InvalidSessionID int64 = -1

// Event is a normalized analytics event. Upstream producers attach
// arbitrary fields, so the record stays a mapping; the accessors below cover
// the fields the pipeline itself depends on.
type Event map[string]any

// Warning describes a field-shape fixup applied during normalization.
type Warning struct {
	Type   string
	Detail string
}

// Parse decodes a raw queue payload into a normalized Event.
//
// Payload shapes handled, in order:
//   - a mozlog envelope with a Fields object is unwrapped;
//   - inside Fields, an op/data pair means data is itself a JSON-encoded
//     event from an older double-encoding hop: it replaces the event
//     entirely, discarding sibling fields;
//   - otherwise string-typed event_properties/user_properties are parsed
//     into nested mappings in place.
//
// A non-numeric session_id is coerced (integer parse, sentinel -1 on
// failure) and reported as a warning rather than an error.
func Parse(raw []byte) (Event, []Warning, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if fields, ok := ev["Fields"].(map[string]any); ok {
		ev = Event(fields)

		if _, hasOp := ev["op"]; hasOp {
			if data, ok := ev["data"].(string); ok {
				// Double-encoded hop: data carries the whole event.
				var inner Event
				if err := json.Unmarshal([]byte(data), &inner); err != nil {
					return nil, nil, fmt.Errorf("%w: op/data envelope: %w", ErrMalformedPayload, err)
				}
				ev = inner
			}
		} else {
			for _, key := range []string{KeyEventProperties, KeyUserProperties} {
				if err := parseStringField(ev, key); err != nil {
					return nil, nil, err
				}
			}
		}
	}

	warnings := coerceSessionID(ev)
	return ev, warnings, nil
}

// parseStringField replaces a JSON-encoded string field with its parsed
// mapping. Empty strings and absent fields are left alone.
func parseStringField(ev Event, key string) error {
	s, ok := ev[key].(string)
	if !ok || s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedPayload, key, err)
	}
	ev[key] = m
	return nil
}

// coerceSessionID works around some invalid session_ids seen upstream.
func coerceSessionID(ev Event) []Warning {
	s, ok := ev[KeySessionID].(string)
	if !ok {
		return nil
	}

	coerced, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		coerced = InvalidSessionID
	}
	ev[KeySessionID] = coerced
	return []Warning{{
		Type:   "amplitude.validation.error",
		Detail: fmt.Sprintf("invalid session_id %q coerced to %d", s, coerced),
	}}
}

// Valid reports whether the event carries the fields required for delivery:
// at least one of user_id/device_id, a non-empty event_type, and a positive
// time. Invalid events are unrecoverable; retrying cannot fix malformed data.
func (e Event) Valid() bool {
	return (e.UserID() != "" || e.DeviceID() != "") &&
		e.EventType() != "" &&
		e.Time() > 0
}

// EventType returns the event_type field, or "" when absent.
func (e Event) EventType() string { return e.stringField(KeyEventType) }

// UserID returns the user_id field, or "" when absent.
func (e Event) UserID() string { return e.stringField(KeyUserID) }

// DeviceID returns the device_id field, or "" when absent.
func (e Event) DeviceID() string { return e.stringField(KeyDeviceID) }

// SetUserID replaces the user_id field.
func (e Event) SetUserID(id string) { e[KeyUserID] = id }

// SetInsertID sets the dedup key used for idempotent delivery.
func (e Event) SetInsertID(id string) { e[KeyInsertID] = id }

// InsertID returns the dedup key, or "" before it has been computed.
func (e Event) InsertID() string { return e.stringField(KeyInsertID) }

// Time returns the event timestamp in epoch milliseconds, or 0 when absent
// or non-numeric.
func (e Event) Time() int64 {
	switch t := e[KeyTime].(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return 0
	}
}

// SessionID returns the session_id and whether one is present.
func (e Event) SessionID() (int64, bool) {
	switch s := e[KeySessionID].(type) {
	case float64:
		return int64(s), true
	case int64:
		return s, true
	case int:
		return int64(s), true
	default:
		return 0, false
	}
}

// UserProperties returns the user_properties mapping, or nil when absent.
func (e Event) UserProperties() map[string]any {
	m, _ := e[KeyUserProperties].(map[string]any)
	return m
}

// SetUserProperties replaces the user_properties mapping. A nil mapping
// removes the field.
func (e Event) SetUserProperties(props map[string]any) {
	if props == nil {
		delete(e, KeyUserProperties)
		return
	}
	e[KeyUserProperties] = props
}

func (e Event) stringField(key string) string {
	s, _ := e[key].(string)
	return s
}
