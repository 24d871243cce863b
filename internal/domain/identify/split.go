// Package identify splits profile-update properties out of an event into a
// separate identify event.
package identify

import (
	"github.com/mozilla/fxa-amplitude-send/internal/domain/event"
)

// EventType marks events destined for the identify endpoint.
const EventType = "$identify"

// Verbs are the user_properties keys that mutate a profile rather than
// describe an event.
var Verbs = []string{"$set", "$setOnce", "$add", "$append", "$unset"}

// Split partitions user properties into the non-verb remainder and the
// verb-keyed identify payload. Both results are new mappings; the input is
// not mutated.
func Split(props map[string]any) (cleaned, extracted map[string]any, found bool) {
	verbs := make(map[string]bool, len(Verbs))
	for _, v := range Verbs {
		verbs[v] = true
	}

	cleaned = make(map[string]any, len(props))
	extracted = make(map[string]any)
	for key, value := range props {
		if verbs[key] && value != nil {
			extracted[key] = value
			found = true
			continue
		}
		cleaned[key] = value
	}
	return cleaned, extracted, found
}

// Extract derives an identify event from ev when its user_properties carry
// any identify verb, and strips those verbs from ev's own user_properties.
// The identify event carries only the ids and the verb payload. Returns nil
// when no verb is present.
func Extract(ev event.Event) event.Event {
	props := ev.UserProperties()
	if len(props) == 0 {
		return nil
	}

	cleaned, extracted, found := Split(props)
	if !found {
		return nil
	}
	ev.SetUserProperties(cleaned)

	identify := event.Event{
		event.KeyEventType:      EventType,
		event.KeyUserProperties: extracted,
	}
	if deviceID := ev.DeviceID(); deviceID != "" {
		identify[event.KeyDeviceID] = deviceID
	}
	if userID := ev.UserID(); userID != "" {
		identify[event.KeyUserID] = userID
	}
	return identify
}
