// Package filter drops events matching an operator-supplied ignore list.
package filter

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mozilla/fxa-amplitude-send/internal/domain/event"
)

// Criterion is a partial nested mapping matched against an event. Keys
// present in the criterion must equal the corresponding event values,
// recursively; keys it does not mention are wildcards.
type Criterion map[string]any

// Filter holds the ignore list keyed by event_type.
type Filter struct {
	rules map[string][]Criterion
}

// New creates a Filter from an already-decoded rule set.
func New(rules map[string][]Criterion) *Filter {
	if rules == nil {
		rules = map[string][]Criterion{}
	}
	return &Filter{rules: rules}
}

// ParseRules decodes the JSON ignore-list configuration,
// event_type -> [{criterion}, ...].
func ParseRules(encoded string) (*Filter, error) {
	if encoded == "" {
		return New(nil), nil
	}
	var rules map[string][]Criterion
	if err := json.Unmarshal([]byte(encoded), &rules); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRules, err)
	}
	return New(rules), nil
}

// Ignore reports whether the event matches at least one configured
// criterion for its event_type. Types with no configured criteria are never
// filtered.
func (f *Filter) Ignore(ev event.Event) bool {
	criteria, ok := f.rules[ev.EventType()]
	if !ok {
		return false
	}
	for _, criterion := range criteria {
		if matches(map[string]any(ev), map[string]any(criterion)) {
			return true
		}
	}
	return false
}

// matches implements recursive partial structural equality.
func matches(value map[string]any, criterion map[string]any) bool {
	for key, want := range criterion {
		got, ok := value[key]
		if !ok {
			return false
		}

		if nested, ok := want.(map[string]any); ok {
			gotMap, ok := got.(map[string]any)
			if !ok || !matches(gotMap, nested) {
				return false
			}
			continue
		}

		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
