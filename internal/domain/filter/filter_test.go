package filter_test

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mozilla/fxa-amplitude-send/internal/domain/event"
	"github.com/mozilla/fxa-amplitude-send/internal/domain/filter"
)

func TestParseRules(t *testing.T) {
	Convey("Given ignore-list configuration", t, func() {
		Convey("When the JSON is valid", func() {
			f, err := filter.ParseRules(`{"fxa_activity - access_token_checked":[{"event_properties":{"oauth_client_id":"deadbeef"}}]}`)

			Convey("Then parsing should succeed", func() {
				So(err, ShouldBeNil)
				So(f, ShouldNotBeNil)
			})
		})

		Convey("When the JSON is empty", func() {
			f, err := filter.ParseRules("")

			Convey("Then an empty filter should be produced", func() {
				So(err, ShouldBeNil)
				So(f.Ignore(event.Event{"event_type": "anything"}), ShouldBeFalse)
			})
		})

		Convey("When the JSON is broken", func() {
			f, err := filter.ParseRules(`{broken`)

			Convey("Then parsing should fail", func() {
				So(f, ShouldBeNil)
				So(errors.Is(err, filter.ErrInvalidRules), ShouldBeTrue)
			})
		})
	})
}

func TestIgnore(t *testing.T) {
	f, err := filter.ParseRules(`{
		"fxa_activity - access_token_checked": [
			{"event_properties": {"oauth_client_id": "deadbeef"}},
			{"event_properties": {"oauth_client_id": "cafebabe"}}
		]
	}`)
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}

	Convey("Given the access_token_checked ignore list", t, func() {
		Convey("When the event matches a criterion", func() {
			ev := event.Event{
				"event_type": "fxa_activity - access_token_checked",
				"event_properties": map[string]any{
					"oauth_client_id": "deadbeef",
					"service":         "sync",
				},
			}

			Convey("Then it should be dropped", func() {
				So(f.Ignore(ev), ShouldBeTrue)
			})
		})

		Convey("When the event matches the second criterion", func() {
			ev := event.Event{
				"event_type": "fxa_activity - access_token_checked",
				"event_properties": map[string]any{
					"oauth_client_id": "cafebabe",
				},
			}

			Convey("Then it should be dropped", func() {
				So(f.Ignore(ev), ShouldBeTrue)
			})
		})

		Convey("When the property differs", func() {
			ev := event.Event{
				"event_type": "fxa_activity - access_token_checked",
				"event_properties": map[string]any{
					"oauth_client_id": "other",
				},
			}

			Convey("Then it should pass", func() {
				So(f.Ignore(ev), ShouldBeFalse)
			})
		})

		Convey("When the criterion key is absent from the event", func() {
			ev := event.Event{
				"event_type": "fxa_activity - access_token_checked",
			}

			Convey("Then it should pass", func() {
				So(f.Ignore(ev), ShouldBeFalse)
			})
		})

		Convey("When the event type has no configured criteria", func() {
			ev := event.Event{
				"event_type": "fxa_login - success",
				"event_properties": map[string]any{
					"oauth_client_id": "deadbeef",
				},
			}

			Convey("Then it should never be filtered", func() {
				So(f.Ignore(ev), ShouldBeFalse)
			})
		})
	})
}

func TestIgnoreRecursiveMatching(t *testing.T) {
	Convey("Given a deeply nested criterion", t, func() {
		f := filter.New(map[string][]filter.Criterion{
			"e": {
				{"user_properties": map[string]any{
					"$set": map[string]any{"plan": "free"},
				}},
			},
		})

		Convey("When nested values match and siblings differ", func() {
			ev := event.Event{
				"event_type": "e",
				"user_properties": map[string]any{
					"$set":  map[string]any{"plan": "free", "extra": "ignored"},
					"other": "also ignored",
				},
			}

			Convey("Then unspecified keys should act as wildcards", func() {
				So(f.Ignore(ev), ShouldBeTrue)
			})
		})

		Convey("When the nested value differs", func() {
			ev := event.Event{
				"event_type": "e",
				"user_properties": map[string]any{
					"$set": map[string]any{"plan": "paid"},
				},
			}

			Convey("Then it should pass", func() {
				So(f.Ignore(ev), ShouldBeFalse)
			})
		})

		Convey("When the nested shape is not a mapping", func() {
			ev := event.Event{
				"event_type":      "e",
				"user_properties": "not a map",
			}

			Convey("Then it should pass", func() {
				So(f.Ignore(ev), ShouldBeFalse)
			})
		})
	})
}
