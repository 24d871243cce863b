package source_test

import (
	"encoding/base64"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mozilla/fxa-amplitude-send/internal/adapters/mq/source"
)

func TestDecodePayload(t *testing.T) {
	Convey("Given raw message bodies", t, func() {
		Convey("When the body is a JSON envelope", func() {
			payload := source.DecodePayload([]byte(`{"jsonPayload":{"event_type":"e","time":1}}`))

			Convey("Then jsonPayload should be extracted", func() {
				So(string(payload), ShouldEqual, `{"event_type":"e","time":1}`)
			})
		})

		Convey("When the body is base64 of a JSON envelope", func() {
			encoded := base64.StdEncoding.EncodeToString([]byte(`{"jsonPayload":{"event_type":"e"}}`))
			payload := source.DecodePayload([]byte(encoded))

			Convey("Then it should be decoded and extracted", func() {
				So(string(payload), ShouldEqual, `{"event_type":"e"}`)
			})
		})

		Convey("When the body is base64 of a bare event", func() {
			encoded := base64.StdEncoding.EncodeToString([]byte(`{"event_type":"e"}`))
			payload := source.DecodePayload([]byte(encoded))

			Convey("Then the decoded bytes should pass through", func() {
				So(string(payload), ShouldEqual, `{"event_type":"e"}`)
			})
		})

		Convey("When the body is neither", func() {
			payload := source.DecodePayload([]byte(`{"event_type":"plain"}`))

			Convey("Then it should pass through unchanged", func() {
				So(string(payload), ShouldEqual, `{"event_type":"plain"}`)
			})
		})
	})
}
