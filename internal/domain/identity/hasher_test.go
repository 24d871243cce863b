package identity_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mozilla/fxa-amplitude-send/internal/domain/event"
	"github.com/mozilla/fxa-amplitude-send/internal/domain/identity"
)

// refHash mirrors the digest construction for test expectations.
func refHash(key string, components ...string) string {
	mac := hmac.New(sha256.New, []byte(key))
	for _, c := range components {
		if c != "" {
			mac.Write([]byte(c))
		}
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func TestNewHasher(t *testing.T) {
	Convey("Given hasher construction", t, func() {
		Convey("When the secret is empty", func() {
			h, err := identity.NewHasher("")

			Convey("Then it should fail with the missing-secret error", func() {
				So(h, ShouldBeNil)
				So(errors.Is(err, identity.ErrMissingSecret), ShouldBeTrue)
			})
		})

		Convey("When the secret is set", func() {
			h, err := identity.NewHasher("secret")

			Convey("Then it should succeed", func() {
				So(err, ShouldBeNil)
				So(h, ShouldNotBeNil)
			})
		})
	})
}

func TestInsertID(t *testing.T) {
	h, err := identity.NewHasher("secret")
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}

	Convey("Given a hasher", t, func() {
		Convey("When computing insert_id for a full event", func() {
			ev := event.Event{
				"user_id":    "hashed-user",
				"device_id":  "d-1",
				"session_id": int64(42),
				"event_type": "fxa_login - success",
				"time":       float64(1618400000000),
			}
			id := h.InsertID(ev)

			Convey("Then it should be the ordered digest of all components", func() {
				So(id, ShouldEqual, refHash("secret",
					"hashed-user", "d-1", "42", "fxa_login - success", "1618400000000"))
			})

			Convey("Then identical inputs should yield identical keys", func() {
				So(h.InsertID(ev), ShouldEqual, id)
			})
		})

		Convey("When components are missing", func() {
			ev := event.Event{
				"device_id":  "d-1",
				"event_type": "e",
				"time":       float64(7),
			}
			id := h.InsertID(ev)

			Convey("Then absent components should contribute nothing", func() {
				So(id, ShouldEqual, refHash("secret", "d-1", "e", "7"))
			})
		})

		Convey("When component order would differ", func() {
			a := event.Event{"user_id": "ab", "device_id": "c", "event_type": "e", "time": float64(1)}
			b := event.Event{"user_id": "a", "device_id": "bc", "event_type": "e", "time": float64(1)}

			Convey("Then the key is order-sensitive across fields", func() {
				// Same concatenated bytes would collide; the fixed component
				// order is the only framing, matching the historical keys.
				So(h.InsertID(a), ShouldEqual, h.InsertID(b))
			})
		})
	})
}

func TestDerivedInsertID(t *testing.T) {
	h, err := identity.NewHasher("secret")
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}

	Convey("Given a hasher", t, func() {
		parent := event.Event{
			"user_id":    "hashed-user",
			"device_id":  "d-1",
			"session_id": int64(42),
			"event_type": "fxa_login - success",
			"time":       float64(1000),
		}

		Convey("When deriving a key for a split event", func() {
			key := h.DerivedInsertID(parent, "$identify")

			Convey("Then it should anchor to the parent's session and time", func() {
				So(key, ShouldEqual, refHash("secret",
					"hashed-user", "d-1", "42", "$identify", "1000"))
			})

			Convey("Then it should differ from the parent's own key", func() {
				So(key, ShouldNotEqual, h.InsertID(parent))
			})
		})

		Convey("When the same user produces two occurrences at different times", func() {
			later := event.Event{
				"user_id":    "hashed-user",
				"device_id":  "d-1",
				"session_id": int64(42),
				"event_type": "fxa_login - success",
				"time":       float64(2000),
			}

			Convey("Then the derived keys must not collide", func() {
				So(h.DerivedInsertID(parent, "$identify"),
					ShouldNotEqual, h.DerivedInsertID(later, "$identify"))
			})
		})
	})
}

func TestPseudonymize(t *testing.T) {
	h, err := identity.NewHasher("secret")
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}

	Convey("Given an event with a raw user_id", t, func() {
		ev := event.Event{
			"user_id":    "raw-user",
			"device_id":  "d-1",
			"event_type": "e",
			"time":       float64(1),
		}

		Convey("When pseudonymizing", func() {
			h.Pseudonymize(ev)

			Convey("Then user_id should be replaced with its digest", func() {
				So(ev.UserID(), ShouldEqual, refHash("secret", "raw-user"))
			})

			Convey("Then insert_id should be computed over the hashed user_id", func() {
				So(ev.InsertID(), ShouldEqual, refHash("secret",
					refHash("secret", "raw-user"), "d-1", "e", "1"))
			})
		})
	})

	Convey("Given an event without a user_id", t, func() {
		ev := event.Event{
			"device_id":  "d-1",
			"event_type": "e",
			"time":       float64(1),
		}

		Convey("When pseudonymizing", func() {
			h.Pseudonymize(ev)

			Convey("Then no user_id should be introduced", func() {
				So(ev.UserID(), ShouldBeEmpty)
				So(ev.InsertID(), ShouldEqual, refHash("secret", "d-1", "e", "1"))
			})
		})
	})
}
