package ack_test

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mozilla/fxa-amplitude-send/internal/domain/ack"
)

// fakeMessage counts dispositions.
type fakeMessage struct {
	acks  atomic.Int64
	nacks atomic.Int64

	mu        sync.Mutex
	nackDelay time.Duration
}

func (m *fakeMessage) Ack() { m.acks.Add(1) }

func (m *fakeMessage) Nack(delay time.Duration) {
	m.nacks.Add(1)
	m.mu.Lock()
	m.nackDelay = delay
	m.mu.Unlock()
}

func (m *fakeMessage) lastNackDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nackDelay
}

func TestMarkDelivered(t *testing.T) {
	Convey("Given a correlator", t, func() {
		c := ack.New()

		Convey("When a single-event message is delivered", func() {
			msg := &fakeMessage{}
			c.Register(msg, "key-1")
			c.MarkDelivered("key-1")

			Convey("Then the message should be acked exactly once", func() {
				So(msg.acks.Load(), ShouldEqual, 1)
				So(msg.nacks.Load(), ShouldEqual, 0)
				So(c.Size(), ShouldEqual, 0)
			})
		})

		Convey("When a two-event message is partially delivered", func() {
			msg := &fakeMessage{}
			c.Register(msg, "primary", "identify")
			c.MarkDelivered("identify")

			Convey("Then the message should still be pending", func() {
				So(msg.acks.Load(), ShouldEqual, 0)
				So(c.Size(), ShouldEqual, 1)
			})

			Convey("And when the sibling is delivered too", func() {
				c.MarkDelivered("primary")

				Convey("Then the message should be acked once", func() {
					So(msg.acks.Load(), ShouldEqual, 1)
					So(c.Size(), ShouldEqual, 0)
				})
			})
		})

		Convey("When marking an unknown key", func() {
			c.MarkDelivered("never-registered")

			Convey("Then nothing should happen", func() {
				So(c.Size(), ShouldEqual, 0)
			})
		})
	})
}

func TestMarkFailed(t *testing.T) {
	Convey("Given a correlator with a tight nack window", t, func() {
		c := ack.New(ack.WithNackDelayWindow(time.Second, 2*time.Second))

		Convey("When one of two derived events fails permanently", func() {
			msg := &fakeMessage{}
			c.Register(msg, "primary", "identify")
			c.MarkDelivered("identify")
			c.MarkFailed("primary")

			Convey("Then the message should be nacked exactly once", func() {
				So(msg.nacks.Load(), ShouldEqual, 1)
				So(msg.acks.Load(), ShouldEqual, 0)
				So(c.Size(), ShouldEqual, 0)
			})

			Convey("Then the nack delay should fall inside the window", func() {
				So(msg.lastNackDelay(), ShouldBeGreaterThanOrEqualTo, time.Second)
				So(msg.lastNackDelay(), ShouldBeLessThanOrEqualTo, 2*time.Second)
			})
		})

		Convey("When a failure precedes a sibling's success", func() {
			msg := &fakeMessage{}
			c.Register(msg, "primary", "identify")
			c.MarkFailed("identify")
			c.MarkDelivered("primary")

			Convey("Then the late sibling completion should be a no-op", func() {
				So(msg.nacks.Load(), ShouldEqual, 1)
				So(msg.acks.Load(), ShouldEqual, 0)
			})
		})

		Convey("When both derived events fail", func() {
			msg := &fakeMessage{}
			c.Register(msg, "primary", "identify")
			c.MarkFailed("primary")
			c.MarkFailed("identify")

			Convey("Then the message should be nacked exactly once", func() {
				So(msg.nacks.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestConcurrentDisposal(t *testing.T) {
	Convey("Given many messages completing concurrently", t, func() {
		c := ack.New(ack.WithNackDelayWindow(time.Millisecond, 2*time.Millisecond))

		const messages = 200
		msgs := make([]*fakeMessage, messages)
		for i := range msgs {
			msgs[i] = &fakeMessage{}
			c.Register(msgs[i], key(i, "primary"), key(i, "identify"))
		}

		var wg sync.WaitGroup
		for i := range msgs {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				c.MarkDelivered(key(i, "primary"))
			}(i)
			go func(i int) {
				defer wg.Done()
				if i%3 == 0 {
					c.MarkFailed(key(i, "identify"))
				} else {
					c.MarkDelivered(key(i, "identify"))
				}
			}(i)
		}
		wg.Wait()

		Convey("Then every message should get exactly one disposition", func() {
			So(c.Size(), ShouldEqual, 0)
			for i, msg := range msgs {
				total := msg.acks.Load() + msg.nacks.Load()
				So(total, ShouldEqual, 1)
				if i%3 == 0 {
					So(msg.nacks.Load(), ShouldEqual, 1)
				}
			}
		})
	})
}

func key(i int, class string) string {
	return class + "-" + strconv.Itoa(i)
}
