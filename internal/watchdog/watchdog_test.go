package watchdog_test

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mozilla/fxa-amplitude-send/internal/watchdog"
	"github.com/mozilla/fxa-amplitude-send/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func TestWatchdog(t *testing.T) {
	Convey("Given a watchdog with a short idle timeout", t, func() {
		var fired atomic.Int32

		Convey("When no reset arrives within the timeout", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			w := watchdog.New(
				watchdog.WithIdleTimeout(30*time.Millisecond),
				watchdog.WithOnFire(func(context.Context) { fired.Add(1) }),
			)
			w.Start(ctx)
			time.Sleep(100 * time.Millisecond)

			Convey("Then it should fire", func() {
				So(fired.Load(), ShouldEqual, 1)
			})
		})

		Convey("When resets keep arriving", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			w := watchdog.New(
				watchdog.WithIdleTimeout(50*time.Millisecond),
				watchdog.WithOnFire(func(context.Context) { fired.Add(1) }),
			)
			w.Start(ctx)
			for i := 0; i < 5; i++ {
				time.Sleep(20 * time.Millisecond)
				w.Reset()
			}

			Convey("Then it should not fire while active", func() {
				So(fired.Load(), ShouldEqual, 0)
			})
		})

		Convey("When the watchdog is stopped", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			w := watchdog.New(
				watchdog.WithIdleTimeout(30*time.Millisecond),
				watchdog.WithOnFire(func(context.Context) { fired.Add(1) }),
			)
			w.Start(ctx)
			w.Stop()
			time.Sleep(100 * time.Millisecond)

			Convey("Then it should stay silent", func() {
				So(fired.Load(), ShouldEqual, 0)
			})
		})

		Convey("When the context is canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())

			w := watchdog.New(
				watchdog.WithIdleTimeout(30*time.Millisecond),
				watchdog.WithOnFire(func(context.Context) { fired.Add(1) }),
			)
			w.Start(ctx)
			cancel()
			time.Sleep(100 * time.Millisecond)

			Convey("Then it should disarm", func() {
				So(fired.Load(), ShouldEqual, 0)
			})
		})
	})
}
