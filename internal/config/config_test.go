package config_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mozilla/fxa-amplitude-send/internal/config"
)

func TestNewDefaults(t *testing.T) {
	Convey("Given a default config", t, func() {
		cfg := config.New()

		Convey("Then pipeline defaults should be sane", func() {
			So(cfg.LogLevel, ShouldEqual, "info")
			So(cfg.EndpointMode, ShouldEqual, config.ModeSplit)
			So(cfg.MaxEventsPerBatch, ShouldBeGreaterThan, 0)
			So(cfg.WorkerCount, ShouldBeGreaterThan, 0)
			So(cfg.MaxRetries, ShouldBeGreaterThan, 0)
			So(cfg.RetryBackoff, ShouldEqual, 15*time.Second)
			So(cfg.NackDelayMin, ShouldBeLessThanOrEqualTo, cfg.NackDelayMax)
			So(cfg.StaleThreshold, ShouldBeGreaterThan, 0)
			So(cfg.OpsAddr, ShouldNotBeEmpty)
		})

		Convey("Then secrets should be empty until supplied", func() {
			So(cfg.APIKey, ShouldBeEmpty)
			So(cfg.HMACKey, ShouldBeEmpty)
		})
	})
}
