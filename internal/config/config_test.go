package config_test

import (
	"testing"
	"time"

	"github.com/okian/avatarcast/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 100)
			convey.So(cfg.Synthesis.Primary, convey.ShouldEqual, "elevenlabs")
			convey.So(cfg.Synthesis.Secondary, convey.ShouldEqual, "native")
			convey.So(cfg.SynthesisTimeout(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.PollInterval(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.Scoring.NeutralPrior, convey.ShouldEqual, 50)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When the poll budget is zero", func() {
			cfg.Video.MaxPollAttempts = 0

			convey.Convey("Then validation fails", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the neutral prior is out of range", func() {
			cfg.Scoring.NeutralPrior = 120

			convey.Convey("Then validation fails", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})
	})
}
