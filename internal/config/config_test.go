package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/pss/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.UDPBind, convey.ShouldEqual, "0.0.0.0")
			convey.So(cfg.UDPPort, convey.ShouldEqual, 6000)
			convey.So(cfg.ProtocolVersion, convey.ShouldEqual, "2.3")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.OverrideBufferSize, convey.ShouldEqual, 128)
			convey.So(cfg.DrainTimeout(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given configs that break invariants", t, func() {
		cases := map[string]func(*config.Config){
			"port":     func(c *config.Config) { c.UDPPort = 70000 },
			"queue":    func(c *config.Config) { c.QueueSize = 0 },
			"version":  func(c *config.Config) { c.ProtocolVersion = "" },
			"hub":      func(c *config.Config) { c.HubBuffer = -1 },
			"datagram": func(c *config.Config) { c.MaxDatagramSize = 0 },
		}
		for name, mutate := range cases {
			convey.Convey("When the "+name+" setting is invalid", func() {
				cfg := config.New()
				mutate(cfg)
				err := cfg.Validate()

				convey.Convey("Then validation should fail with ErrInvalidConfig", func() {
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}
	})
}
