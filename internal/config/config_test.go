package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/andresmejia3/veriface/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Backend, convey.ShouldEqual, config.BackendPostgres)
			convey.So(cfg.Profile, convey.ShouldEqual, "v1")
			convey.So(cfg.Workers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.EmbedTimeout, convey.ShouldEqual, 60*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the attendance cutoff is 9:00 in Manila", func() {
			h, m, err := cfg.Cutoff()
			convey.So(err, convey.ShouldBeNil)
			convey.So(h, convey.ShouldEqual, 9)
			convey.So(m, convey.ShouldEqual, 0)
			loc, err := cfg.Location()
			convey.So(err, convey.ShouldBeNil)
			convey.So(loc.String(), convey.ShouldEqual, "Asia/Manila")
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid settings", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"backend", func(c *config.Config) { c.Backend = "mongo" }},
			{"profile", func(c *config.Config) { c.Profile = "v9" }},
			{"workers", func(c *config.Config) { c.Workers = 0 }},
			{"embed_workers", func(c *config.Config) { c.EmbedWorkers = -1 }},
			{"max_image_size", func(c *config.Config) { c.MaxImageSize = -1 }},
			{"dimensions", func(c *config.Config) { c.Dimensions = -128 }},
			{"timezone", func(c *config.Config) { c.Timezone = "Mars/Olympus" }},
			{"late_after", func(c *config.Config) { c.LateAfter = "9am" }},
			{"log_level", func(c *config.Config) { c.LogLevel = "chatty" }},
			{"sqlite_path", func(c *config.Config) {
				c.Backend = config.BackendSQLite
				c.SQLitePath = ""
			}},
			{"embed_timeout", func(c *config.Config) { c.EmbedTimeout = -time.Second }},
		}

		for _, tc := range cases {
			cfg := config.New()
			tc.mutate(cfg)

			convey.Convey("Then "+tc.name+" is rejected as invalid", func() {
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}

func TestConfig_BiometricProfile(t *testing.T) {
	convey.Convey("Given a dimension override", t, func() {
		cfg := config.New()
		cfg.Dimensions = 512

		p, err := cfg.BiometricProfile()

		convey.Convey("Then the profile expects that length", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(p.Name, convey.ShouldEqual, "v1")
			convey.So(p.Dimensions, convey.ShouldEqual, 512)
		})
	})

	convey.Convey("Given no override", t, func() {
		p, err := config.New().BiometricProfile()

		convey.Convey("Then the profile keeps its own dimension", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(p.Dimensions, convey.ShouldEqual, 128)
		})
	})
}
