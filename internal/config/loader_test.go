package config_test

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/okian/guardline/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.WindowSize, convey.ShouldEqual, 10)
			convey.So(cfg.EscalationThreshold, convey.ShouldEqual, 60)
			convey.So(cfg.DuplicateArmPolicy, convey.ShouldEqual, "supersede")
			convey.So(cfg.Validate(), convey.ShouldBeNil)

			g, r, s := cfg.StageDelays()
			convey.So(g, convey.ShouldEqual, time.Second)
			convey.So(r, convey.ShouldEqual, 1500*time.Millisecond)
			convey.So(s, convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.HeartbeatInterval(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.Zones(), convey.ShouldHaveLength, 2)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
				convey.So(cfg.RedisAddr, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("GUARDLINE_ADDR", ":9090")
			_ = os.Setenv("GUARDLINE_WORKER_COUNT", "16")
			_ = os.Setenv("GUARDLINE_ESCALATION_THRESHOLD", "70")
			_ = os.Setenv("GUARDLINE_DUPLICATE_ARM_POLICY", "suppress")
			_ = os.Setenv("GUARDLINE_CLIENT_RATE_LIMIT", "5.5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.EscalationThreshold, convey.ShouldEqual, 70)
				convey.So(cfg.DuplicateArmPolicy, convey.ShouldEqual, "suppress")
				convey.So(cfg.ClientRateLimit, convey.ShouldEqual, 5.5)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":7070"
window_size: 5
timezone: "UTC"
event_weights:
  fall: 50
risk_zones:
  - name: "Harbour"
    lat: 51.5
    lng: -0.1
    radius_km: 3
    risk: 18
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GUARDLINE_CONFIG", tmpFile)
			_ = os.Setenv("GUARDLINE_WINDOW_SIZE", "7")

			cfg, err := config.Load(ctx)

			convey.Convey("Then the file applies and env still wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.WindowSize, convey.ShouldEqual, 7)
				convey.So(cfg.EventWeights["fall"], convey.ShouldEqual, 50)

				loc, err := cfg.Location()
				convey.So(err, convey.ShouldBeNil)
				convey.So(loc, convey.ShouldEqual, time.UTC)

				zones := cfg.Zones()
				convey.So(zones, convey.ShouldHaveLength, 1)
				convey.So(zones[0].Name, convey.ShouldEqual, "Harbour")
				convey.So(zones[0].RadiusKm, convey.ShouldEqual, 3)
				convey.So(zones[0].Risk, convey.ShouldEqual, 18)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("GUARDLINE_CONFIG", "/nonexistent/guardline.yaml")

			_, err := config.Load(ctx)

			convey.Convey("Then a load error is returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a loaded value is invalid", func() {
			_ = os.Setenv("GUARDLINE_DUPLICATE_ARM_POLICY", "debounce")

			_, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with one bad field each", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":          func(c *config.Config) { c.Addr = "" },
			"no workers":          func(c *config.Config) { c.WorkerCount = 0 },
			"threshold too high":  func(c *config.Config) { c.EscalationThreshold = 101 },
			"decreasing delays":   func(c *config.Config) { c.ServicesDelayMS = 10 },
			"unknown timezone":    func(c *config.Config) { c.Timezone = "Mars/Olympus" },
			"zone without radius": func(c *config.Config) { c.RiskZones = append(c.RiskZones, c.Zones()[0]); c.RiskZones[0].RadiusKm = 0 },
			"no rate limit":       func(c *config.Config) { c.ClientRateLimit = 0 },
			"zero window":         func(c *config.Config) { c.WindowSize = 0 },
			"zero heartbeat":      func(c *config.Config) { c.HeartbeatIntervalMS = 0 },
			"zero queue":          func(c *config.Config) { c.QueueSize = 0 },
			"zero audit buffer":   func(c *config.Config) { c.AuditBufferSize = 0 },
			"breaker never trips": func(c *config.Config) { c.BreakerFailureThreshold = 0 },
		}

		convey.Convey("Then each is rejected as invalid", func() {
			for name, mutate := range cases {
				cfg := config.New()
				mutate(cfg)
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				if err == nil {
					t.Errorf("%s: expected an error", name)
				}
			}
		})

		convey.Convey("Then timezone and zone failures carry their own kind", func() {
			cfg := config.New()
			cfg.Timezone = "Mars/Olympus"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidTimezone), convey.ShouldBeTrue)

			cfg = config.New()
			cfg.RiskZones = append(cfg.RiskZones, cfg.Zones()[0])
			cfg.RiskZones[0].Risk = -1
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidZone), convey.ShouldBeTrue)
		})
	})
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix) {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "guardline-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
