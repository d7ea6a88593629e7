package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/warp/compensation-engine/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.FallbackPolicy, convey.ShouldEqual, config.FallbackFullPeriod)
				convey.So(cfg.IncludeRestDay, convey.ShouldBeFalse)
				convey.So(cfg.UnknownPatternFallback, convey.ShouldBeTrue)
				convey.So(cfg.BatchConcurrency, convey.ShouldEqual, 8)
				convey.So(cfg.InstructorTimeout, convey.ShouldEqual, 30*time.Second)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PAYROLL_ADDR", ":9090")
			_ = os.Setenv("PAYROLL_BATCH_CONCURRENCY", "16")
			_ = os.Setenv("PAYROLL_INCLUDE_REST_DAY", "true")
			_ = os.Setenv("PAYROLL_INSTRUCTOR_TIMEOUT", "5s")
			_ = os.Setenv("PAYROLL_FALLBACK_POLICY", "signal_bounded")
			_ = os.Setenv("PAYROLL_CORS_ORIGINS", "https://a.example,https://b.example")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.BatchConcurrency, convey.ShouldEqual, 16)
				convey.So(cfg.IncludeRestDay, convey.ShouldBeTrue)
				convey.So(cfg.InstructorTimeout, convey.ShouldEqual, 5*time.Second)
				convey.So(cfg.FallbackPolicy, convey.ShouldEqual, config.FallbackSignalBounded)
				convey.So(cfg.CORSOrigins, convey.ShouldResemble, []string{"https://a.example", "https://b.example"})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":7070"
timezone: "UTC"
rest_day: "friday"
batch_concurrency: 4
warmup_enabled: true
warmup_schedule: "0 2 * * *"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("PAYROLL_CONFIG", tmpFile)
			_ = os.Setenv("PAYROLL_BATCH_CONCURRENCY", "2")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env still wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.Timezone, convey.ShouldEqual, "UTC")
				convey.So(cfg.WarmupEnabled, convey.ShouldBeTrue)
				convey.So(cfg.WarmupSchedule, convey.ShouldEqual, "0 2 * * *")
				convey.So(cfg.BatchConcurrency, convey.ShouldEqual, 2)

				wd, err := cfg.RestWeekday()
				convey.So(err, convey.ShouldBeNil)
				convey.So(wd, convey.ShouldEqual, time.Friday)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("PAYROLL_CONFIG", "/nonexistent/payroll.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should fail with a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a value is invalid", func() {
			_ = os.Setenv("PAYROLL_FALLBACK_POLICY", "generous")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the timezone is unknown", func() {
			_ = os.Setenv("PAYROLL_TIMEZONE", "Mars/Olympus_Mons")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"PAYROLL_CONFIG", "PAYROLL_ADDR", "PAYROLL_BATCH_CONCURRENCY", "PAYROLL_INCLUDE_REST_DAY",
		"PAYROLL_INSTRUCTOR_TIMEOUT", "PAYROLL_FALLBACK_POLICY", "PAYROLL_CORS_ORIGINS", "PAYROLL_TIMEZONE",
	} {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "payroll-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	return f.Name()
}
