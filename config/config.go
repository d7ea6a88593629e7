// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() returns a Config filled with defaults.
//   - Load(ctx) layers defaults, an optional YAML file and PAYROLL_* env vars.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone lookups must not depend on the host's zoneinfo
)

// Fallback policies for students with class-start signals but no ownership record.
const (
	FallbackExclude       = "exclude"
	FallbackFullPeriod    = "full_period"
	FallbackSignalBounded = "signal_bounded"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database path; ":memory:" for an ephemeral store.
	DBPath string `koanf:"db_path"`

	// Timezone is the IANA zone class-start timestamps are interpreted in.
	Timezone string `koanf:"timezone"`

	// IncludeRestDay counts the rest day as a teaching day when true.
	IncludeRestDay bool `koanf:"include_rest_day"`

	// RestDay is the weekday name of the designated rest day.
	RestDay string `koanf:"rest_day"`

	// UnknownPatternFallback resolves unrecognised day-patterns like missing
	// ones (every day subject to the rest-day policy). When false they
	// resolve to no dates at all.
	UnknownPatternFallback bool `koanf:"unknown_pattern_fallback"`

	// FallbackPolicy is one of exclude, full_period, signal_bounded.
	FallbackPolicy string `koanf:"fallback_policy"`

	// BatchConcurrency bounds parallel per-instructor computations.
	BatchConcurrency int `koanf:"batch_concurrency"`

	// InstructorTimeout bounds one instructor's computation inside a batch.
	InstructorTimeout time.Duration `koanf:"instructor_timeout"`

	// WarmupEnabled turns on the cron-driven cache warm-up.
	WarmupEnabled bool `koanf:"warmup_enabled"`

	// WarmupSchedule is a standard 5-field cron expression.
	WarmupSchedule string `koanf:"warmup_schedule"`

	// CORSOrigins lists allowed browser origins for the API.
	CORSOrigins []string `koanf:"cors_origins"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":8080",
		DBPath:                 "compensation.db",
		Timezone:               "Africa/Addis_Ababa",
		IncludeRestDay:         false,
		RestDay:                "sunday",
		UnknownPatternFallback: true,
		FallbackPolicy:         FallbackFullPeriod,
		BatchConcurrency:       8,
		InstructorTimeout:      30 * time.Second,
		WarmupEnabled:          false,
		WarmupSchedule:         "15 * * * *",
		CORSOrigins:            []string{"http://localhost:5173", "http://localhost:8080"},
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// RestWeekday resolves RestDay to a time.Weekday.
func (c *Config) RestWeekday() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(c.RestDay))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		full := strings.ToLower(wd.String())
		if name == full || name == full[:3] {
			return wd, nil
		}
	}
	return time.Sunday, fmt.Errorf("%w: rest_day %q", ErrInvalidConfig, c.RestDay)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	}
	switch c.FallbackPolicy {
	case FallbackExclude, FallbackFullPeriod, FallbackSignalBounded:
	default:
		return fmt.Errorf("%w: fallback_policy %q", ErrInvalidConfig, c.FallbackPolicy)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("%w: batch_concurrency must be positive", ErrInvalidConfig)
	}
	if c.InstructorTimeout <= 0 {
		return fmt.Errorf("%w: instructor_timeout must be positive", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.RestWeekday(); err != nil {
		return err
	}
	return nil
}
