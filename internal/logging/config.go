// Package logging configures the process-wide zerolog sink used by every
// core package. It adapts the teacher's env-driven, sync.Once-guarded
// configuration profile directly onto zerolog, since this module has no
// equivalent of the teacher's private smplog wrapper to reach for.
package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "EM_LOG_LEVEL"
	EnvLogTimestamp = "EM_LOG_TIMESTAMP"
	EnvLogNoColor   = "EM_LOG_NOCOLOR"
)

// Profile selects a logging posture.
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var (
	configureOnce sync.Once
	base          zerolog.Logger
)

// ConfigureRuntime applies the runtime logging profile exactly once.
func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

// ConfigureTests applies the test logging profile exactly once.
func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure wires the requested profile into the process-wide logger.
// Only the first call across the process takes effect.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		level, timestamp, noColor := defaultConfig(profile)
		applyEnvOverrides(&level, &timestamp, &noColor)

		zerolog.SetGlobalLevel(level)
		writer := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor}
		if timestamp {
			writer.TimeFormat = time.RFC3339
			base = zerolog.New(writer).With().Timestamp().Logger()
		} else {
			base = zerolog.New(writer)
		}
	})
}

// For returns a component-scoped logger. Configure (or ConfigureRuntime)
// must have run first; if it hasn't, For configures the runtime profile
// so that packages used as a library still get sane default output.
func For(component string) zerolog.Logger {
	ConfigureRuntime()
	return base.With().Str("component", component).Logger()
}

func defaultConfig(profile Profile) (level zerolog.Level, timestamp bool, noColor bool) {
	switch profile {
	case ProfileTest:
		return zerolog.DebugLevel, false, true
	default:
		return zerolog.InfoLevel, true, false
	}
}

func applyEnvOverrides(level *zerolog.Level, timestamp, noColor *bool) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		*level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		*timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		*noColor = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
