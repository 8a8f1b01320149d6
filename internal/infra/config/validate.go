package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateGateway(cfg, ve)
	validateBridge(cfg, ve)
	validateStorage(cfg, ve)
	validateWindow(cfg, ve)
	validateMetrics(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q must be one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
	if dir, ok := strings.CutPrefix(cfg.Logger.Output, "daily:"); ok && strings.TrimSpace(dir) == "" {
		ve.Add("logger.output daily: requires a directory")
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q must be noop or stdout", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.SampleRatio < 0 || cfg.Tracer.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio must be between 0 and 1")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	g := cfg.Gateway
	if g.Addr == "" {
		ve.Add("gateway.addr is required")
	} else if _, _, err := net.SplitHostPort(g.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", g.Addr)
	}
	if g.SendBuffer <= 0 {
		ve.Add("gateway.send_buffer must be > 0")
	}
	if g.ReadLimit <= 0 {
		ve.Add("gateway.read_limit must be > 0")
	}
	if g.FramesPerSecond > 0 && g.Burst <= 0 {
		ve.Add("gateway.burst must be > 0 when frames_per_second is set")
	}
	if g.UpgradesPerMinute < 0 {
		ve.Add("gateway.upgrades_per_minute must be >= 0")
	}
}

func validateBridge(cfg *Config, ve *ValidationError) {
	if cfg.Bridge.RequestTimeout <= 0 {
		ve.Add("bridge.request_timeout must be > 0")
	}
}

func validateStorage(cfg *Config, ve *ValidationError) {
	if cfg.Storage.Path == "" {
		ve.Add("storage.path is required")
	}
	b := cfg.Storage.Breaker
	if b.MaxFailures == 0 {
		ve.Add("storage.breaker.max_failures must be > 0")
	}
	if b.Timeout <= 0 {
		ve.Add("storage.breaker.timeout must be > 0")
	}
	if b.Interval < 0 {
		ve.Add("storage.breaker.interval must be >= 0")
	}
}

func validateWindow(cfg *Config, ve *ValidationError) {
	if !cfg.Window.Enabled {
		return
	}
	if cfg.Window.Width <= 0 || cfg.Window.Height <= 0 {
		ve.Add("window.width and window.height must be > 0 when the window is enabled")
	}
}

func validateMetrics(cfg *Config, ve *ValidationError) {
	if !cfg.Metrics.Enabled {
		return
	}
	if cfg.Metrics.Interval <= 0 {
		ve.Add("metrics.interval must be > 0")
	}
	if cfg.Metrics.Retain < cfg.Metrics.Interval {
		ve.Add("metrics.retain must be >= metrics.interval")
	}
}
