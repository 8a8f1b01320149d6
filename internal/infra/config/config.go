package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logger   LoggerConfig  `yaml:"logger"`
	Tracer   TracerConfig  `yaml:"tracer"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Bridge   BridgeConfig  `yaml:"bridge"`
	Storage  StorageConfig `yaml:"storage"`
	Window   WindowConfig  `yaml:"window"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Includes []string      `yaml:"includes,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, file path, or daily:<dir>
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // noop, stdout
	SampleRatio float64 `yaml:"sample_ratio"`
}

// GatewayConfig holds the WebSocket host settings.
type GatewayConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
	// Token guards /ws when set. Values prefixed with "enc:" are decrypted
	// with MEDHELPER_CONFIG_KEY at load time.
	Token             string  `yaml:"token"`
	SendBuffer        int     `yaml:"send_buffer"`
	ReadLimit         int64   `yaml:"read_limit"`
	FramesPerSecond   float64 `yaml:"frames_per_second"`
	Burst             int     `yaml:"burst"`
	UpgradesPerMinute int     `yaml:"upgrades_per_minute"`
}

// BridgeConfig holds client-side call settings.
type BridgeConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds the identifier database settings.
type StorageConfig struct {
	Path    string        `yaml:"path"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the database.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// WindowConfig controls the optional browser app window.
type WindowConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ChromePath string `yaml:"chrome_path"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
}

// MetricsConfig controls the in-memory go-metrics sink.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Retain   time.Duration `yaml:"retain"`
}

// defaultDataDir returns $HOME/.medhelper, or "./data" without a home.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".medhelper")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "daily:" + filepath.Join(dataDir, "logs"),
		},
		Tracer: TracerConfig{
			Enabled:     false,
			Exporter:    "noop",
			SampleRatio: 1,
		},
		Gateway: GatewayConfig{
			Addr:              "127.0.0.1:8765",
			StaticDir:         "./web",
			SendBuffer:        64,
			ReadLimit:         64 * 1024,
			FramesPerSecond:   50,
			Burst:             100,
			UpgradesPerMinute: 30,
		},
		Bridge: BridgeConfig{
			RequestTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Path: filepath.Join(dataDir, "medical-helper.db"),
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Window: WindowConfig{
			Enabled: false,
			Width:   1024,
			Height:  768,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Interval: 10 * time.Second,
			Retain:   time.Minute,
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}
		// The main file wins over anything it includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if err := decryptSecrets(cfg, os.Getenv("MEDHELPER_CONFIG_KEY")); err != nil {
		return nil, fmt.Errorf("decrypt secrets: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps MEDHELPER_* env vars to config fields. Values
// that fail to parse are ignored and the previous setting is kept.
func ApplyEnvOverrides(cfg *Config) {
	setString("MEDHELPER_LOGGER_LEVEL", &cfg.Logger.Level)
	setString("MEDHELPER_LOGGER_FORMAT", &cfg.Logger.Format)
	setString("MEDHELPER_LOGGER_OUTPUT", &cfg.Logger.Output)

	setBool("MEDHELPER_TRACER_ENABLED", &cfg.Tracer.Enabled)
	setString("MEDHELPER_TRACER_EXPORTER", &cfg.Tracer.Exporter)
	if v, ok := lookup("MEDHELPER_TRACER_SAMPLE_RATIO"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracer.SampleRatio = f
		}
	}

	setString("MEDHELPER_GATEWAY_ADDR", &cfg.Gateway.Addr)
	setString("MEDHELPER_GATEWAY_STATIC_DIR", &cfg.Gateway.StaticDir)
	setString("MEDHELPER_GATEWAY_TOKEN", &cfg.Gateway.Token)
	if v, ok := lookup("MEDHELPER_GATEWAY_FRAMES_PER_SECOND"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Gateway.FramesPerSecond = f
		}
	}

	setDuration("MEDHELPER_BRIDGE_REQUEST_TIMEOUT", &cfg.Bridge.RequestTimeout)

	setString("MEDHELPER_STORAGE_PATH", &cfg.Storage.Path)

	setBool("MEDHELPER_WINDOW_ENABLED", &cfg.Window.Enabled)
	setString("MEDHELPER_WINDOW_CHROME_PATH", &cfg.Window.ChromePath)

	setBool("MEDHELPER_METRICS_ENABLED", &cfg.Metrics.Enabled)
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func setString(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setBool(key string, dst *bool) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// 0600 and 0644 are fine; group/other write is not.
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
