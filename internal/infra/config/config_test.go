package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Bridge.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.Bridge.RequestTimeout)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
	if !strings.HasPrefix(cfg.Logger.Output, "daily:") {
		t.Errorf("Logger.Output = %q, want a daily: target", cfg.Logger.Output)
	}
	assert.Equal(t, uint32(5), cfg.Storage.Breaker.MaxFailures)
	assert.Equal(t, "medical-helper.db", filepath.Base(cfg.Storage.Path))
	assert.False(t, cfg.Window.Enabled)
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Addr != Defaults().Gateway.Addr {
		t.Errorf("expected defaults, got Addr=%q", cfg.Gateway.Addr)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
logger:
  level: "debug"
  output: "stderr"
gateway:
  addr: "127.0.0.1:9900"
  frames_per_second: 5
  burst: 10
bridge:
  request_timeout: 3s
storage:
  path: "`+filepath.Join(dir, "ids.db")+`"
  breaker:
    max_failures: 2
window:
  enabled: true
  chrome_path: "/opt/chrome"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "127.0.0.1:9900", cfg.Gateway.Addr)
	assert.Equal(t, 5.0, cfg.Gateway.FramesPerSecond)
	assert.Equal(t, 3*time.Second, cfg.Bridge.RequestTimeout)
	assert.Equal(t, uint32(2), cfg.Storage.Breaker.MaxFailures)
	// Untouched nested fields keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Storage.Breaker.Timeout)
	assert.True(t, cfg.Window.Enabled)
	assert.Equal(t, 1024, cfg.Window.Width)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEDHELPER_LOGGER_LEVEL", "debug")
	t.Setenv("MEDHELPER_GATEWAY_ADDR", "127.0.0.1:1")
	t.Setenv("MEDHELPER_BRIDGE_REQUEST_TIMEOUT", "250ms")
	t.Setenv("MEDHELPER_TRACER_ENABLED", "true")
	t.Setenv("MEDHELPER_TRACER_SAMPLE_RATIO", "0.25")
	t.Setenv("MEDHELPER_WINDOW_ENABLED", "1")
	t.Setenv("MEDHELPER_GATEWAY_FRAMES_PER_SECOND", "12.5")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "127.0.0.1:1", cfg.Gateway.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Bridge.RequestTimeout)
	assert.True(t, cfg.Tracer.Enabled)
	assert.Equal(t, 0.25, cfg.Tracer.SampleRatio)
	assert.True(t, cfg.Window.Enabled)
	assert.Equal(t, 12.5, cfg.Gateway.FramesPerSecond)
}

func TestEnvOverridesIgnoreUnparsable(t *testing.T) {
	t.Setenv("MEDHELPER_BRIDGE_REQUEST_TIMEOUT", "soon")
	t.Setenv("MEDHELPER_METRICS_ENABLED", "maybe")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, 10*time.Second, cfg.Bridge.RequestTimeout)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestEnvOverridesFalseDisables(t *testing.T) {
	t.Setenv("MEDHELPER_METRICS_ENABLED", "false")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := EncryptValue("s3cret-token", "pass")
	require.NoError(t, err)
	assert.NotContains(t, enc, "s3cret")

	plain, err := DecryptValue(enc, "pass")
	require.NoError(t, err)
	assert.Equal(t, "s3cret-token", plain)

	_, err = DecryptValue(enc, "wrong")
	assert.Error(t, err)
}

func TestDecryptValueMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no separator", "abcdef", "invalid encrypted format"},
		{"bad salt", "zz:00", "decode salt"},
		{"bad ciphertext", "00:zz", "decode ciphertext"},
		{"too short", "00112233445566778899aabbccddeeff:00", "too short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptValue(tt.in, "pass")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadWithEncryptedToken(t *testing.T) {
	enc, err := EncryptValue("ws-token", "key")
	require.NoError(t, err)

	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "gateway:\n  token: \"enc:"+enc+"\"\n")

	t.Setenv("MEDHELPER_CONFIG_KEY", "key")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws-token", cfg.Gateway.Token)
}

func TestLoadEncryptedTokenWithoutKey(t *testing.T) {
	enc, err := EncryptValue("ws-token", "key")
	require.NoError(t, err)

	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "gateway:\n  token: \"enc:"+enc+"\"\n")

	t.Setenv("MEDHELPER_CONFIG_KEY", "")
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingConfigKey))
}

func TestLoadPlainTokenUntouched(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "gateway:\n  token: \"plain\"\n")

	t.Setenv("MEDHELPER_CONFIG_KEY", "key")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "plain", cfg.Gateway.Token)
}

func TestLoadInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: info\n"), 0600))
	require.NoError(t, os.Chmod(path, 0666))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "gateway: [broken")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadRunsValidation(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "bridge:\n  request_timeout: 0s\n")

	_, err := Load(path)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "bridge.request_timeout")
}

func TestValidatePermissions(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		mode    os.FileMode
		wantErr bool
	}{
		{0600, false},
		{0644, false},
		{0640, false},
		{0660, true},
		{0666, true},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, "perm.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0600))
		require.NoError(t, os.Chmod(path, tt.mode))
		err := validatePermissions(path)
		if (err != nil) != tt.wantErr {
			t.Errorf("mode %o: err = %v, wantErr %v", tt.mode, err, tt.wantErr)
		}
	}

	if err := validatePermissions(filepath.Join(dir, "gone.yaml")); err == nil {
		t.Error("expected stat error for missing file")
	}
}
