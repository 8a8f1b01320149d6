package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"medhelper/internal/infra/config"
)

func TestCheckConfigFile(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(present, []byte("logger:\n  level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		err  error
		want CheckStatus
	}{
		{"missing file uses defaults", filepath.Join(dir, "none.yaml"), nil, StatusWarn},
		{"load error", present, &config.ValidationError{Errors: []string{"bad"}}, StatusFail},
		{"loaded", present, nil, StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := checkConfigFile(tt.path, tt.err)(nil)
			assert.Equal(t, tt.want, res.Status, res.Message)
		})
	}
}

func TestCheckStorageDir(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "nested", "ids.db")

	res := checkStorageDir(cfg)
	assert.Equal(t, StatusPass, res.Status, res.Message)
	assert.DirExists(t, filepath.Dir(cfg.Storage.Path))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(cfg.Storage.Path), ".doctor-check"))

	assert.Equal(t, StatusFail, checkStorageDir(nil).Status)
}

func TestCheckGatewayAddr(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Addr = "127.0.0.1:0"
	assert.Equal(t, StatusPass, checkGatewayAddr(cfg).Status)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	cfg.Gateway.Addr = ln.Addr().String()
	res := checkGatewayAddr(cfg)
	assert.Equal(t, StatusWarn, res.Status)
	assert.NotEmpty(t, res.Fix)
}

func TestCheckStaticDir(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.StaticDir = t.TempDir()
	assert.Equal(t, StatusWarn, checkStaticDir(cfg).Status)

	if err := os.WriteFile(filepath.Join(cfg.Gateway.StaticDir, "index.html"), []byte("<html></html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, StatusPass, checkStaticDir(cfg).Status)

	cfg.Gateway.StaticDir = ""
	assert.Equal(t, StatusPass, checkStaticDir(cfg).Status)
}

func TestCheckChrome(t *testing.T) {
	cfg := config.Defaults()
	cfg.Window.Enabled = false
	assert.Equal(t, StatusPass, checkChrome(cfg).Status)

	cfg.Window.Enabled = true
	cfg.Window.ChromePath = filepath.Join(t.TempDir(), "no-chrome")
	assert.Equal(t, StatusFail, checkChrome(cfg).Status)
}

func TestSummarize(t *testing.T) {
	pass, warn, fail := summarize([]CheckResult{
		{Status: StatusPass}, {Status: StatusPass}, {Status: StatusWarn}, {Status: StatusFail},
	})
	assert.Equal(t, 2, pass)
	assert.Equal(t, 1, warn)
	assert.Equal(t, 1, fail)
}

func TestStatusIcon(t *testing.T) {
	assert.Equal(t, "[PASS]", statusIcon(StatusPass))
	assert.Equal(t, "[WARN]", statusIcon(StatusWarn))
	assert.Equal(t, "[FAIL]", statusIcon(StatusFail))
	assert.Equal(t, "[????]", statusIcon("other"))
}
