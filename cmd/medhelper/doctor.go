package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"medhelper/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Some checks still work when the config does not load.
	cfg, cfgErr := config.Load(*cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(*cfgPath, cfgErr)},
		{Name: "Database directory", Fn: checkStorageDir},
		{Name: "Gateway address", Fn: checkGatewayAddr},
		{Name: "Static files", Fn: checkStaticDir},
		{Name: "Chrome", Fn: checkChrome},
	}

	fmt.Println("medhelper doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		res := check.Fn(cfg)
		res.Name = check.Name
		results = append(results, res)

		fmt.Printf("  %s %s: %s\n", statusIcon(res.Status), res.Name, res.Message)
		if res.Fix != "" {
			fmt.Printf("      Fix: %s\n", res.Fix)
		}
	}

	pass, warn, fail := summarize(results)
	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func summarize(results []CheckResult) (pass, warn, fail int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config loaded. A missing file is
// only a warning because defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Fix the reported fields in " + cfgPath,
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func checkStorageDir(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}

	dir, _ := filepath.Abs(filepath.Dir(cfg.Storage.Path))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("database directory %s cannot be created: %v", dir, err),
			Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", dir),
		}
	}

	marker := filepath.Join(dir, ".doctor-check")
	if err := os.WriteFile(marker, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("database directory %s is not writable: %v", dir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 700 %s", dir),
		}
	}
	os.Remove(marker)

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("database directory %s writable", dir),
	}
}

// checkGatewayAddr tries to bind the configured address. An address in use
// usually means another host is already running.
func checkGatewayAddr(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	ln, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is not available: %v", cfg.Gateway.Addr, err),
			Fix:     "Stop the other medhelper instance or change gateway.addr",
		}
	}
	ln.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s is free", cfg.Gateway.Addr),
	}
}

func checkStaticDir(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check, config not loaded"}
	}
	if cfg.Gateway.StaticDir == "" {
		return CheckResult{Status: StatusPass, Message: "static serving disabled"}
	}
	index := filepath.Join(cfg.Gateway.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s not found", index),
			Fix:     "Point gateway.static_dir at the built web surface",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("serving %s", cfg.Gateway.StaticDir)}
}

func checkChrome(cfg *config.Config) CheckResult {
	if cfg != nil && !cfg.Window.Enabled {
		return CheckResult{
			Status:  StatusPass,
			Message: "app window disabled, Chrome not required",
		}
	}
	if cfg != nil && cfg.Window.ChromePath != "" {
		if _, err := os.Stat(cfg.Window.ChromePath); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("window.chrome_path %s: %v", cfg.Window.ChromePath, err),
			}
		}
		return CheckResult{Status: StatusPass, Message: "using " + cfg.Window.ChromePath}
	}

	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return CheckResult{
				Status:  StatusPass,
				Message: fmt.Sprintf("found %s at %s", name, path),
			}
		}
	}
	return CheckResult{
		Status:  StatusFail,
		Message: "Chrome not found but the app window is enabled",
		Fix:     "Install Chrome or Chromium, set window.chrome_path, or set window.enabled: false",
	}
}
