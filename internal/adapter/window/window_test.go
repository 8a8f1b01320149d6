package window

import (
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
)

func TestAppURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8765/", AppURL("127.0.0.1:8765", ""))
	assert.Equal(t, "http://localhost:1/?token=a+b", AppURL("localhost:1", "a b"))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 1024, cfg.Width)
	assert.Equal(t, 768, cfg.Height)
	assert.Equal(t, 30*time.Second, cfg.StartTimeout)

	cfg = Config{Width: 800, Height: 600, StartTimeout: time.Second}.withDefaults()
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, time.Second, cfg.StartTimeout)
}

func TestAllocatorOptionsExtendDefaults(t *testing.T) {
	base := len(chromedp.DefaultExecAllocatorOptions)
	assert.Len(t, allocatorOptions(Config{}.withDefaults(), "http://x/"), base+4)
	assert.Len(t, allocatorOptions(Config{ChromePath: "/usr/bin/chromium"}.withDefaults(), "http://x/"), base+5)
	// The package-level defaults are left untouched.
	assert.Len(t, chromedp.DefaultExecAllocatorOptions, base)
}
