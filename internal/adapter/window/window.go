// Package window opens the web surface in a Chrome app window driven
// through the DevTools protocol.
package window

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Config holds configuration for the app window.
type Config struct {
	// ChromePath overrides Chrome discovery.
	ChromePath string
	Width      int
	Height     int
	// StartTimeout bounds the browser launch.
	StartTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = 1024
	}
	if c.Height <= 0 {
		c.Height = 768
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 30 * time.Second
	}
	return c
}

// Window is one running app window.
type Window struct {
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	done          chan struct{}
	doneOnce      sync.Once
	logger        *slog.Logger
}

// AppURL is the page the window loads for a gateway bound at addr.
func AppURL(addr, token string) string {
	u := url.URL{Scheme: "http", Host: addr, Path: "/"}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}

func allocatorOptions(cfg Config, pageURL string) []chromedp.ExecAllocatorOption {
	// Copy default options to avoid mutating the package-level slice.
	opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
	copy(opts, chromedp.DefaultExecAllocatorOptions[:])
	opts = append(opts,
		chromedp.Flag("headless", false),
		chromedp.Flag("app", pageURL),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(cfg.Width, cfg.Height),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	return opts
}

// Open launches Chrome in app mode on pageURL. The window lives until the
// user closes it or Close is called.
func Open(pageURL string, cfg Config, logger *slog.Logger) (*Window, error) {
	cfg = cfg.withDefaults()
	w := &Window{done: make(chan struct{}), logger: logger}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg, pageURL)...)
	w.allocCancel = allocCancel
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	w.browserCancel = browserCancel

	// chromedp binds the session to the context of the first Run, so the
	// start must not run under a derived timeout context.
	startDone := make(chan error, 1)
	go func() { startDone <- chromedp.Run(browserCtx, chromedp.Navigate(pageURL)) }()
	select {
	case err := <-startDone:
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("open window: %w", err)
		}
	case <-time.After(cfg.StartTimeout):
		w.Close()
		return nil, fmt.Errorf("open window: timed out after %v", cfg.StartTimeout)
	}

	pageID := chromedp.FromContext(browserCtx).Target.TargetID
	chromedp.ListenBrowser(browserCtx, func(ev any) {
		if e, ok := ev.(*target.EventTargetDestroyed); ok && e.TargetID == pageID {
			logger.Info("app window closed")
			w.finish()
		}
	})
	go func() {
		<-browserCtx.Done()
		w.finish()
	}()

	logger.Info("app window opened", "url", pageURL, "width", cfg.Width, "height", cfg.Height)
	return w, nil
}

// Done is closed when the window goes away.
func (w *Window) Done() <-chan struct{} { return w.done }

// Close shuts the browser down.
func (w *Window) Close() {
	if w.browserCancel != nil {
		w.browserCancel()
	}
	if w.allocCancel != nil {
		w.allocCancel()
	}
	w.finish()
}

func (w *Window) finish() {
	w.doneOnce.Do(func() { close(w.done) })
}
