package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-metrics"

	"medhelper/internal/adapter/gateway"
	"medhelper/internal/adapter/handler"
	"medhelper/internal/adapter/storage"
	"medhelper/internal/adapter/window"
	"medhelper/internal/infra/config"
	"medhelper/internal/infra/logger"
	"medhelper/internal/infra/tracer"
	"medhelper/internal/protocol/router"
	"medhelper/internal/usecase/identifier"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file path")
	noWindow := fs.Bool("no-window", false, "do not open the app window")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// 1. Config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Metrics
	var sink metrics.MetricSink
	var inmem *metrics.InmemSink
	if cfg.Metrics.Enabled {
		inmem = metrics.NewInmemSink(cfg.Metrics.Interval, cfg.Metrics.Retain)
		sink = inmem
	}

	// 4. Storage
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o700); err != nil {
		return fmt.Errorf("storage dir: %w", err)
	}
	store, err := storage.NewSQLiteStore(cfg.Storage.Path, log, storage.WithMetricSink(sink))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()
	repo := storage.NewBreakerRepository(store, storage.BreakerConfig{
		MaxFailures: cfg.Storage.Breaker.MaxFailures,
		Timeout:     cfg.Storage.Breaker.Timeout,
		Interval:    cfg.Storage.Breaker.Interval,
	}, log)

	// 5. Services and dispatch table
	svc := identifier.NewService(repo, log)
	table := handler.Register(router.NewBuilder(), svc, log).Build()
	r := router.New(table, log, router.WithMetricSink(sink))

	// 6. Gateway
	gwOpts := []gateway.Option{gateway.WithMetricSink(sink)}
	if inmem != nil {
		gwOpts = append(gwOpts, gateway.WithMetricsEndpoint(inmem))
	}
	srv := gateway.NewServer(r, gatewayConfig(cfg.Gateway), log, gwOpts...)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	addr, err := waitBound(ctx, srv, errCh)
	if err != nil {
		return err
	}
	log.Info("medhelper starting",
		"version", version,
		"addr", addr,
		"db", cfg.Storage.Path,
		"commands", len(r.Commands()),
		"metrics", inmem != nil,
	)

	// 7. Window
	var windowDone <-chan struct{}
	if cfg.Window.Enabled && !*noWindow {
		w, err := window.Open(window.AppURL(addr, cfg.Gateway.Token), window.Config{
			ChromePath: cfg.Window.ChromePath,
			Width:      cfg.Window.Width,
			Height:     cfg.Window.Height,
		}, log)
		if err != nil {
			log.Warn("app window unavailable, serving without it", "error", err)
		} else {
			defer w.Close()
			windowDone = w.Done()
		}
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case <-windowDone:
		// Closing the window ends the application.
		cancel()
	case err := <-errCh:
		return err
	}

	return shutdown(log, errCh)
}

func gatewayConfig(g config.GatewayConfig) gateway.Config {
	return gateway.Config{
		Addr:              g.Addr,
		StaticDir:         g.StaticDir,
		Token:             g.Token,
		SendBuffer:        g.SendBuffer,
		ReadLimit:         g.ReadLimit,
		FramesPerSecond:   g.FramesPerSecond,
		Burst:             g.Burst,
		UpgradesPerMinute: g.UpgradesPerMinute,
	}
}

// waitBound blocks until the gateway listener is up.
func waitBound(ctx context.Context, srv *gateway.Server, errCh <-chan error) (string, error) {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
	for {
		if addr := srv.BoundAddr(); addr != "" {
			return addr, nil
		}
		select {
		case err := <-errCh:
			if err == nil {
				err = fmt.Errorf("gateway stopped before binding")
			}
			return "", err
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline:
			return "", fmt.Errorf("gateway did not bind within 5s")
		case <-tick.C:
		}
	}
}

// shutdown waits for the gateway's Start to return after the context ended.
func shutdown(log *slog.Logger, errCh <-chan error) error {
	select {
	case err := <-errCh:
		log.Info("medhelper stopped")
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("gateway did not stop within 10s")
	}
}
