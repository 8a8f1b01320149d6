// Package integration wires the full host stack for end-to-end tests.
package integration

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"

	"medhelper/internal/adapter/gateway"
	"medhelper/internal/adapter/handler"
	"medhelper/internal/adapter/storage"
	"medhelper/internal/protocol/router"
	"medhelper/internal/usecase/identifier"
)

// Stack is a running host: SQLite behind a breaker, the identifier
// handlers and a gateway on a loopback port.
type Stack struct {
	Addr   string
	Token  string
	Sink   *metrics.InmemSink
	Server *gateway.Server

	stop func()
}

// StartStack starts a host on dbPath and registers its shutdown with t.
func StartStack(t *testing.T, dbPath, token string) *Stack {
	t.Helper()
	log := slog.Default()
	sink := metrics.NewInmemSink(time.Second, time.Minute)

	store, err := storage.NewSQLiteStore(dbPath, log, storage.WithMetricSink(sink))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	repo := storage.NewBreakerRepository(store, storage.BreakerConfig{}, log)
	svc := identifier.NewService(repo, log)
	r := router.New(handler.Register(router.NewBuilder(), svc, log).Build(), log, router.WithMetricSink(sink))

	srv := gateway.NewServer(r, gateway.Config{Addr: "127.0.0.1:0", Token: token}, log,
		gateway.WithMetricSink(sink), gateway.WithMetricsEndpoint(sink))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Start(ctx); err != nil {
			log.Error("gateway stopped", "error", err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for srv.BoundAddr() == "" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("gateway did not bind")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s := &Stack{Addr: srv.BoundAddr(), Token: token, Sink: sink, Server: srv}
	var stopped bool
	s.stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		<-done
		store.Close()
	}
	t.Cleanup(s.stop)
	return s
}

// Stop shuts the host down before the test ends. It is safe to call twice.
func (s *Stack) Stop() { s.stop() }

// Dial connects a client to the stack.
func (s *Stack) Dial(t *testing.T) *gateway.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := gateway.Dial(ctx, s.Addr, s.Token, slog.Default())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// SkipIfShort skips integration tests in short mode.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
