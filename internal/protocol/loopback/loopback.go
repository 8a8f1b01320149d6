// Package loopback connects a Router and a correlation Manager inside one
// process. Each direction delivers frames on its own goroutine, so neither
// side re-enters the other while handling a frame.
package loopback

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"medhelper/internal/domain"
	"medhelper/internal/protocol/correlation"
	"medhelper/internal/protocol/router"
)

// Pipe is an in-process channel between a host Router and a Manager.
type Pipe struct {
	router  *router.Router
	manager *correlation.Manager
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// New wires r behind a fresh Manager. opts configure the Manager.
func New(r *router.Router, logger *slog.Logger, opts ...correlation.Option) *Pipe {
	p := &Pipe{router: r}
	toClient := domain.FrameSenderFunc(func(ctx context.Context, raw string) error {
		return p.spawn(func() { p.manager.Deliver(ctx, raw) })
	})
	toHost := domain.FrameSenderFunc(func(ctx context.Context, raw string) error {
		return p.spawn(func() { r.Route(ctx, toClient, raw) })
	})
	p.manager = correlation.New(toHost, logger, opts...)
	return p
}

// Manager returns the calling side of the pipe.
func (p *Pipe) Manager() *correlation.Manager { return p.manager }

// Close stops delivery, rejects pending calls and waits for in-flight work.
func (p *Pipe) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.manager.Close()
	p.router.Wait()
	p.wg.Wait()
}

func (p *Pipe) spawn(fn func()) error {
	if p.closed.Load() {
		return domain.NewDomainError("Pipe.Send", domain.ErrChannelClosed, "")
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
	return nil
}
