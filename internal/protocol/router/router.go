// Package router decodes inbound frames and dispatches them to the handler
// registered for their command.
package router

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"

	"medhelper/internal/domain"
	"medhelper/internal/infra/tracer"
	"medhelper/internal/protocol/frame"
	"medhelper/internal/protocol/telemetry"
	"medhelper/pkg/result"
)

// Router turns raw frames into handler invocations. Decode failures and
// unknown commands are answered with diagnostic responses; handler panics
// are answered with a handler execution error.
type Router struct {
	table    *Table
	logger   *slog.Logger
	sink     metrics.MetricSink
	inflight sync.WaitGroup
}

// Option configures a Router.
type Option func(*Router)

// WithMetricSink sets the sink for router metrics.
func WithMetricSink(sink metrics.MetricSink) Option {
	return func(r *Router) { r.sink = sink }
}

// New creates a Router over a built table.
func New(table *Table, logger *slog.Logger, opts ...Option) *Router {
	r := &Router{table: table, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	r.sink = telemetry.SinkOrBlackhole(r.sink)
	logger.Info("router ready", "handlers", table.Len(), "commands", table.Commands())
	return r
}

type dispatch struct {
	handler Handler
	frame   frame.Frame
}

// Route handles one raw frame read from the channel. sender carries the
// response back to the peer that sent raw.
func (r *Router) Route(ctx context.Context, sender domain.FrameSender, raw string) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "router.route", "")
	defer span.End()

	r.sink.IncrCounter(telemetry.MetricRouterFrames, 1)
	r.logger.Debug("frame received", "frame", raw)

	decoded := frame.Decode(raw).
		TapError(func(e *domain.DomainError) {
			r.logger.Warn("invalid frame", "error", e)
			r.sink.IncrCounter(telemetry.MetricRouterFramingErrors, 1)
		})

	routed := result.Bind(decoded, func(f frame.Frame) result.Result[dispatch, *domain.DomainError] {
		tracer.Command(span, f.Command)
		tracer.CorrelationID(span, f.ID)
		if f.Kind == frame.KindResponse {
			return result.Fail[dispatch](domain.ProtocolError("Router.Route", "unsolicited response frame"))
		}
		h, ok := r.table.Lookup(f.Command)
		if !ok {
			r.logger.Warn("no handler found for command", "command", f.Command)
			r.sink.IncrCounterWithLabels(telemetry.MetricRouterUnknownCommands, 1,
				[]metrics.Label{telemetry.LabelCommand.M(f.Command)})
			return result.Fail[dispatch](domain.UnknownCommandError(f.Command))
		}
		return result.Ok[dispatch, *domain.DomainError](dispatch{handler: h, frame: f})
	})

	result.Do(routed,
		func(d dispatch) {
			r.invoke(ctx, sender, d)
			tracer.OK(span)
		},
		func(e *domain.DomainError) {
			tracer.Fail(span, e)
			r.reject(ctx, sender, raw, decoded, e)
		})

	r.sink.AddSample(telemetry.MetricRouterHandleTime, telemetry.Since(start))
}

// Wait blocks until all work started through Call.Go has returned.
func (r *Router) Wait() { r.inflight.Wait() }

// Commands lists the registered commands.
func (r *Router) Commands() []string { return r.table.Commands() }

func (r *Router) invoke(ctx context.Context, sender domain.FrameSender, d dispatch) {
	call := newCall(r, sender, d.frame)
	defer func() {
		if p := recover(); p != nil {
			r.recovered(ctx, call, p)
		}
	}()
	r.logger.Debug("routing frame", "command", call.Command(), "correlation_id", call.ID(), "kind", string(call.Kind()))
	d.handler.Handle(ctx, call)
}

// recovered converts a handler panic into the call's response. If the
// handler had already responded, the panic is only logged.
func (r *Router) recovered(ctx context.Context, call *Call, p any) {
	herr := domain.HandlerExecutionError(call.Command(), call.ID(), p)
	stack := debug.Stack()
	if pe, ok := p.(*result.PanicError); ok && pe.Stack != nil {
		stack = pe.Stack
	}
	r.logger.Error("handler panicked",
		"command", call.Command(),
		"correlation_id", call.ID(),
		"panic", p,
		"stack", string(stack),
	)
	r.sink.IncrCounterWithLabels(telemetry.MetricRouterHandlerPanics, 1,
		[]metrics.Label{telemetry.LabelCommand.M(call.Command())})
	if err := call.Fail(ctx, herr); err != nil && !errors.Is(err, domain.ErrDuplicateResponse) {
		r.logger.Warn("handler error response not sent", "command", call.Command(), "error", err)
	}
}

// reject answers a frame that never reached a handler. Framing errors go
// out under id 0; unknown commands keep the inbound id so the caller
// fails fast instead of timing out. Unsolicited responses are dropped.
func (r *Router) reject(ctx context.Context, sender domain.FrameSender, raw string,
	decoded result.Result[frame.Frame, *domain.DomainError], e *domain.DomainError) {
	if errors.Is(e, domain.ErrProtocol) {
		r.logger.Warn("frame dropped", "error", e)
		return
	}

	command, id := frame.CommandOf(raw), uint64(0)
	if f, ok := decoded.Value(); ok {
		command, id = f.Command, f.ID
	}
	if command == "" {
		command = "error"
	}
	if err := r.send(ctx, sender, frame.Response(command, id, FailurePayload(e))); err != nil {
		r.logger.Warn("diagnostic response not sent", "command", command, "error", err)
	}
}

func (r *Router) send(ctx context.Context, sender domain.FrameSender, raw string) error {
	if err := sender.Send(ctx, raw); err != nil {
		return domain.WrapOp("Router.Send", err)
	}
	return nil
}
