package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-metrics"

	"medhelper/internal/domain"
	"medhelper/internal/protocol/frame"
	"medhelper/internal/protocol/telemetry"
)

// Call is one routed frame handed to a Handler. It carries the response
// side of the exchange and lets through exactly one response.
type Call struct {
	frame   frame.Frame
	id      atomic.Uint64
	sender  domain.FrameSender
	router  *Router
	replied atomic.Bool
}

func newCall(r *Router, sender domain.FrameSender, f frame.Frame) *Call {
	c := &Call{frame: f, sender: sender, router: r}
	c.id.Store(f.ID)
	return c
}

func (c *Call) Command() string  { return c.frame.Command }
func (c *Call) Kind() frame.Kind { return c.frame.Kind }
func (c *Call) Tagged() bool     { return c.frame.Tagged() }
func (c *Call) Payload() string  { return c.frame.Payload }

// ID is the correlation id the response will carry.
func (c *Call) ID() uint64 { return c.id.Load() }

// AdoptRequestID answers an untagged frame under the requestId found in
// its payload. Tagged frames keep their frame id.
func (c *Call) AdoptRequestID(id uint64) {
	if !c.Tagged() {
		c.id.Store(id)
	}
}

// Responded reports whether a response has been sent.
func (c *Call) Responded() bool { return c.replied.Load() }

// Respond sends payload as the single response for this call.
func (c *Call) Respond(ctx context.Context, payload string) error {
	if !c.replied.CompareAndSwap(false, true) {
		c.router.logger.Warn("duplicate response dropped",
			"command", c.Command(), "correlation_id", c.ID())
		c.router.sink.IncrCounterWithLabels(telemetry.MetricRouterDuplicateReply, 1,
			[]metrics.Label{telemetry.LabelCommand.M(c.Command())})
		return domain.NewDomainError("Call.Respond", domain.ErrDuplicateResponse,
			fmt.Sprintf("command=%s id=%d", c.Command(), c.ID()))
	}
	return c.router.send(ctx, c.sender, frame.Response(c.Command(), c.ID(), payload))
}

// Succeed responds with {"success":true,"<field>":value}.
func (c *Call) Succeed(ctx context.Context, field string, value any) error {
	payload, err := SuccessPayload(field, value)
	if err != nil {
		return c.Fail(ctx, domain.NewDomainError("Call.Succeed", domain.ErrPayloadParse, err.Error()).
			WithMessage("The response could not be encoded."))
	}
	return c.Respond(ctx, payload)
}

// Fail responds with {"success":false,"error":...,"code":...}.
func (c *Call) Fail(ctx context.Context, err error) error {
	return c.Respond(ctx, FailurePayload(err))
}

// Go runs fn in the background on behalf of this call. fn inherits the
// obligation to respond. A panic in fn is answered with a handler
// execution error. Router.Wait blocks until fn returns.
func (c *Call) Go(ctx context.Context, fn func(ctx context.Context)) {
	c.router.inflight.Add(1)
	go func() {
		defer c.router.inflight.Done()
		defer func() {
			if p := recover(); p != nil {
				c.router.recovered(ctx, c, p)
			}
		}()
		fn(ctx)
	}()
}

// SuccessPayload renders {"success":true,"<field>":value} with success first.
func SuccessPayload(field string, value any) (string, error) {
	key, err := json.Marshal(field)
	if err != nil {
		return "", err
	}
	val, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", field, err)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"success":true,`)
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(val)
	buf.WriteByte('}')
	return buf.String(), nil
}

type failurePayload struct {
	Success bool             `json:"success"`
	Error   string           `json:"error"`
	Code    domain.ErrorCode `json:"code,omitempty"`
}

// FailurePayload renders the failure envelope for err. Only the public
// message and code are included.
func FailurePayload(err error) string {
	data, _ := json.Marshal(failurePayload{
		Success: false,
		Error:   domain.PublicMessage(err),
		Code:    domain.ErrorCodeOf(err),
	})
	return string(data)
}
