// Package correlation is the calling side of the frame protocol. A Manager
// tags each outgoing request with a fresh id, tracks it until the matching
// response or its timeout, and fans plain frames out to listeners.
package correlation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"

	"medhelper/internal/domain"
	"medhelper/internal/infra/tracer"
	"medhelper/internal/protocol/frame"
	"medhelper/internal/protocol/telemetry"
	"medhelper/pkg/result"
)

// DefaultTimeout bounds calls issued without an explicit timeout.
const DefaultTimeout = 10 * time.Second

// Response is the payload of a successful tagged response.
type Response struct {
	Command string
	ID      uint64
	Payload string
}

// Decode unmarshals the response payload into v.
func (r Response) Decode(v any) error {
	return json.Unmarshal([]byte(r.Payload), v)
}

// Listener receives the payload of a plain frame.
type Listener func(payload string)

type pendingCall struct {
	id        uint64
	command   string
	createdAt time.Time
	promise   *result.Promise[Response, *domain.DomainError]
	timer     *time.Timer
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// Manager owns the id counter and pending set for one channel. Ids start at
// 1 and are never reused; 0 is left for peer diagnostics.
type Manager struct {
	sender         domain.FrameSender
	logger         *slog.Logger
	sink           metrics.MetricSink
	defaultTimeout time.Duration

	mu        sync.Mutex
	nextID    uint64
	pending   map[uint64]*pendingCall
	closed    bool
	listeners map[string][]listenerEntry
	nextSubID uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithDefaultTimeout sets the bound used when Issue gets a zero timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) { m.defaultTimeout = d }
}

// WithMetricSink sets the sink for correlation metrics.
func WithMetricSink(sink metrics.MetricSink) Option {
	return func(m *Manager) { m.sink = sink }
}

// New creates a Manager that writes frames through sender.
func New(sender domain.FrameSender, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		sender:         sender,
		logger:         logger,
		defaultTimeout: DefaultTimeout,
		pending:        make(map[uint64]*pendingCall),
		listeners:      make(map[string][]listenerEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sink = telemetry.SinkOrBlackhole(m.sink)
	return m
}

// Issue sends command as a tagged request and returns the pending result.
// payload is sent verbatim when it is a string and JSON-encoded otherwise.
// The future always completes: with the response, with a TimeoutError
// after timeout, or with ErrChannelClosed.
func (m *Manager) Issue(ctx context.Context, command string, payload any, timeout time.Duration) *result.Future[Response, *domain.DomainError] {
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}
	ctx, span := tracer.Start(ctx, "correlation.issue", command)
	defer span.End()

	body, err := encodePayload(payload)
	if err != nil {
		tracer.Fail(span, err)
		return result.Resolved(result.Fail[Response](
			domain.NewDomainError("Manager.Issue", domain.ErrPayloadParse, err.Error()).
				WithMessage("The request payload could not be encoded.")))
	}

	promise := result.NewPromise[Response, *domain.DomainError]()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return result.Resolved(result.Fail[Response](closedError(command)))
	}
	m.nextID++
	call := &pendingCall{
		id:        m.nextID,
		command:   command,
		createdAt: time.Now(),
		promise:   promise,
	}
	call.timer = time.AfterFunc(timeout, func() { m.expire(call.id, timeout) })
	m.pending[call.id] = call
	pending := len(m.pending)
	m.mu.Unlock()

	tracer.CorrelationID(span, call.id)
	m.sink.IncrCounterWithLabels(telemetry.MetricCallIssued, 1,
		[]metrics.Label{telemetry.LabelCommand.M(command)})
	m.sink.SetGauge(telemetry.MetricCallPending, float32(pending))

	if err := m.sender.Send(ctx, frame.Request(command, call.id, body)); err != nil {
		tracer.Fail(span, err)
		m.settle(call.id, result.Fail[Response](
			domain.NewDomainError("Manager.Issue", domain.ErrChannelClosed, err.Error()).
				WithMessage(fmt.Sprintf("Request '%s' could not be sent", command))))
	}
	return promise.Future()
}

// Send writes a plain frame. No response is tracked.
func (m *Manager) Send(ctx context.Context, command string, payload any) error {
	body, err := encodePayload(payload)
	if err != nil {
		return domain.NewDomainError("Manager.Send", domain.ErrPayloadParse, err.Error())
	}
	return m.sender.Send(ctx, frame.Plain(command, body))
}

// On registers fn for plain frames carrying command. The returned func
// removes the registration.
func (m *Manager) On(command string, fn Listener) func() {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.listeners[command] = append(m.listeners[command], listenerEntry{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		entries := m.listeners[command]
		for i, e := range entries {
			if e.id == id {
				m.listeners[command] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
		if len(m.listeners[command]) == 0 {
			delete(m.listeners, command)
		}
	}
}

// Deliver feeds one inbound frame to the manager. It is the only entry
// point for frames read from the channel.
func (m *Manager) Deliver(ctx context.Context, raw string) {
	decoded, ok := frame.Decode(raw).
		TapError(func(e *domain.DomainError) {
			m.logger.Warn("invalid inbound frame", "error", e)
		}).Value()
	if !ok {
		return
	}

	switch decoded.Kind {
	case frame.KindResponse:
		m.resolve(decoded)
	case frame.KindPlain:
		m.notify(decoded)
	default:
		m.logger.Warn("request frame ignored on calling side",
			"command", decoded.Command, "correlation_id", decoded.ID)
	}
}

// Pending returns the number of calls awaiting a response.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close rejects every pending call with ErrChannelClosed. Calls issued
// afterwards fail immediately.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	calls := make([]*pendingCall, 0, len(m.pending))
	for id, call := range m.pending {
		calls = append(calls, call)
		delete(m.pending, id)
	}
	m.mu.Unlock()

	for _, call := range calls {
		call.timer.Stop()
		call.promise.Complete(result.Fail[Response](closedError(call.command)))
	}
	m.sink.SetGauge(telemetry.MetricCallPending, 0)
}

func (m *Manager) resolve(f frame.Frame) {
	call, ok := m.take(f.ID)
	if !ok {
		m.logger.Warn("unmatched response dropped",
			"error", domain.ProtocolError("Manager.Deliver", fmt.Sprintf("no pending call for id %d", f.ID)),
			"command", f.Command, "correlation_id", f.ID)
		m.sink.IncrCounterWithLabels(telemetry.MetricCallUnmatched, 1,
			[]metrics.Label{telemetry.LabelCommand.M(f.Command)})
		return
	}
	call.timer.Stop()

	r := classify(f)
	outcome := "success"
	if r.IsFail() {
		outcome = "failure"
	}
	m.logger.Debug("call resolved", "command", call.command, "correlation_id", call.id,
		"outcome", outcome, "elapsed", time.Since(call.createdAt))
	m.sink.IncrCounterWithLabels(telemetry.MetricCallResolved, 1,
		[]metrics.Label{telemetry.LabelCommand.M(call.command), telemetry.LabelOutcome.M(outcome)})
	call.promise.Complete(r)
}

func (m *Manager) expire(id uint64, after time.Duration) {
	call, ok := m.take(id)
	if !ok {
		return
	}
	m.logger.Warn("call timed out", "command", call.command, "correlation_id", id, "timeout", after)
	m.sink.IncrCounterWithLabels(telemetry.MetricCallTimeouts, 1,
		[]metrics.Label{telemetry.LabelCommand.M(call.command)})
	call.promise.Complete(result.Fail[Response](domain.TimeoutError(call.command, id, after)))
}

// settle completes id with r if it is still pending.
func (m *Manager) settle(id uint64, r result.Result[Response, *domain.DomainError]) {
	call, ok := m.take(id)
	if !ok {
		return
	}
	call.timer.Stop()
	call.promise.Complete(r)
}

// take removes id from the pending set. Only the path that removes an
// entry may complete its promise.
func (m *Manager) take(id uint64) (*pendingCall, bool) {
	m.mu.Lock()
	call, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	pending := len(m.pending)
	m.mu.Unlock()
	if ok {
		m.sink.SetGauge(telemetry.MetricCallPending, float32(pending))
	}
	return call, ok
}

func (m *Manager) notify(f frame.Frame) {
	m.mu.Lock()
	entries := append([]listenerEntry(nil), m.listeners[f.Command]...)
	m.mu.Unlock()

	if len(entries) == 0 {
		m.logger.Debug("no listener for plain frame", "command", f.Command)
		return
	}
	for _, e := range entries {
		m.dispatchListener(f, e.fn)
	}
}

func (m *Manager) dispatchListener(f frame.Frame, fn Listener) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("listener panicked", "command", f.Command, "panic", p)
		}
	}()
	fn(f.Payload)
}

type statusPayload struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// classify maps a response frame to the caller's Result. Only an explicit
// success:false is a failure.
func classify(f frame.Frame) result.Result[Response, *domain.DomainError] {
	resp := Response{Command: f.Command, ID: f.ID, Payload: f.Payload}
	var status statusPayload
	if err := json.Unmarshal([]byte(f.Payload), &status); err != nil {
		return result.Ok[Response, *domain.DomainError](resp)
	}
	if status.Success != nil && !*status.Success {
		return result.Fail[Response](domain.ServerError(f.Command, status.Error))
	}
	return result.Ok[Response, *domain.DomainError](resp)
}

func closedError(command string) *domain.DomainError {
	return domain.NewDomainError("Manager.Issue", domain.ErrChannelClosed, command).
		WithMessage("The connection to the host is closed.")
}

func encodePayload(payload any) (string, error) {
	switch p := payload.(type) {
	case string:
		return p, nil
	case []byte:
		return string(p), nil
	case json.RawMessage:
		return string(p), nil
	case nil:
		return "{}", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
