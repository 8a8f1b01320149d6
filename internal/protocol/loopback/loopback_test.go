package loopback

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medhelper/internal/domain"
	"medhelper/internal/protocol/router"
)

func newPipe(t *testing.T, handlers ...router.Handler) *Pipe {
	t.Helper()
	r := router.New(router.NewTable(handlers...), slog.Default())
	p := New(r, slog.Default())
	t.Cleanup(p.Close)
	return p
}

func TestRoundTrip(t *testing.T) {
	p := newPipe(t, router.Func("echo", func(ctx context.Context, call *router.Call) {
		_ = call.Succeed(ctx, "payload", call.Payload())
	}))

	out, ok := p.Manager().Issue(context.Background(), "echo", `{"a":"b:c"}`, time.Second).Wait().Value()
	require.True(t, ok)
	assert.JSONEq(t, `{"success":true,"payload":"{\"a\":\"b:c\"}"}`, out.Payload)
}

func TestUnknownCommandFailsFast(t *testing.T) {
	p := newPipe(t)
	start := time.Now()
	e, isFail := p.Manager().Issue(context.Background(), "foo", "{}", 5*time.Second).Wait().Err()
	require.True(t, isFail)
	assert.ErrorIs(t, e, domain.ErrServer)
	assert.Contains(t, domain.PublicMessage(e), "Unknown command")
	assert.Less(t, time.Since(start), time.Second)
}

func TestSilentHandlerTimesOut(t *testing.T) {
	p := newPipe(t, router.Func("silent", func(context.Context, *router.Call) {}))
	e, isFail := p.Manager().Issue(context.Background(), "silent", "{}", 50*time.Millisecond).Wait().Err()
	require.True(t, isFail)
	assert.ErrorIs(t, e, domain.ErrTimeout)
}

func TestPanickingHandlerReportsExecutionError(t *testing.T) {
	p := newPipe(t, router.Func("boom", func(context.Context, *router.Call) { panic("bad") }))
	e, isFail := p.Manager().Issue(context.Background(), "boom", "{}", time.Second).Wait().Err()
	require.True(t, isFail)
	assert.ErrorIs(t, e, domain.ErrServer)
	assert.Contains(t, domain.PublicMessage(e), "Handler error")
}

func TestClosedPipeRejects(t *testing.T) {
	p := newPipe(t)
	p.Close()
	e, isFail := p.Manager().Issue(context.Background(), "echo", "{}", time.Second).Wait().Err()
	require.True(t, isFail)
	assert.ErrorIs(t, e, domain.ErrChannelClosed)
}
