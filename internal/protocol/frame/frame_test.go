package frame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medhelper/internal/domain"
)

func mustDecode(t *testing.T, raw string) Frame {
	t.Helper()
	f, ok := Decode(raw).Value()
	require.True(t, ok, "decode %q", raw)
	return f
}

func TestRoundTripPlain(t *testing.T) {
	payloads := []string{`{"a":1}`, "hello", "", "with:colons:inside", `["x"]`}
	for _, p := range payloads {
		f := mustDecode(t, Plain("note", p))
		assert.Equal(t, Frame{Command: "note", Kind: KindPlain, Payload: p}, f)
	}
}

func TestRoundTripTagged(t *testing.T) {
	tests := []struct {
		name string
		in   Frame
	}{
		{"request json", Frame{Command: "dea", Kind: KindRequest, ID: 1, Payload: `{"lastName":"Smith"}`}},
		{"response with colons", Frame{Command: "npi", Kind: KindResponse, ID: 42, Payload: `{"url":"http://x:80/a:b"}`}},
		{"zero id", Frame{Command: "error", Kind: KindResponse, ID: 0, Payload: "{}"}},
		{"empty payload", Frame{Command: "ping", Kind: KindRequest, ID: 7, Payload: ""}},
		{"large id", Frame{Command: "x", Kind: KindRequest, ID: 18446744073709551615, Payload: "p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, mustDecode(t, Encode(tt.in)))
		})
	}
}

func TestEncodeWireForm(t *testing.T) {
	assert.Equal(t, `dea:request:1:{"a":1}`, Request("dea", 1, `{"a":1}`))
	assert.Equal(t, `dea:response:1:{}`, Response("dea", 1, `{}`))
	assert.Equal(t, "dea:x", Plain("dea", "x"))
	// Plain frames never carry an id.
	assert.Equal(t, "dea:x", Encode(Frame{Command: "dea", Kind: KindPlain, ID: 9, Payload: "x"}))
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"no colon", "justtext"},
		{"no command", ":payload"},
		{"non-numeric id", "dea:request:abc:{}"},
		{"negative id", "dea:request:-1:{}"},
		{"signed id", "dea:response:+1:{}"},
		{"missing id", "dea:request::{}"},
		{"missing payload", "dea:request:12"},
		{"overflow id", "dea:request:99999999999999999999:{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Decode(tt.raw)
			e, isFail := r.Err()
			require.True(t, isFail)
			assert.True(t, errors.Is(e, domain.ErrFraming))
			assert.Equal(t, domain.CodeFraming, e.Code())
		})
	}
}

func TestDecodeMarkerWithoutTrailingColonIsPlain(t *testing.T) {
	f := mustDecode(t, "note:request")
	assert.Equal(t, KindPlain, f.Kind)
	assert.Equal(t, "request", f.Payload)

	f = mustDecode(t, "note:requests:1:x")
	assert.Equal(t, KindPlain, f.Kind)
	assert.Equal(t, "requests:1:x", f.Payload)
}

func TestCommandOf(t *testing.T) {
	assert.Equal(t, "dea", CommandOf("dea:request:x"))
	assert.Equal(t, "", CommandOf("nocolon"))
}
