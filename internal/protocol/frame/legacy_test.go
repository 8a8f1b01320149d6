package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medhelper/internal/domain"
)

func TestLegacyJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"object untouched", `{"a":"b:c"}`, `{"a":"b:c"}`},
		{"array untouched", `[1,2]`, `[1,2]`},
		{"leading space trimmed", "  \n{\"a\":1}", `{"a":1}`},
		{"request prefix", `request:5:{"a":1}`, `{"a":1}`},
		{"single segment", `5:{"a":1}`, `{"a":1}`},
		{"bare text kept", "hello", "hello"},
		{"bare number kept", "42", "42"},
		{"json with colons after two segments", `request:1:{"u":"x:y"}`, `{"u":"x:y"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LegacyJSON(tt.in).Value()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLegacyJSONEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\t\n"} {
		e, isFail := LegacyJSON(in).Err()
		require.True(t, isFail)
		assert.ErrorIs(t, e, domain.ErrEmptyPayload)
		assert.Contains(t, domain.PublicMessage(e), "payload was empty")
	}
}
