package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medhelper/internal/domain"
)

func TestValidateNPI(t *testing.T) {
	tests := []struct {
		name string
		npi  string
		want string
	}{
		{"valid", "1234567893", ""},
		{"empty", "", "NPI cannot be null or empty"},
		{"short", "123456789", "NPI must be exactly 10 digits"},
		{"long", "12345678930", "NPI must be exactly 10 digits"},
		{"letters", "12345678a3", "NPI must contain only numeric digits"},
		{"bad check digit", "1234567890", "NPI failed Luhn check digit validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ValidateNPI(tt.npi)
			if tt.want == "" {
				v, ok := r.Value()
				require.True(t, ok)
				assert.True(t, v)
				return
			}
			e, isFail := r.Err()
			require.True(t, isFail)
			assert.ErrorIs(t, e, domain.ErrValidation)
			assert.Equal(t, tt.want, domain.PublicMessage(e))
			assert.Equal(t, domain.CodeNPIValidation, e.Code())
		})
	}
}
