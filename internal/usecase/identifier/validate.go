package identifier

import (
	"medhelper/internal/domain"
	"medhelper/pkg/result"
)

// ValidateNPI reports whether npi is a valid NPI. A failure names the first
// rule npi breaks.
func ValidateNPI(npi string) result.Result[bool, *domain.DomainError] {
	checked := result.Ok[string, *domain.DomainError](npi).
		Ensure(func(s string) bool { return s != "" }, npiRuleError("NPI cannot be null or empty")).
		Ensure(func(s string) bool { return len(s) == 10 }, npiRuleError("NPI must be exactly 10 digits")).
		Ensure(allDigits, npiRuleError("NPI must contain only numeric digits")).
		Ensure(func(s string) bool { return NPICheckDigit(s[:9]) == int(s[9]-'0') },
			npiRuleError("NPI failed Luhn check digit validation"))
	return result.Map(checked, func(string) bool { return true })
}

func npiRuleError(rule string) *domain.DomainError {
	return domain.ValidationError(string(domain.KindNPI), "Identifier.ValidateNPI", rule)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
