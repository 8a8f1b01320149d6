package frame

import (
	"strings"

	"medhelper/internal/domain"
	"medhelper/pkg/result"
)

const (
	emptyPayloadMessage = "The payload was empty. Thus, no information can be retrieved."
)

// LegacyJSON extracts the JSON document from a plain frame payload written
// by older producers that prefix it with "request:<id>:" even on untagged
// sends. When the trimmed payload does not open with '{' or '[', up to two
// leading colon-delimited segments are stripped. Payloads of tagged frames
// never pass through here.
func LegacyJSON(payload string) result.Result[string, *domain.DomainError] {
	return result.Map(
		result.Ok[string, *domain.DomainError](payload).
			Ensure(func(p string) bool { return strings.TrimSpace(p) != "" },
				domain.NewDomainError("Frame.LegacyJSON", domain.ErrEmptyPayload, "").WithMessage(emptyPayloadMessage)),
		func(p string) string {
			trimmed := strings.TrimLeft(p, " \t\r\n")
			if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
				return trimmed
			}
			return stripLegacyPrefix(trimmed)
		})
}

func stripLegacyPrefix(p string) string {
	first := strings.IndexByte(p, ':')
	if first == -1 {
		return p
	}
	second := strings.IndexByte(p[first+1:], ':')
	if second == -1 {
		return p[first+1:]
	}
	return p[first+1+second+1:]
}
