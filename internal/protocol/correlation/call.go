package correlation

import (
	"context"
	"fmt"
	"time"

	"medhelper/internal/domain"
	"medhelper/pkg/result"
)

// Call issues command and decodes a successful response payload into T.
// If ctx ends before the response, the call is abandoned with ErrTimeout;
// the pending entry is still reclaimed by its own timer.
func Call[T any](ctx context.Context, m *Manager, command string, payload any, timeout time.Duration) result.Result[T, *domain.DomainError] {
	resp, err := m.Issue(ctx, command, payload, timeout).Await(ctx)
	if err != nil {
		return result.Fail[T](domain.NewDomainError("correlation.Call", domain.ErrTimeout, err.Error()).
			WithMessage(fmt.Sprintf("Request '%s' was abandoned", command)))
	}
	return result.Bind(resp, func(r Response) result.Result[T, *domain.DomainError] {
		return result.Try(func() (T, error) {
			var out T
			err := r.Decode(&out)
			return out, err
		}, func(err error) *domain.DomainError {
			return domain.NewDomainError("correlation.Call", domain.ErrPayloadParse, err.Error()).
				WithMessage(fmt.Sprintf("Response to '%s' could not be read", command))
		})
	})
}
