package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"medhelper/internal/domain"
	"medhelper/pkg/result"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration
}

// BreakerRepository wraps an IdentifierRepository with circuit breaker
// protection. Once the database keeps failing, calls fail fast with
// ErrStorageUnavailable until the breaker lets a trial request through.
type BreakerRepository struct {
	inner   domain.IdentifierRepository
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

// NewBreakerRepository wraps inner with a circuit breaker. Zero fields in
// cfg fall back to defaults.
func NewBreakerRepository(inner domain.IdentifierRepository, cfg BreakerConfig, logger *slog.Logger) *BreakerRepository {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "storage",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Only database faults count; a rejected record is not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrStorage)
		},
	})
	return &BreakerRepository{inner: inner, breaker: cb, logger: logger}
}

func (b *BreakerRepository) Add(ctx context.Context, rec domain.IdentifierRecord) result.Result[result.Unit, *domain.DomainError] {
	return execute(b, "BreakerRepository.Add", string(rec.Kind),
		fmt.Sprintf("The %s was not saved in the database.", rec.Kind.Label()),
		func() result.Result[result.Unit, *domain.DomainError] { return b.inner.Add(ctx, rec) })
}

func (b *BreakerRepository) Recent(ctx context.Context, kind domain.IdentifierKind, limit int) result.Result[[]domain.IdentifierRecord, *domain.DomainError] {
	return execute(b, "BreakerRepository.Recent", string(kind), historyUnavailable,
		func() result.Result[[]domain.IdentifierRecord, *domain.DomainError] { return b.inner.Recent(ctx, kind, limit) })
}

// State returns the current circuit breaker state for monitoring.
func (b *BreakerRepository) State() gobreaker.State {
	return b.breaker.State()
}

func execute[T any](b *BreakerRepository, op, subsystem, message string, fn func() result.Result[T, *domain.DomainError]) result.Result[T, *domain.DomainError] {
	var inner result.Result[T, *domain.DomainError]
	_, err := b.breaker.Execute(func() (any, error) {
		inner = fn()
		if e, failed := inner.Err(); failed {
			return nil, e
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return result.Fail[T](domain.NewSubSystemError(subsystem, op, domain.ErrStorageUnavailable, err.Error()).
			WithMessage(message))
	}
	return inner
}

var _ domain.IdentifierRepository = (*BreakerRepository)(nil)
