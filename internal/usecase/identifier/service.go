package identifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"medhelper/internal/domain"
	"medhelper/pkg/result"
)

const (
	// DefaultHistoryLimit bounds History when the caller passes no limit.
	DefaultHistoryLimit = 20
	// MaxHistoryLimit is the largest limit History accepts.
	MaxHistoryLimit = 500
)

// Service generates identifiers and records every one it hands out.
type Service struct {
	repo   domain.IdentifierRepository
	gen    *Generator
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithGenerator replaces the randomly seeded generator.
func WithGenerator(g *Generator) Option {
	return func(s *Service) { s.gen = g }
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service backed by repo.
func NewService(repo domain.IdentifierRepository, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		gen:    NewGenerator(nil),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDEA generates and stores a DEA number, or an NDEA number when
// narcotic is set.
func (s *Service) CreateDEA(ctx context.Context, lastName string, narcotic bool) *result.Future[string, *domain.DomainError] {
	kind := domain.KindDEA
	if narcotic {
		kind = domain.KindNDEA
	}
	rec := requireText(kind, "Identifier.CreateDEA", lastName,
		fmt.Sprintf("No last name was provided for the %s creation.", kind.Label()))
	return s.persist(ctx, result.Map(rec, func(name string) domain.IdentifierRecord {
		return s.record(kind, s.gen.DEA(narcotic, name))
	}))
}

// CreateLicense generates and stores a state license number.
func (s *Service) CreateLicense(ctx context.Context, stateCode, lastName string, licenseType domain.LicenseType) *result.Future[string, *domain.DomainError] {
	const op = "Identifier.CreateLicense"
	kind := domain.KindLicense
	rec := result.Bind(
		requireText(kind, op, stateCode, "No state code was provided for the license number creation."),
		func(string) result.Result[string, *domain.DomainError] {
			return requireText(kind, op, lastName, "No last name was provided for the license number creation.")
		})
	return s.persist(ctx, result.Map(rec, func(name string) domain.IdentifierRecord {
		return s.record(kind, s.gen.License(stateCode, name, licenseType))
	}))
}

// CreateNPI generates and stores an NPI.
func (s *Service) CreateNPI(ctx context.Context, isOrganization bool) *result.Future[string, *domain.DomainError] {
	rec := s.record(domain.KindNPI, s.gen.NPI(isOrganization))
	return s.persist(ctx, result.Ok[domain.IdentifierRecord, *domain.DomainError](rec))
}

// ValidateNPI checks the format and Luhn check digit of npi.
func (s *Service) ValidateNPI(npi string) result.Result[bool, *domain.DomainError] {
	return ValidateNPI(npi)
}

// History returns the most recent identifiers of kind, newest first.
func (s *Service) History(ctx context.Context, kind domain.IdentifierKind, limit int) result.Result[[]domain.IdentifierRecord, *domain.DomainError] {
	if !knownKind(kind) {
		return result.Fail[[]domain.IdentifierRecord](domain.ValidationError("history", "Identifier.History",
			fmt.Sprintf("Unknown identifier kind '%s'", kind)))
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	return s.repo.Recent(ctx, kind, limit)
}

func (s *Service) persist(ctx context.Context, rec result.Result[domain.IdentifierRecord, *domain.DomainError]) *result.Future[string, *domain.DomainError] {
	stored := result.BindAsync(ctx, result.Resolved(rec),
		func(ctx context.Context, r domain.IdentifierRecord) result.Result[domain.IdentifierRecord, *domain.DomainError] {
			return result.Map(s.repo.Add(ctx, r), func(result.Unit) domain.IdentifierRecord { return r })
		})
	stored = result.TapAsync(ctx, stored, func(r domain.IdentifierRecord) {
		s.logger.Debug("identifier stored", "kind", r.Kind, "id", r.ID)
	})
	return result.MapAsync(ctx, stored, func(r domain.IdentifierRecord) string { return r.Value })
}

func (s *Service) record(kind domain.IdentifierKind, value string) domain.IdentifierRecord {
	now := s.now().UTC()
	return domain.IdentifierRecord{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Kind:      kind,
		Value:     value,
		CreatedAt: now,
	}
}

func requireText(kind domain.IdentifierKind, op, value, message string) result.Result[string, *domain.DomainError] {
	return result.Ok[string, *domain.DomainError](value).
		Ensure(func(v string) bool { return strings.TrimSpace(v) != "" },
			domain.ValidationError(string(kind), op, message))
}

func knownKind(kind domain.IdentifierKind) bool {
	for _, k := range domain.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
