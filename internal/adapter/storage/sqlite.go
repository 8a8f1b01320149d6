// Package storage persists generated identifiers.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"medhelper/internal/domain"
	"medhelper/internal/protocol/telemetry"
	"medhelper/pkg/result"
)

// timeLayout is RFC 3339 with a fixed-width fraction so created_at sorts
// lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// tables maps each identifier kind to its append-only table.
var tables = map[domain.IdentifierKind]string{
	domain.KindDEA:     "dea_registration_numbers",
	domain.KindNDEA:    "ndea_registration_numbers",
	domain.KindLicense: "license_numbers",
	domain.KindNPI:     "npi_numbers",
}

const historyUnavailable = "The identifier history could not be read."

// SQLiteStore implements domain.IdentifierRepository using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	sink   metrics.MetricSink
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithMetricSink sets the sink for insert counters.
func WithMetricSink(sink metrics.MetricSink) Option {
	return func(s *SQLiteStore) { s.sink = sink }
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string, logger *slog.Logger, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open identifier db: %w", err)
	}
	// One writer; SQLite serializes writes anyway and this keeps ":memory:"
	// databases on a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate identifier db: %w", err)
	}
	s := &SQLiteStore{db: db, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	s.sink = telemetry.SinkOrBlackhole(s.sink)
	return s, nil
}

func migrate(db *sql.DB) error {
	for _, kind := range domain.Kinds {
		table := tables[kind]
		stmts := []string{
			fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id         TEXT PRIMARY KEY,
				value      TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`, table),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_value ON %[1]s(value)", table),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s(created_at)", table),
		}
		for _, stmt := range stmts {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("create %s: %w", table, err)
			}
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Add(ctx context.Context, rec domain.IdentifierRecord) result.Result[result.Unit, *domain.DomainError] {
	const op = "SQLiteStore.Add"
	notSaved := fmt.Sprintf("The %s was not saved in the database.", rec.Kind.Label())

	table, ok := tables[rec.Kind]
	if !ok {
		return result.Fail[result.Unit](domain.StorageError(string(rec.Kind), op, notSaved,
			fmt.Errorf("unknown identifier kind %q", rec.Kind)))
	}
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	inserted := result.Try(func() (int64, error) {
		res, err := s.db.ExecContext(ctx,
			"INSERT INTO "+table+" (id, value, created_at) VALUES (?, ?, ?)",
			rec.ID, rec.Value, rec.CreatedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}, func(err error) *domain.DomainError {
		return domain.StorageError(string(rec.Kind), op, notSaved, err)
	})
	checked := inserted.Ensure(func(n int64) bool { return n > 0 },
		domain.StorageError(string(rec.Kind), op, notSaved, nil))

	return result.Map(checked.
		Tap(func(int64) {
			s.sink.IncrCounterWithLabels(telemetry.MetricStorageInserts, 1,
				[]metrics.Label{telemetry.LabelKind.M(string(rec.Kind))})
		}).
		TapError(func(e *domain.DomainError) {
			s.logger.Error("identifier insert failed", "kind", rec.Kind, "error", e)
			s.sink.IncrCounterWithLabels(telemetry.MetricStorageInsertErrors, 1,
				[]metrics.Label{telemetry.LabelKind.M(string(rec.Kind))})
		}),
		func(int64) result.Unit { return result.Unit{} })
}

func (s *SQLiteStore) Recent(ctx context.Context, kind domain.IdentifierKind, limit int) result.Result[[]domain.IdentifierRecord, *domain.DomainError] {
	const op = "SQLiteStore.Recent"
	table, ok := tables[kind]
	if !ok {
		return result.Fail[[]domain.IdentifierRecord](domain.NewDomainError(op, domain.ErrStorage,
			fmt.Sprintf("unknown identifier kind %q", kind)).
			WithMessage(historyUnavailable))
	}
	return result.Try(func() ([]domain.IdentifierRecord, error) {
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, value, created_at FROM "+table+" ORDER BY created_at DESC, id DESC LIMIT ?", limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []domain.IdentifierRecord
		for rows.Next() {
			rec := domain.IdentifierRecord{Kind: kind}
			var createdStr string
			if err := rows.Scan(&rec.ID, &rec.Value, &createdStr); err != nil {
				return nil, err
			}
			created, err := time.Parse(time.RFC3339Nano, createdStr)
			if err != nil {
				return nil, fmt.Errorf("row %s: created_at: %w", rec.ID, err)
			}
			rec.CreatedAt = created
			out = append(out, rec)
		}
		return out, rows.Err()
	}, func(err error) *domain.DomainError {
		return domain.NewDomainError(op, domain.ErrStorage, err.Error()).WithMessage(historyUnavailable)
	})
}

var _ domain.IdentifierRepository = (*SQLiteStore)(nil)
