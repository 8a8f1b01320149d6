package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/kaptinlin/jsonschema"

	"medhelper/internal/domain"
	"medhelper/internal/protocol/router"
	"medhelper/internal/usecase/identifier"
	"medhelper/pkg/result"
)

const historySchema = `{
	"type": "object",
	"required": ["kind"],
	"properties": {
		"kind":      {"type": "string", "enum": ["dea", "ndea", "license", "npi"]},
		"limit":     {"type": "integer", "minimum": 0, "maximum": 500},
		"requestId": {"type": "integer", "minimum": 0}
	}
}`

type historyRequest struct {
	envelope
	Kind  domain.IdentifierKind `json:"kind"`
	Limit int                   `json:"limit"`
}

type historyItem struct {
	ID        string `json:"id"`
	Value     string `json:"value"`
	CreatedAt string `json:"createdAt"`
}

// History serves the "history" command: the most recently generated
// identifiers of one kind, newest first.
type History struct {
	svc    *identifier.Service
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewHistory(svc *identifier.Service, logger *slog.Logger) *History {
	return &History{svc: svc, schema: mustCompile(historySchema), logger: logger}
}

func (h *History) Command() string { return "history" }

func (h *History) Handle(ctx context.Context, call *router.Call) {
	req := decode[historyRequest](call, h.schema, "history")
	call.Go(ctx, func(ctx context.Context) {
		records := result.Bind(req, func(r historyRequest) result.Result[[]domain.IdentifierRecord, *domain.DomainError] {
			return h.svc.History(ctx, r.Kind, r.Limit)
		})
		result.Do(records,
			func(recs []domain.IdentifierRecord) { _ = call.Succeed(ctx, "history", historyItems(recs)) },
			func(e *domain.DomainError) { fail(ctx, call, h.logger, e) })
	})
}

func historyItems(recs []domain.IdentifierRecord) []historyItem {
	items := make([]historyItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, historyItem{
			ID:        rec.ID,
			Value:     rec.Value,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	return items
}
