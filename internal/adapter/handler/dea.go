package handler

import (
	"context"
	"log/slog"

	"github.com/kaptinlin/jsonschema"

	"medhelper/internal/domain"
	"medhelper/internal/protocol/router"
	"medhelper/internal/usecase/identifier"
	"medhelper/pkg/result"
)

const deaSchema = `{
	"type": "object",
	"properties": {
		"lastName":   {"type": ["string", "null"]},
		"isNarcotic": {"type": "boolean"},
		"requestId":  {"type": "integer", "minimum": 0}
	}
}`

type deaRequest struct {
	envelope
	LastName   string `json:"lastName"`
	IsNarcotic bool   `json:"isNarcotic"`
}

// DEA serves the "dea" command: generate a DEA, or NDEA, registration number.
type DEA struct {
	svc    *identifier.Service
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewDEA(svc *identifier.Service, logger *slog.Logger) *DEA {
	return &DEA{svc: svc, schema: mustCompile(deaSchema), logger: logger}
}

func (h *DEA) Command() string { return "dea" }

func (h *DEA) Handle(ctx context.Context, call *router.Call) {
	result.Do(decode[deaRequest](call, h.schema, string(domain.KindDEA)),
		func(req deaRequest) {
			reply(ctx, call, h.logger, "deaNumber", h.svc.CreateDEA(ctx, req.LastName, req.IsNarcotic))
		},
		func(e *domain.DomainError) { fail(ctx, call, h.logger, e) })
}
