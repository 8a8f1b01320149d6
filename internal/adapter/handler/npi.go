package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/kaptinlin/jsonschema"

	"medhelper/internal/domain"
	"medhelper/internal/protocol/router"
	"medhelper/internal/usecase/identifier"
	"medhelper/pkg/result"
)

const npiSchema = `{
	"type": "object",
	"properties": {
		"action":         {"type": ["string", "null"]},
		"isOrganization": {"type": "boolean"},
		"npi":            {"type": ["string", "null"]},
		"requestId":      {"type": "integer", "minimum": 0}
	}
}`

const (
	actionGenerate = "generate"
	actionValidate = "validate"
)

type npiRequest struct {
	envelope
	Action         json.RawMessage `json:"action"`
	IsOrganization bool            `json:"isOrganization"`
	NPI            string          `json:"npi"`
}

// NPI serves the "npi" command. The action field selects between
// generating a new NPI and validating a given one.
type NPI struct {
	svc    *identifier.Service
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewNPI(svc *identifier.Service, logger *slog.Logger) *NPI {
	return &NPI{svc: svc, schema: mustCompile(npiSchema), logger: logger}
}

func (h *NPI) Command() string { return "npi" }

func (h *NPI) Handle(ctx context.Context, call *router.Call) {
	req := decode[npiRequest](call, h.schema, string(domain.KindNPI))
	result.Do(result.Bind(req, action),
		func(a string) {
			r, _ := req.Value()
			switch a {
			case actionGenerate:
				reply(ctx, call, h.logger, "npi", h.svc.CreateNPI(ctx, r.IsOrganization))
			case actionValidate:
				result.Do(h.svc.ValidateNPI(r.NPI),
					func(valid bool) { _ = call.Succeed(ctx, "isValid", valid) },
					func(e *domain.DomainError) { fail(ctx, call, h.logger, e) })
			}
		},
		func(e *domain.DomainError) { fail(ctx, call, h.logger, e) })
}

func action(req npiRequest) result.Result[string, *domain.DomainError] {
	const op = "Handler.npi"
	if len(req.Action) == 0 {
		return result.Fail[string](domain.ValidationError(string(domain.KindNPI), op, "Missing action property"))
	}
	var a string
	_ = json.Unmarshal(req.Action, &a)
	return result.Ok[string, *domain.DomainError](a).
		Ensure(func(a string) bool { return a != "" },
			domain.ValidationError(string(domain.KindNPI), op, "Action property is null")).
		Ensure(func(a string) bool { return a == actionGenerate || a == actionValidate },
			domain.ValidationError(string(domain.KindNPI), op, "Unknown action"))
}
