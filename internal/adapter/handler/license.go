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

const licenseSchema = `{
	"type": "object",
	"properties": {
		"stateCode":   {"type": ["string", "null"], "maxLength": 8},
		"lastName":    {"type": ["string", "null"]},
		"licenseType": {"type": ["string", "null"]},
		"requestId":   {"type": "integer", "minimum": 0}
	}
}`

type licenseRequest struct {
	envelope
	StateCode   string `json:"stateCode"`
	LastName    string `json:"lastName"`
	LicenseType string `json:"licenseType"`
}

// License serves the "license" command.
type License struct {
	svc    *identifier.Service
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewLicense(svc *identifier.Service, logger *slog.Logger) *License {
	return &License{svc: svc, schema: mustCompile(licenseSchema), logger: logger}
}

func (h *License) Command() string { return "license" }

func (h *License) Handle(ctx context.Context, call *router.Call) {
	result.Do(decode[licenseRequest](call, h.schema, string(domain.KindLicense)),
		func(req licenseRequest) {
			reply(ctx, call, h.logger, "licenseNumber", h.svc.CreateLicense(ctx,
				req.StateCode, req.LastName, domain.ParseLicenseType(req.LicenseType)))
		},
		func(e *domain.DomainError) { fail(ctx, call, h.logger, e) })
}
