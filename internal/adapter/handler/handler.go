// Package handler implements the host commands served over the frame
// channel.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"medhelper/internal/domain"
	"medhelper/internal/protocol/frame"
	"medhelper/internal/protocol/router"
	"medhelper/internal/usecase/identifier"
	"medhelper/pkg/result"
)

const (
	emptyPayloadMessage = "The payload was empty. Thus, no information can be retrieved."
	payloadParseMessage = "There was an internal problem retrieving the payload information. See the details for more information."
)

// Register adds every identifier command to b.
func Register(b *router.Builder, svc *identifier.Service, logger *slog.Logger) *router.Builder {
	return b.
		Register(NewDEA(svc, logger)).
		Register(NewLicense(svc, logger)).
		Register(NewNPI(svc, logger)).
		Register(NewHistory(svc, logger))
}

// envelope carries the fields every request shares.
type envelope struct {
	RequestID uint64 `json:"requestId"`
}

func (e envelope) requestID() uint64 { return e.RequestID }

type request interface {
	requestID() uint64
}

func mustCompile(src string) *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(src))
	if err != nil {
		panic(fmt.Sprintf("handler: invalid request schema: %v", err))
	}
	return schema
}

// decode turns the call payload into T. Plain frames go through the legacy
// prefix adapter and answer under the payload requestId.
func decode[T request](call *router.Call, schema *jsonschema.Schema, subsystem string) result.Result[T, *domain.DomainError] {
	op := "Handler." + call.Command()
	return result.Bind(body(call), func(raw string) result.Result[T, *domain.DomainError] {
		parsed := result.Try(func() (any, error) {
			var doc any
			err := json.Unmarshal([]byte(raw), &doc)
			return doc, err
		}, func(err error) *domain.DomainError {
			return domain.NewSubSystemError(subsystem, op, domain.ErrPayloadParse, err.Error()).WithMessage(payloadParseMessage)
		})
		valid := result.Bind(parsed, func(doc any) result.Result[any, *domain.DomainError] {
			if res := schema.Validate(doc); !res.IsValid() {
				return result.Fail[any](domain.ValidationError(subsystem, op, "Invalid request: "+res.Error()))
			}
			return result.Ok[any, *domain.DomainError](doc)
		})
		return result.Bind(valid, func(any) result.Result[T, *domain.DomainError] {
			return result.Try(func() (T, error) {
				var req T
				err := json.Unmarshal([]byte(raw), &req)
				return req, err
			}, func(err error) *domain.DomainError {
				return domain.NewSubSystemError(subsystem, op, domain.ErrPayloadParse, err.Error()).WithMessage(payloadParseMessage)
			})
		})
	}).Tap(func(req T) { call.AdoptRequestID(req.requestID()) })
}

func body(call *router.Call) result.Result[string, *domain.DomainError] {
	if !call.Tagged() {
		return frame.LegacyJSON(call.Payload())
	}
	return result.Ok[string, *domain.DomainError](call.Payload()).
		Ensure(func(p string) bool { return strings.TrimSpace(p) != "" },
			domain.NewDomainError("Handler."+call.Command(), domain.ErrEmptyPayload, "").
				WithMessage(emptyPayloadMessage))
}

// reply answers call with the eventual value of f under field.
func reply[T any](ctx context.Context, call *router.Call, logger *slog.Logger, field string, f *result.Future[T, *domain.DomainError]) {
	call.Go(ctx, func(ctx context.Context) {
		err := result.DoAsync(ctx, f,
			func(v T) { _ = call.Succeed(ctx, field, v) },
			func(e *domain.DomainError) { fail(ctx, call, logger, e) })
		if err != nil {
			logger.Warn("request abandoned",
				"command", call.Command(), "correlation_id", call.ID(), "error", err)
		}
	})
}

func fail(ctx context.Context, call *router.Call, logger *slog.Logger, e *domain.DomainError) {
	logger.Debug("request failed",
		"command", call.Command(), "correlation_id", call.ID(), "error", e)
	_ = call.Fail(ctx, e)
}
