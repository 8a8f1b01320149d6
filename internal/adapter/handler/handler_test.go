package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medhelper/internal/adapter/storage"
	"medhelper/internal/domain"
	"medhelper/internal/protocol/correlation"
	"medhelper/internal/protocol/frame"
	"medhelper/internal/protocol/loopback"
	"medhelper/internal/protocol/router"
	"medhelper/internal/usecase/identifier"
	"medhelper/pkg/result"
)

type recordingSender struct {
	mu     sync.Mutex
	frames []string
}

func (s *recordingSender) Send(_ context.Context, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, raw)
	return nil
}

func (s *recordingSender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

func newService(t *testing.T) *identifier.Service {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ids.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return identifier.NewService(store, slog.Default())
}

func newRouter(t *testing.T) *router.Router {
	t.Helper()
	table := Register(router.NewBuilder(), newService(t), slog.Default()).Build()
	return router.New(table, slog.Default())
}

// route sends raw through a fresh router and returns the single response.
func route(t *testing.T, r *router.Router, raw string) frame.Frame {
	t.Helper()
	s := &recordingSender{}
	r.Route(context.Background(), s, raw)
	r.Wait()
	frames := s.all()
	require.Len(t, frames, 1, "exactly one response")
	f, ok := frame.Decode(frames[0]).Value()
	require.True(t, ok, frames[0])
	require.Equal(t, frame.KindResponse, f.Kind)
	return f
}

func payloadOf(t *testing.T, f frame.Frame) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.Payload), &m))
	return m
}

func TestRegisterCommands(t *testing.T) {
	assert.Equal(t, []string{"dea", "history", "license", "npi"}, newRouter(t).Commands())
}

func TestDEARequestProducesCheckedNumber(t *testing.T) {
	r := newRouter(t)
	f := route(t, r, `dea:request:1:{"lastName":"Smith","isNarcotic":false,"requestId":1}`)

	assert.Equal(t, "dea", f.Command)
	assert.Equal(t, uint64(1), f.ID)
	assert.Regexp(t, `^\{"success":true,"deaNumber":"[ABF]S\d{7}"\}$`, f.Payload)

	number := payloadOf(t, f)["deaNumber"].(string)
	assert.Equal(t, strconv.Itoa(identifier.DEAChecksum(number[2:8])), number[8:9])
}

func TestDEANarcotic(t *testing.T) {
	f := route(t, newRouter(t), `dea:request:4:{"lastName":"lee","isNarcotic":true}`)
	assert.Regexp(t, `^[MP]L\d{7}$`, payloadOf(t, f)["deaNumber"])
}

func TestHandlerFailures(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		id    uint64
		error string
		code  string
	}{
		{"missing last name", `dea:request:2:{"isNarcotic":false}`, 2,
			"No last name was provided for the DEA number creation.", "DEA_VALIDATION"},
		{"null last name ndea", `dea:request:3:{"lastName":null,"isNarcotic":true}`, 3,
			"No last name was provided for the NDEA number creation.", "NDEA_VALIDATION"},
		{"schema type", `dea:request:5:{"lastName":7}`, 5, "", "DEA_VALIDATION"},
		{"empty tagged payload", `dea:request:6:`, 6,
			"The payload was empty. Thus, no information can be retrieved.", "EMPTY_PAYLOAD"},
		{"broken json", `license:request:8:{"stateCode":`, 8,
			payloadParseMessage, "PAYLOAD_PARSE"},
		{"license state", `license:request:9:{"lastName":"Doe"}`, 9,
			"No state code was provided for the license number creation.", "LICENSE_VALIDATION"},
		{"npi missing action", `npi:request:10:{}`, 10, "Missing action property", "NPI_VALIDATION"},
		{"npi null action", `npi:request:11:{"action":null}`, 11, "Action property is null", "NPI_VALIDATION"},
		{"npi unknown action", `npi:request:12:{"action":"delete"}`, 12, "Unknown action", "NPI_VALIDATION"},
		{"npi invalid", `npi:request:13:{"action":"validate","npi":"1234567890"}`, 13,
			"NPI failed Luhn check digit validation", "NPI_VALIDATION"},
		{"history kind", `history:request:14:{"kind":"passport"}`, 14, "", "VALIDATION_ERROR"},
	}
	r := newRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := route(t, r, tt.raw)
			assert.Equal(t, tt.id, f.ID)
			p := payloadOf(t, f)
			assert.Equal(t, false, p["success"])
			assert.Equal(t, tt.code, p["code"])
			if tt.error != "" {
				assert.Equal(t, tt.error, p["error"])
			} else {
				assert.NotEmpty(t, p["error"])
			}
		})
	}
}

func TestLicenseRequest(t *testing.T) {
	f := route(t, newRouter(t), `license:request:20:{"stateCode":"FL","lastName":"Nguyen","licenseType":"Pharmacy","requestId":20}`)
	assert.Regexp(t, `^PHN\d{6}$`, payloadOf(t, f)["licenseNumber"])
}

func TestNPIGenerateAndValidate(t *testing.T) {
	r := newRouter(t)
	f := route(t, r, `npi:request:30:{"action":"generate","isOrganization":true}`)
	npi := payloadOf(t, f)["npi"].(string)
	assert.Regexp(t, `^2\d{9}$`, npi)

	f = route(t, r, `npi:request:31:{"action":"validate","npi":"`+npi+`"}`)
	assert.JSONEq(t, `{"success":true,"isValid":true}`, f.Payload)
}

func TestPlainFrameUsesLegacyPayloadAndRequestID(t *testing.T) {
	r := newRouter(t)
	f := route(t, r, `npi:request:42:{"action":"validate","npi":"1234567893","requestId":42}`)
	assert.Equal(t, uint64(42), f.ID)

	// Untagged producers may prefix the JSON with two throwaway segments;
	// the response goes out under the payload requestId.
	f = route(t, r, `npi:legacy:17:{"action":"validate","npi":"1234567893","requestId":17}`)
	assert.Equal(t, uint64(17), f.ID)
	assert.JSONEq(t, `{"success":true,"isValid":true}`, f.Payload)

	f = route(t, r, `npi:{"action":"validate","npi":"1234567893","requestId":18}`)
	assert.Equal(t, uint64(18), f.ID)
}

func TestHistoryListsGeneratedNumbers(t *testing.T) {
	r := newRouter(t)
	var want []string
	for i := range 3 {
		f := route(t, r, `npi:request:`+strconv.Itoa(50+i)+`:{"action":"generate"}`)
		want = append(want, payloadOf(t, f)["npi"].(string))
	}

	f := route(t, r, `history:request:60:{"kind":"npi","limit":10}`)
	var resp struct {
		Success bool          `json:"success"`
		History []historyItem `json:"history"`
	}
	require.NoError(t, json.Unmarshal([]byte(f.Payload), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.History, 3)
	var got []string
	for _, item := range resp.History {
		got = append(got, item.Value)
		assert.NotEmpty(t, item.ID)
	}
	assert.ElementsMatch(t, want, got)
}

func TestThroughLoopback(t *testing.T) {
	p := loopback.New(newRouter(t), slog.Default())
	t.Cleanup(p.Close)
	ctx := context.Background()

	type deaResponse struct {
		Success   bool   `json:"success"`
		DEANumber string `json:"deaNumber"`
	}
	out, ok := correlation.Call[deaResponse](ctx, p.Manager(), "dea",
		map[string]any{"lastName": "Smith", "isNarcotic": false}, time.Second).Value()
	require.True(t, ok)
	assert.True(t, out.Success)
	assert.Regexp(t, `^[ABF]S\d{7}$`, out.DEANumber)

	e, isFail := p.Manager().Issue(ctx, "license", map[string]any{"stateCode": "CA"}, time.Second).Wait().Err()
	require.True(t, isFail)
	assert.ErrorIs(t, e, domain.ErrServer)
	assert.Equal(t, "No last name was provided for the license number creation.", domain.PublicMessage(e))
}

type panickingRepo struct{}

func (panickingRepo) Add(context.Context, domain.IdentifierRecord) result.Result[result.Unit, *domain.DomainError] {
	panic("driver blew up")
}

func (panickingRepo) Recent(context.Context, domain.IdentifierKind, int) result.Result[[]domain.IdentifierRecord, *domain.DomainError] {
	panic("driver blew up")
}

func TestRepositoryPanicAnsweredOnce(t *testing.T) {
	svc := identifier.NewService(panickingRepo{}, slog.Default())
	r := router.New(Register(router.NewBuilder(), svc, slog.Default()).Build(), slog.Default())

	for _, raw := range []string{
		`dea:request:1:{"lastName":"Smith","isNarcotic":false,"requestId":1}`,
		`npi:request:2:{"action":"generate"}`,
		`history:request:3:{"kind":"npi"}`,
	} {
		f := route(t, r, raw)
		p := payloadOf(t, f)
		assert.Equal(t, false, p["success"], raw)
		assert.Equal(t, string(domain.CodeHandlerExecution), p["code"], raw)
		assert.Equal(t, "Handler error while processing '"+f.Command+"'", p["error"], raw)
	}
}
