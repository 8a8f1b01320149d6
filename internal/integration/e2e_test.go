package integration

import (
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medhelper/internal/domain"
	"medhelper/internal/protocol/correlation"
	"medhelper/internal/protocol/telemetry"
	"medhelper/internal/usecase/identifier"
)

type deaReply struct {
	Success   bool   `json:"success"`
	DEANumber string `json:"deaNumber"`
}

type npiReply struct {
	Success bool   `json:"success"`
	NPI     string `json:"npi"`
	IsValid bool   `json:"isValid"`
}

type historyReply struct {
	Success bool `json:"success"`
	History []struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"history"`
}

func TestE2E_GenerateOverWebSocket(t *testing.T) {
	SkipIfShort(t)
	stack := StartStack(t, filepath.Join(t.TempDir(), "ids.db"), "")
	m := stack.Dial(t).Manager()
	ctx := NewTestContext(t, 10*time.Second)

	dea, ok := correlation.Call[deaReply](ctx, m, "dea",
		map[string]any{"lastName": "Smith", "isNarcotic": false}, 2*time.Second).Value()
	require.True(t, ok)
	assert.Regexp(t, `^[ABF]S\d{7}$`, dea.DEANumber)
	assert.Equal(t, strconv.Itoa(identifier.DEAChecksum(dea.DEANumber[2:8])), dea.DEANumber[8:])

	gen, ok := correlation.Call[npiReply](ctx, m, "npi",
		map[string]any{"action": "generate"}, 2*time.Second).Value()
	require.True(t, ok)
	require.Len(t, gen.NPI, 10)

	val, ok := correlation.Call[npiReply](ctx, m, "npi",
		map[string]any{"action": "validate", "npi": gen.NPI}, 2*time.Second).Value()
	require.True(t, ok)
	assert.True(t, val.IsValid)

	assert.Equal(t, 2, telemetry.CounterTotal(stack.Sink, telemetry.MetricStorageInserts))
}

func TestE2E_FailuresCrossTheWire(t *testing.T) {
	SkipIfShort(t)
	stack := StartStack(t, filepath.Join(t.TempDir(), "ids.db"), "")
	m := stack.Dial(t).Manager()
	ctx := NewTestContext(t, 10*time.Second)

	e, isFail := correlation.Call[deaReply](ctx, m, "dea",
		map[string]any{"lastName": "  "}, 2*time.Second).Err()
	require.True(t, isFail)
	assert.ErrorIs(t, e, domain.ErrServer)
	assert.Equal(t, "No last name was provided for the DEA number creation.", domain.PublicMessage(e))

	e, isFail = correlation.Call[deaReply](ctx, m, "passport", map[string]any{}, 2*time.Second).Err()
	require.True(t, isFail)
	assert.Contains(t, domain.PublicMessage(e), "Unknown command 'passport'")
}

func TestE2E_ConcurrentCallsResolveIndependently(t *testing.T) {
	SkipIfShort(t)
	stack := StartStack(t, filepath.Join(t.TempDir(), "ids.db"), "")
	m := stack.Dial(t).Manager()
	ctx := NewTestContext(t, 10*time.Second)

	const n = 20
	var wg sync.WaitGroup
	numbers := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, ok := correlation.Call[npiReply](ctx, m, "npi",
				map[string]any{"action": "generate", "isOrganization": i%2 == 0}, 5*time.Second).Value()
			if ok {
				numbers[i] = r.NPI
			}
		}()
	}
	wg.Wait()

	for i, npi := range numbers {
		require.Len(t, npi, 10, "call %d", i)
		want := "2"
		if i%2 == 1 {
			want = "1"
		}
		assert.Equal(t, want, npi[:1], "call %d prefix", i)
	}
	assert.Equal(t, 0, m.Pending())
}

func TestE2E_HistorySurvivesRestart(t *testing.T) {
	SkipIfShort(t)
	db := filepath.Join(t.TempDir(), "ids.db")

	first := StartStack(t, db, "secret")
	ctx := NewTestContext(t, 10*time.Second)
	lic, ok := correlation.Call[map[string]any](ctx, first.Dial(t).Manager(), "license",
		map[string]any{"stateCode": "ca", "lastName": "Lopez", "licenseType": "medical"}, 2*time.Second).Value()
	require.True(t, ok)
	number := lic["licenseNumber"].(string)
	assert.Regexp(t, `^AL\d{6}$`, number)
	first.Stop()

	second := StartStack(t, db, "secret")
	hist, ok := correlation.Call[historyReply](ctx, second.Dial(t).Manager(), "history",
		map[string]any{"kind": "license"}, 2*time.Second).Value()
	require.True(t, ok)
	require.Len(t, hist.History, 1)
	assert.Equal(t, number, hist.History[0].Value)
}
