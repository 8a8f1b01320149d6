package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkOrBlackhole(t *testing.T) {
	_, ok := SinkOrBlackhole(nil).(*metrics.BlackholeSink)
	assert.True(t, ok)

	sink := metrics.NewInmemSink(time.Minute, time.Minute)
	assert.Same(t, sink, SinkOrBlackhole(sink))
}

func TestCounterTotalAcrossLabels(t *testing.T) {
	sink := metrics.NewInmemSink(time.Minute, time.Minute)
	sink.IncrCounterWithLabels(MetricRouterFrames, 1, []metrics.Label{LabelCommand.M("dea")})
	sink.IncrCounterWithLabels(MetricRouterFrames, 1, []metrics.Label{LabelCommand.M("npi")})
	sink.IncrCounter(MetricRouterFrames, 1)
	sink.IncrCounter(MetricCallIssued, 1)

	assert.Equal(t, 3, CounterTotal(sink, MetricRouterFrames))
	assert.Equal(t, 1, CounterTotal(sink, MetricCallIssued))
	assert.Equal(t, 0, CounterTotal(sink, MetricCallTimeouts))
}

func TestHandler(t *testing.T) {
	sink := metrics.NewInmemSink(time.Minute, time.Minute)
	sink.IncrCounter(MetricStorageInserts, 1)

	rec := httptest.NewRecorder()
	Handler(sink)(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Counters []struct{ Name string }
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Counters, 1)
	assert.Equal(t, "medhelper.storage.insert.count", body.Counters[0].Name)

	rec = httptest.NewRecorder()
	Handler(sink)(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, metrics.Label{Name: "kind", Value: "npi"}, LabelKind.M("npi"))
	attr := LabelReason.L("timeout")
	assert.Equal(t, "reason", attr.Key)
	assert.Equal(t, "timeout", attr.Value.String())
}
