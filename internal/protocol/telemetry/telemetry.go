// Package telemetry holds the metric keys and labels emitted by the
// protocol layers.
package telemetry

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricRouterFrames          = []string{"medhelper", "router", "frames", "count"}
	MetricRouterFramingErrors   = []string{"medhelper", "router", "framing", "error", "count"}
	MetricRouterUnknownCommands = []string{"medhelper", "router", "unknown", "command", "count"}
	MetricRouterHandlerPanics   = []string{"medhelper", "router", "handler", "panic", "count"}
	MetricRouterDuplicateReply  = []string{"medhelper", "router", "duplicate", "response", "count"}
	MetricRouterHandleTime      = []string{"medhelper", "router", "handle", "ms"}

	MetricCallIssued    = []string{"medhelper", "correlation", "issued", "count"}
	MetricCallResolved  = []string{"medhelper", "correlation", "resolved", "count"}
	MetricCallTimeouts  = []string{"medhelper", "correlation", "timeout", "count"}
	MetricCallUnmatched = []string{"medhelper", "correlation", "unmatched", "count"}
	MetricCallPending   = []string{"medhelper", "correlation", "pending"}

	MetricGatewayConns         = []string{"medhelper", "gateway", "connections", "count"}
	MetricGatewayFramesDropped = []string{"medhelper", "gateway", "frames", "dropped", "count"}

	MetricStorageInserts      = []string{"medhelper", "storage", "insert", "count"}
	MetricStorageInsertErrors = []string{"medhelper", "storage", "insert", "error", "count"}
)

type Label string

var (
	LabelCommand Label = "command"
	LabelOutcome Label = "outcome"
	LabelKind    Label = "kind"
	LabelReason  Label = "reason"
)

func (lab Label) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab Label) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}

// SinkOrBlackhole returns sink, or a sink that discards everything when nil.
func SinkOrBlackhole(sink metrics.MetricSink) metrics.MetricSink {
	if sink == nil {
		return &metrics.BlackholeSink{}
	}
	return sink
}

// Since returns the elapsed milliseconds since start, for AddSample.
func Since(start time.Time) float32 {
	return float32(time.Since(start).Seconds() * 1000)
}

// Handler serves the in-memory sink's current interval as JSON.
func Handler(sink *metrics.InmemSink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		summary, err := sink.DisplayMetrics(w, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// CounterTotal sums every counter sample of key across the sink's retained
// intervals, regardless of labels.
func CounterTotal(sink *metrics.InmemSink, key []string) int {
	name := strings.Join(key, ".")
	total := 0
	for _, interval := range sink.Data() {
		for k, v := range interval.Counters {
			if k == name || strings.HasPrefix(k, name+";") {
				total += v.Count
			}
		}
	}
	return total
}
