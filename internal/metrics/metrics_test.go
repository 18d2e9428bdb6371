package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"pixelmorph.ai/internal/sim/drawing"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	fams, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := map[string]*dto.MetricFamily{}
	for _, f := range fams {
		out[f.GetName()] = f
	}
	return out
}

func TestMetrics_BatchesAndRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	_ = m.WriteBatch(drawing.BatchLogEntry{Swaps: 7, Cost: 1200, DurationMS: 12})
	_ = m.WriteBatch(drawing.BatchLogEntry{Swaps: 3, Cost: 900, DurationMS: 8})
	_ = m.RecordRun(drawing.RunInfo{RunID: "a", Generation: 4})
	_ = m.RecordRun(drawing.RunInfo{RunID: "a", Generation: 4, EndedAt: time.Now(), Reason: "superseded"})
	m.StaleDropped()
	m.SetSubscribers(2)

	fams := gather(t, reg)
	check := func(name string, want float64) {
		t.Helper()
		f := fams[name]
		if f == nil || len(f.Metric) == 0 {
			t.Fatalf("missing %s", name)
		}
		var got float64
		switch {
		case f.Metric[0].Counter != nil:
			got = f.Metric[0].Counter.GetValue()
		case f.Metric[0].Gauge != nil:
			got = f.Metric[0].Gauge.GetValue()
		}
		if got != want {
			t.Fatalf("%s = %v want %v", name, got, want)
		}
	}
	check("pixelmorph_optimizer_batches_total", 2)
	check("pixelmorph_optimizer_swaps_total", 10)
	check("pixelmorph_optimizer_cost", 900)
	check("pixelmorph_optimizer_generation", 4)
	check("pixelmorph_optimizer_runs_started_total", 1)
	check("pixelmorph_optimizer_runs_ended_total", 1)
	check("pixelmorph_preview_stale_messages_dropped_total", 1)
	check("pixelmorph_preview_subscribers", 2)

	if h := fams["pixelmorph_optimizer_batch_duration_seconds"]; h.Metric[0].Histogram.GetSampleCount() != 2 {
		t.Fatalf("histogram samples = %d", h.Metric[0].Histogram.GetSampleCount())
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New(nil)
	_ = m.WriteBatch(drawing.BatchLogEntry{Swaps: 1})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "pixelmorph_optimizer_swaps_total 1") {
		t.Fatalf("exposition missing swaps counter:\n%s", body)
	}
}
