package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MrEthical07/cmsync"
)

type fakeSource struct {
	snapshot cmsync.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() cmsync.MetricsSnapshot { return f.snapshot }
func (f fakeSource) EventsDropped() uint64                   { return f.dropped }

type navigatingSource struct {
	fakeSource
	superseded uint64
}

func (n navigatingSource) NavigationsSuperseded() uint64 { return n.superseded }

func disabledSource() fakeSource {
	return fakeSource{
		snapshot: cmsync.MetricsSnapshot{
			Counters:   map[cmsync.MetricID]uint64{},
			Histograms: map[cmsync.MetricID][]uint64{},
		},
	}
}

func sampleSource() fakeSource {
	return fakeSource{
		snapshot: cmsync.MetricsSnapshot{
			Counters: map[cmsync.MetricID]uint64{
				cmsync.MetricCacheHit:       6,
				cmsync.MetricCacheMiss:      2,
				cmsync.MetricRequestSuccess: 3,
			},
			Histograms: map[cmsync.MetricID][]uint64{
				cmsync.MetricRequestLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			LatencySums: map[cmsync.MetricID]time.Duration{
				cmsync.MetricRequestLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 2,
	}
}

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(disabledSource())

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(sampleSource())

	out := exp.Render()
	if !strings.Contains(out, "cmsync_cache_hit_total 6") {
		t.Fatalf("expected cache_hit counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "cmsync_request_latency_seconds_bucket{le=\"0.025\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "cmsync_request_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "cmsync_request_latency_seconds_sum 1.5\n") {
		t.Fatalf("expected latency sum in output, got:\n%s", out)
	}
	if !strings.Contains(out, "cmsync_cache_hit_ratio 0.75\n") {
		t.Fatalf("expected cache hit ratio in output, got:\n%s", out)
	}
	if strings.Contains(out, "cmsync_navigations_superseded_total") {
		t.Fatalf("source without navigations must not render the superseded counter:\n%s", out)
	}
	if strings.Contains(out, "cmsync_mutation_latency_seconds") {
		t.Fatalf("histogram absent from the snapshot must not be rendered:\n%s", out)
	}
	if !strings.Contains(out, "cmsync_events_dropped_total 2") {
		t.Fatalf("expected events dropped counter in output, got:\n%s", out)
	}
	if out != exp.Render() {
		t.Fatal("render is not deterministic")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(sampleSource())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCollectorMatchesSnapshot(t *testing.T) {
	c := NewCollector(sampleSource())

	expected := `
# HELP cmsync_cache_hit_total Reads served from fresh cached data.
# TYPE cmsync_cache_hit_total counter
cmsync_cache_hit_total 6
# HELP cmsync_events_dropped_total Events dropped because the dispatcher buffer was full.
# TYPE cmsync_events_dropped_total counter
cmsync_events_dropped_total 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "cmsync_cache_hit_total", "cmsync_events_dropped_total"); err != nil {
		t.Fatal(err)
	}
}

func TestCollectorRegistersAndSkipsDisabledCounters(t *testing.T) {
	reg := promclient.NewPedanticRegistry()
	if err := reg.Register(NewCollector(disabledSource())); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != eventsDroppedName {
		t.Fatalf("expected only the dropped counter, got %d families", len(families))
	}
}

func TestRenderIncludesSupersededNavigations(t *testing.T) {
	exp := NewPrometheusExporterFromSource(navigatingSource{fakeSource: sampleSource(), superseded: 4})

	out := exp.Render()
	if !strings.Contains(out, "cmsync_navigations_superseded_total 4\n") {
		t.Fatalf("expected superseded counter in output, got:\n%s", out)
	}
}

func TestCollectorReportsNavigationsAndRatio(t *testing.T) {
	c := NewCollector(navigatingSource{fakeSource: sampleSource(), superseded: 4})

	expected := `
# HELP cmsync_cache_hit_ratio Share of cache reads answered without starting a fetch.
# TYPE cmsync_cache_hit_ratio gauge
cmsync_cache_hit_ratio 0.75
# HELP cmsync_navigations_superseded_total Navigations replaced by a newer one before delivery.
# TYPE cmsync_navigations_superseded_total counter
cmsync_navigations_superseded_total 4
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "cmsync_cache_hit_ratio", "cmsync_navigations_superseded_total"); err != nil {
		t.Fatal(err)
	}
}

func TestCollectorHistogramSum(t *testing.T) {
	c := NewCollector(sampleSource())

	expected := `
# HELP cmsync_request_latency_seconds Backend request latency.
# TYPE cmsync_request_latency_seconds histogram
cmsync_request_latency_seconds_bucket{le="0.025"} 1
cmsync_request_latency_seconds_bucket{le="0.05"} 3
cmsync_request_latency_seconds_bucket{le="0.1"} 6
cmsync_request_latency_seconds_bucket{le="0.25"} 10
cmsync_request_latency_seconds_bucket{le="0.5"} 15
cmsync_request_latency_seconds_bucket{le="1"} 21
cmsync_request_latency_seconds_bucket{le="2.5"} 28
cmsync_request_latency_seconds_bucket{le="+Inf"} 36
cmsync_request_latency_seconds_sum 1.5
cmsync_request_latency_seconds_count 36
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "cmsync_request_latency_seconds"); err != nil {
		t.Fatal(err)
	}
}

func TestCollectorHistogramBuckets(t *testing.T) {
	c := NewCollector(sampleSource())
	if n := testutil.CollectAndCount(c, "cmsync_request_latency_seconds"); n != 1 {
		t.Fatalf("expected one histogram, got %d", n)
	}
	if n := testutil.CollectAndCount(c, "cmsync_mutation_latency_seconds"); n != 0 {
		t.Fatalf("expected no mutation histogram, got %d", n)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(sampleSource())

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
