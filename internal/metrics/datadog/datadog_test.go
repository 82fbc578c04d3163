package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"embedproxy/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

func newTestBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		Tags:      []string{"region:test"},
		submitter: fs,
		now:       func() time.Time { return time.Unix(1000, 0) },
		newTicker: func(time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

func TestNewBackendDefaults(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	if !contains(b.baseTags, "service:embedproxy") || !contains(b.baseTags, "region:test") {
		t.Fatalf("baseTags = %v", b.baseTags)
	}
	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery = %s", b.flushEvery)
	}
}

func TestFlushSubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.RequestsTotal, 1, metrics.Labels{"provider": "vidsrc-to", "status": "200"})
	b.IncCounter(metrics.RequestsTotal, 2, metrics.Labels{"provider": "vidsrc-to", "status": "200"})
	b.IncCounter(metrics.RejectedTotal, 1, metrics.Labels{"reason": "missing_id"})
	b.ObserveHistogram(metrics.UpstreamDuration, 0.25, metrics.Labels{"provider": "vidsrc-me", "mode": "http", "status": "ok"})
	b.IncCounter("something_else", 5, nil)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submits = %d, want 1", fs.count())
	}
	if len(b.counters) != 0 || len(b.samples) != 0 {
		t.Fatal("buffers not reset after Flush")
	}

	byName := map[string]datadogV2.MetricSeries{}
	for _, s := range fs.last().Series {
		byName[s.Metric] = s
	}
	req, ok := byName["embedproxy.requests.total"]
	if !ok {
		t.Fatalf("missing requests series; got %v", byName)
	}
	if *req.Points[0].Value != 3 || *req.Type != datadogV2.METRICINTAKETYPE_COUNT {
		t.Fatalf("requests series = %+v", req)
	}
	if !contains(req.Tags, "provider:vidsrc-to") || !contains(req.Tags, "status:200") {
		t.Fatalf("requests tags = %v", req.Tags)
	}
	for _, want := range []string{
		"embedproxy.rejected.total",
		"embedproxy.upstream.duration_seconds.p50",
		"embedproxy.upstream.duration_seconds.samples",
	} {
		if _, ok := byName[want]; !ok {
			t.Fatalf("missing %q", want)
		}
	}
	if len(fs.last().Series) != 2+6 {
		t.Fatalf("series = %d, want 8 (unknown metric must be dropped)", len(fs.last().Series))
	}
}

func TestFlushEmptyDoesNotSubmit(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fs.count() != 0 {
		t.Fatalf("submits = %d, want 0", fs.count())
	}
}

func TestFlushErrorStillResets(t *testing.T) {
	fs := &fakeSubmitter{err: errors.New("boom")}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.RequestsTotal, 1, metrics.Labels{"provider": "vidsrc", "status": "500"})
	if err := b.Flush(); err == nil {
		t.Fatal("expected submit error")
	}
	if len(b.counters) != 0 {
		t.Fatal("buffers not reset after failed Flush")
	}
}

func TestMissingLabelsBecomeUnknown(t *testing.T) {
	k, ok := keyFor(metrics.SanitizeRemovedTotal, metrics.Labels{"branch": "full"})
	if !ok {
		t.Fatal("known metric rejected")
	}
	if k.tags != "branch:full,kind:unknown" {
		t.Fatalf("tags = %q", k.tags)
	}
	if _, ok := keyFor("nope", nil); ok {
		t.Fatal("unknown metric accepted")
	}
}

func TestIgnoresNonPositive(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.RequestsTotal, 0, nil)
	b.IncCounter(metrics.RequestsTotal, -1, nil)
	b.ObserveHistogram(metrics.UpstreamBytes, -5, nil)
	if len(b.counters) != 0 || len(b.samples) != 0 {
		t.Fatal("non-positive samples were buffered")
	}
}

func TestPercentileNearestRank(t *testing.T) {
	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{name: "empty", s: nil, p: 0.50, want: 0},
		{name: "single", s: []float64{7}, p: 0.95, want: 7},
		{name: "p_le_0", s: []float64{1, 2, 3}, p: -1, want: 1},
		{name: "p_ge_1", s: []float64{1, 2, 3}, p: 2, want: 3},
		{name: "median", s: []float64{1, 2, 3, 4, 5}, p: 0.50, want: 3},
		{name: "p90_small_n", s: []float64{1, 2, 3, 4, 5}, p: 0.90, want: 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := percentileNearestRank(tc.s, tc.p); got != tc.want {
				t.Fatalf("percentileNearestRank(%v,%v)=%v, want %v", tc.s, tc.p, got, tc.want)
			}
		})
	}
}

func TestAddPercentilesDoesNotMutate(t *testing.T) {
	orig := []float64{5, 1, 3, 2, 4}
	in := append([]float64(nil), orig...)
	var series []datadogV2.MetricSeries
	addPercentiles(&series, "embedproxy.upstream.bytes", in, []string{"env:test"}, 1)
	if len(series) != 6 {
		t.Fatalf("series = %d, want 6", len(series))
	}
	if !reflect.DeepEqual(in, orig) {
		t.Fatalf("samples mutated: %v", in)
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod, ,region:eu ")
	if !reflect.DeepEqual(got, []string{"env:prod", "region:eu"}) {
		t.Fatalf("ParseTagsCSV = %v", got)
	}
	if ParseTagsCSV("") != nil {
		t.Fatal("empty input should yield nil")
	}
}
