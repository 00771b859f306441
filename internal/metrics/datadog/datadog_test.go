package datadog

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"dwload/internal/metrics"
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

func (f *fakeSubmitter) seriesNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.payloads {
		for _, s := range p.Series {
			out = append(out, s.Metric)
		}
	}
	sort.Strings(out)
	return out
}

// newTestBackend returns a backend whose ticker never fires, so flushes are
// driven explicitly by the test.
func newTestBackend(t *testing.T) (*Backend, *fakeSubmitter) {
	t.Helper()

	sub := &fakeSubmitter{}
	b, err := New(context.Background(), Options{
		JobName: "dwload-test",
		now:     func() time.Time { return time.Unix(1700000000, 0) },
		newTicker: func(d time.Duration) *time.Ticker {
			return time.NewTicker(24 * time.Hour)
		},
		submitter: sub,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, sub
}

func TestFlush_EmptyBufferSubmitsNothing(t *testing.T) {
	b, sub := newTestBackend(t)
	defer b.Close()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(sub.payloads) != 0 {
		t.Fatalf("expected no submissions, got %d", len(sub.payloads))
	}
}

func TestFlush_SubmitsBufferedSeries(t *testing.T) {
	b, sub := newTestBackend(t)
	defer b.Close()

	b.IncCounter("dwload_stage_total", 1, metrics.Labels{"stage": "reset", "status": "ok"})
	b.IncCounter("dwload_rows_total", 42, metrics.Labels{"table": "dim_customer"})
	b.IncCounter("dwload_unmatched_keys_total", 3, metrics.Labels{"dimension": "payment"})
	b.ObserveHistogram("dwload_stage_duration_seconds", 0.25, metrics.Labels{"stage": "reset", "status": "ok"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	names := sub.seriesNames()
	for _, want := range []string{
		"dwload.stage.total",
		"dwload.rows.total",
		"dwload.unmatched_keys.total",
		"dwload.stage.duration_seconds.p50",
		"dwload.stage.duration_seconds.max",
	} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("series %q not submitted; got %v", want, names)
		}
	}

	// Second flush has nothing left.
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(sub.payloads) != 1 {
		t.Fatalf("buffers must reset after flush; payloads = %d", len(sub.payloads))
	}
}

func TestBuildSeries_TagsCarryJobAndLabels(t *testing.T) {
	b, _ := newTestBackend(t)
	defer b.Close()

	b.IncCounter("dwload_rows_total", 5, metrics.Labels{"table": "fact_orders"})
	snap := b.snapshotAndReset()

	series := b.buildSeries(snap, 1700000000)
	if len(series) != 1 {
		t.Fatalf("series = %d, want 1", len(series))
	}

	tags := strings.Join(series[0].Tags, ",")
	if !strings.Contains(tags, "job:dwload-test") {
		t.Fatalf("missing job tag: %v", series[0].Tags)
	}
	if !strings.Contains(tags, "table:fact_orders") {
		t.Fatalf("missing table tag: %v", series[0].Tags)
	}
}

func TestIncCounter_IgnoredPaths(t *testing.T) {
	b, sub := newTestBackend(t)
	defer b.Close()

	b.IncCounter("dwload_rows_total", 0, metrics.Labels{"table": "t"})  // zero delta
	b.IncCounter("dwload_rows_total", -1, metrics.Labels{"table": "t"}) // negative delta
	b.IncCounter("dwload_rows_total", 1, metrics.Labels{})              // no table label
	b.IncCounter("something_else_total", 1, nil)                        // unknown metric
	b.ObserveHistogram("dwload_stage_duration_seconds", -0.1, nil)      // negative sample

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(sub.payloads) != 0 {
		t.Fatalf("expected nothing buffered, got %d payloads", len(sub.payloads))
	}
}

func TestClose_PerformsFinalFlush(t *testing.T) {
	b, sub := newTestBackend(t)

	b.IncCounter("dwload_rows_total", 7, metrics.Labels{"table": "dim_date"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(sub.payloads) != 1 {
		t.Fatalf("expected final flush on Close, payloads = %d", len(sub.payloads))
	}
}

func TestConcurrentWritesDoNotRace(t *testing.T) {
	b, _ := newTestBackend(t)
	defer b.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.IncCounter("dwload_rows_total", 1, metrics.Labels{"table": "fact_orders"})
				b.ObserveHistogram("dwload_stage_duration_seconds", 0.01, metrics.Labels{"stage": "load_fact", "status": "ok"})
			}
		}()
	}
	wg.Wait()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod , service:dwload ,,")
	if len(got) != 2 || got[0] != "env:prod" || got[1] != "service:dwload" {
		t.Fatalf("got %v", got)
	}
	if ParseTagsCSV("") != nil {
		t.Fatal("expected nil for empty input")
	}
}
