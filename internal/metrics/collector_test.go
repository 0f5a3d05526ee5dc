package metrics_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/torosent/kvcrank/internal/metrics"
	"github.com/torosent/kvcrank/internal/runner"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func within(got, want, tolerance time.Duration) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

func TestCollectorSummary(t *testing.T) {
	c := metrics.NewCollector()
	for _, n := range []int{40, 10, 50, 30, 20} {
		c.RecordRequest(ms(n), nil, nil)
	}
	s := c.Stats(ms(500))

	checks := []struct {
		name      string
		got, want time.Duration
	}{
		{"min", s.MinLatency, ms(10)},
		{"max", s.MaxLatency, ms(50)},
		{"mean", s.MeanLatency, ms(30)},
	}
	for _, chk := range checks {
		if chk.got != chk.want {
			t.Errorf("%s = %s, want %s", chk.name, chk.got, chk.want)
		}
	}
	if s.Total != 5 || s.Successes != 5 || s.Failures != 0 {
		t.Errorf("counts total=%d ok=%d failed=%d", s.Total, s.Successes, s.Failures)
	}
	if s.RequestsPerSec != 10 {
		t.Errorf("RequestsPerSec = %g, want 10", s.RequestsPerSec)
	}
}

func TestCollectorPercentilesOverUniformSamples(t *testing.T) {
	c := metrics.NewCollector()
	for n := 100; n >= 1; n-- {
		c.RecordRequest(ms(n), nil, nil)
	}
	s := c.Stats(time.Second)

	for _, tt := range []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"p50", s.P50Latency, ms(50)},
		{"p90", s.P90Latency, ms(90)},
		{"p95", s.P95Latency, ms(95)},
		{"p99", s.P99Latency, ms(99)},
	} {
		if !within(tt.got, tt.want, ms(1)) {
			t.Errorf("%s = %s, want about %s", tt.name, tt.got, tt.want)
		}
	}
	if s.P95LatencyMs < 94 || s.P95LatencyMs > 96 {
		t.Errorf("P95LatencyMs = %g", s.P95LatencyMs)
	}
}

func TestCollectorBreaksDownByOperation(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordRequest(ms(10), nil, &metrics.RequestMetadata{Operation: "create", StatusCode: "201"})
	c.RecordRequest(ms(12), nil, &metrics.RequestMetadata{Operation: "read", StatusCode: "200"})
	c.RecordRequest(ms(30), &runner.HTTPError{StatusCode: 404}, &metrics.RequestMetadata{Operation: "read", StatusCode: "404"})
	c.RecordRequest(ms(5), errors.New("broken pipe"), &metrics.RequestMetadata{Operation: "delete"})

	s := c.Stats(time.Second)

	want := map[string][3]int64{
		"create": {1, 1, 0},
		"read":   {2, 1, 1},
		"delete": {1, 0, 1},
	}
	if len(s.Operations) != len(want) {
		t.Fatalf("operations = %v", s.Operations)
	}
	for name, w := range want {
		op := s.Operations[name]
		if op.Total != w[0] || op.Successes != w[1] || op.Failures != w[2] {
			t.Errorf("%s = %+v, want total/ok/failed %v", name, op, w)
		}
		if op.P50LatencyMs <= 0 || op.P99LatencyMs < op.P50LatencyMs {
			t.Errorf("%s percentiles p50=%g p99=%g", name, op.P50LatencyMs, op.P99LatencyMs)
		}
	}

	if got := s.StatusCodes; got["201"] != 1 || got["200"] != 1 || got["404"] != 1 || len(got) != 3 {
		t.Errorf("StatusCodes = %v", got)
	}
	if got := s.Errors; got["HTTP 4xx response"] != 1 || got[metrics.ErrorOther] != 1 {
		t.Errorf("Errors = %v", got)
	}
}

func TestCollectorIsSafeForConcurrentUse(t *testing.T) {
	const goroutines, each = 8, 250
	c := metrics.NewCollector()

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(fail bool) {
			defer wg.Done()
			var err error
			if fail {
				err = errors.New("reset")
			}
			for i := 0; i < each; i++ {
				c.RecordRequest(ms(1+i%5), err, &metrics.RequestMetadata{Operation: "list"})
			}
		}(g%2 == 1)
	}
	wg.Wait()

	s := c.Stats(time.Second)
	if s.Total != goroutines*each {
		t.Fatalf("Total = %d, want %d", s.Total, goroutines*each)
	}
	if s.Failures != goroutines/2*each || s.Operations["list"].Failures != s.Failures {
		t.Fatalf("Failures = %d, list failures = %d", s.Failures, s.Operations["list"].Failures)
	}
}

func TestStatsJSONUsesMilliseconds(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordRequest(ms(15), nil, nil)
	c.RecordRequest(ms(25), nil, nil)

	data, err := json.Marshal(c.Stats(ms(100)))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"total", "successes", "failures", "requests_per_sec", "duration_ms",
		"min_latency_ms", "max_latency_ms", "mean_latency_ms", "p50_latency_ms", "p90_latency_ms", "p95_latency_ms", "p99_latency_ms"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("JSON missing %q", key)
		}
	}
	if doc["duration_ms"] != 100.0 {
		t.Errorf("duration_ms = %v, want 100", doc["duration_ms"])
	}
	if _, ok := doc["errors"]; ok {
		t.Error("errors present without failures")
	}
}

func TestEmptyCollector(t *testing.T) {
	s := metrics.NewCollector().Stats(0)
	if s.Total != 0 || s.P99Latency != 0 || s.RequestsPerSec != 0 {
		t.Fatalf("empty collector stats = %+v", s)
	}
	if s.Operations != nil || s.Errors != nil || s.StatusCodes != nil {
		t.Fatal("empty collector should leave breakdown maps nil")
	}
}
