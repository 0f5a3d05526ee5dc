package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// RequestMetadata carries optional attribution for a recorded request.
type RequestMetadata struct {
	Operation  string
	StatusCode string
}

// Collector records per-request metrics in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	successes    int64
	failures     int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	errorsByType map[string]int64
	statusCodes  map[string]int64
	operations   map[string]*operationCollector
}

type operationCollector struct {
	hist      *hdrhistogram.Histogram
	successes int64
	failures  int64
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total" yaml:"total"`
	Successes      int64         `json:"successes" yaml:"successes"`
	Failures       int64         `json:"failures" yaml:"failures"`
	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	MeanLatency    time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P95Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	Duration       time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64                   `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64                   `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64                   `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64                   `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64                   `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs  float64                   `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs  float64                   `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64                   `json:"duration_ms" yaml:"duration_ms"`
	Errors        map[string]int            `json:"errors,omitempty" yaml:"errors,omitempty"`
	StatusCodes   map[string]int            `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
	Operations    map[string]OperationStats `json:"operations,omitempty" yaml:"operations,omitempty"`
}

// OperationStats is the per-operation slice of Stats.
type OperationStats struct {
	Total        int64         `json:"total" yaml:"total"`
	Successes    int64         `json:"successes" yaml:"successes"`
	Failures     int64         `json:"failures" yaml:"failures"`
	P50Latency   time.Duration `json:"-" yaml:"-"`
	P99Latency   time.Duration `json:"-" yaml:"-"`
	P50LatencyMs float64       `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P99LatencyMs float64       `json:"p99_latency_ms" yaml:"p99_latency_ms"`
}

// Track latencies from 1µs up to 60s with 3 significant figures.
func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, 60_000_000, 3)
}

func NewCollector() *Collector {
	return &Collector{
		hist:         newHistogram(),
		errorsByType: make(map[string]int64),
		statusCodes:  make(map[string]int64),
		operations:   make(map[string]*operationCollector),
	}
}

// RecordRequest records a single request's latency and error state.
func (c *Collector) RecordRequest(latency time.Duration, err error, meta *RequestMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recordLatency(c.hist, latency)
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if err == nil {
		c.successes++
	} else {
		c.failures++
		c.errorsByType[Classify(err)]++
	}

	if meta == nil {
		return
	}
	if meta.StatusCode != "" {
		c.statusCodes[meta.StatusCode]++
	}
	if meta.Operation != "" {
		op, ok := c.operations[meta.Operation]
		if !ok {
			op = &operationCollector{hist: newHistogram()}
			c.operations[meta.Operation] = op
		}
		recordLatency(op.hist, latency)
		if err == nil {
			op.successes++
		} else {
			op.failures++
		}
	}
}

func recordLatency(h *hdrhistogram.Histogram, latency time.Duration) {
	if latency <= 0 {
		return
	}
	us := latency.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	if h.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
		P50Latency: quantile(c.hist, 50),
		P90Latency: quantile(c.hist, 90),
		P95Latency: quantile(c.hist, 95),
		P99Latency: quantile(c.hist, 99),
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}

	stats.MinLatencyMs = millis(stats.MinLatency)
	stats.MaxLatencyMs = millis(stats.MaxLatency)
	stats.MeanLatencyMs = millis(stats.MeanLatency)
	stats.P50LatencyMs = millis(stats.P50Latency)
	stats.P90LatencyMs = millis(stats.P90Latency)
	stats.P95LatencyMs = millis(stats.P95Latency)
	stats.P99LatencyMs = millis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = millis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[k] = int(v)
		}
	}

	if len(c.statusCodes) > 0 {
		stats.StatusCodes = make(map[string]int, len(c.statusCodes))
		for k, v := range c.statusCodes {
			stats.StatusCodes[k] = int(v)
		}
	}

	if len(c.operations) > 0 {
		stats.Operations = make(map[string]OperationStats, len(c.operations))
		for name, op := range c.operations {
			p50 := quantile(op.hist, 50)
			p99 := quantile(op.hist, 99)
			stats.Operations[name] = OperationStats{
				Total:        op.successes + op.failures,
				Successes:    op.successes,
				Failures:     op.failures,
				P50Latency:   p50,
				P99Latency:   p99,
				P50LatencyMs: millis(p50),
				P99LatencyMs: millis(p99),
			}
		}
	}

	return stats
}
