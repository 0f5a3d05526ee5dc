package main

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/torosent/kvcrank/internal/metrics"
	"github.com/torosent/kvcrank/internal/runner"
)

// runStats keeps one collector per run and routes outcomes by Outcome.Run.
// Dispatch-only stragglers of a run keep landing in that run's collector even
// after the next run has started.
type runStats struct {
	mu   sync.Mutex
	runs map[int]*runCollector
}

type runCollector struct {
	collector *metrics.Collector
	last      time.Time
}

func newRunStats() *runStats {
	return &runStats{runs: make(map[int]*runCollector)}
}

func (s *runStats) Record(o runner.Outcome) {
	meta := &metrics.RequestMetadata{Operation: o.Name, StatusCode: statusLabel(o.Err)}

	s.mu.Lock()
	rc, ok := s.runs[o.Run]
	if !ok {
		rc = &runCollector{collector: metrics.NewCollector()}
		s.runs[o.Run] = rc
	}
	rc.last = time.Now()
	s.mu.Unlock()

	rc.collector.RecordRequest(o.Latency, o.Err, meta)
}

// Stats summarizes the outcomes of res. The measured window runs from the
// start of the run to its last completed operation.
func (s *runStats) Stats(res runner.Result) metrics.Stats {
	s.mu.Lock()
	rc, ok := s.runs[res.Run]
	var last time.Time
	if ok {
		last = rc.last
	}
	s.mu.Unlock()

	if !ok {
		return metrics.NewCollector().Stats(res.Duration)
	}
	elapsed := last.Sub(res.Started)
	if elapsed < res.Duration {
		elapsed = res.Duration
	}
	return rc.collector.Stats(elapsed)
}

// noResponse labels failures where the service never answered.
const noResponse = "no_response"

// statusLabel buckets a failed operation by the HTTP status the service
// returned. Successes are not labelled.
func statusLabel(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *runner.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode > 0 {
		return strconv.Itoa(httpErr.StatusCode)
	}
	return noResponse
}
