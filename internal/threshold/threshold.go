package threshold

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/torosent/kvcrank/internal/metrics"
)

const (
	MetricLatency = "latency"
	MetricFailed  = "failed"
	MetricOps     = "ops"
)

var (
	thresholdPattern = regexp.MustCompile(`^([a-z_]+)(?:\{([a-z0-9_-]+)\})?:([a-z0-9]+)\s*([<>=]+)\s*([0-9.]+)$`)

	validMetrics   = []string{MetricLatency, MetricFailed, MetricOps}
	validOperators = []string{"<", "<=", ">", ">=", "=="}

	aggregatesByMetric = map[string][]string{
		MetricLatency: {"p50", "p90", "p95", "p99", "avg", "min", "max"},
		MetricFailed:  {"rate", "count"},
		MetricOps:     {"rate", "count"},
	}
	// Per-operation stats only carry totals and two percentiles.
	scopedAggregates = map[string][]string{
		MetricLatency: {"p50", "p99"},
		MetricFailed:  {"rate", "count"},
		MetricOps:     {"count"},
	}
)

// Threshold is a pass/fail assertion over one run's statistics.
type Threshold struct {
	Metric    string
	Operation string // empty means the whole run
	Aggregate string
	Operator  string
	Value     float64
	Raw       string
}

// Result is the outcome of one threshold against one run.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Len reports how many thresholds the evaluator holds.
func (e *Evaluator) Len() int {
	if e == nil {
		return 0
	}
	return len(e.thresholds)
}

// Evaluate checks all thresholds against stats. It returns nil when no
// thresholds are configured.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if e.Len() == 0 {
		return nil
	}
	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, stats))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Message:   fmt.Sprintf("✗ %s: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	mark := "✓"
	if !pass {
		mark = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", mark, t.Raw, actual, t.Operator, t.Value),
	}
}

// Parse parses a threshold expression. Supported forms:
//   - "latency:p95 < 50"           latency aggregate in ms
//   - "latency{read}:p99 < 20"     scoped to one operation
//   - "failed:rate < 0.01"         failure ratio
//   - "failed{delete}:count == 0"  failure count for one operation
//   - "ops:rate > 500"             throughput in operations per second
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	m := thresholdPattern.FindStringSubmatch(s)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric[{operation}]:aggregate operator value, e.g. 'latency:p95 < 50')", s)
	}
	metric, op, aggregate, operator, raw := m[1], m[2], m[3], m[4], m[5]

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", raw, err)
	}
	if !slices.Contains(validMetrics, metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(validMetrics, ", "))
	}
	allowed := aggregatesByMetric[metric]
	if op != "" {
		allowed = scopedAggregates[metric]
	}
	if !slices.Contains(allowed, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, describe(metric, op), strings.Join(allowed, ", "))
	}
	if !slices.Contains(validOperators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(validOperators, ", "))
	}

	return Threshold{
		Metric:    metric,
		Operation: op,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses every expression and joins all parse errors.
func ParseMultiple(exprs []string) ([]Threshold, error) {
	if len(exprs) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(exprs))
	var errs []string
	for i, s := range exprs {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}
	return result, nil
}

func describe(metric, op string) string {
	if op == "" {
		return metric
	}
	return metric + "{" + op + "}"
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	if t.Operation != "" {
		op, ok := stats.Operations[t.Operation]
		if !ok {
			return 0, fmt.Errorf("no requests recorded for operation %q", t.Operation)
		}
		return extractOperationMetric(t, op)
	}

	switch t.Metric {
	case MetricLatency:
		return extractLatencyMetric(t.Aggregate, stats)
	case MetricFailed:
		return ratioOrCount(t.Aggregate, stats.Failures, stats.Total), nil
	case MetricOps:
		if t.Aggregate == "rate" {
			return stats.RequestsPerSec, nil
		}
		return float64(stats.Total), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractOperationMetric(t Threshold, op metrics.OperationStats) (float64, error) {
	switch t.Metric {
	case MetricLatency:
		if t.Aggregate == "p50" {
			return op.P50LatencyMs, nil
		}
		return op.P99LatencyMs, nil
	case MetricFailed:
		return ratioOrCount(t.Aggregate, op.Failures, op.Total), nil
	case MetricOps:
		return float64(op.Total), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, stats metrics.Stats) (float64, error) {
	switch aggregate {
	case "p50":
		return stats.P50LatencyMs, nil
	case "p90":
		return stats.P90LatencyMs, nil
	case "p95":
		return stats.P95LatencyMs, nil
	case "p99":
		return stats.P99LatencyMs, nil
	case "avg":
		return stats.MeanLatencyMs, nil
	case "min":
		return stats.MinLatencyMs, nil
	case "max":
		return stats.MaxLatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for latency", aggregate)
	}
}

func ratioOrCount(aggregate string, n, total int64) float64 {
	if aggregate == "count" {
		return float64(n)
	}
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
