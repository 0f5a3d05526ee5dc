package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/kvcrank/internal/metrics"
	"github.com/torosent/kvcrank/internal/runner"
	"github.com/torosent/kvcrank/internal/threshold"
)

// Format selects how run reports are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a user supplied name to a Format. Empty means text.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use text, json or yaml)", name)
	}
}

// Summary formats the one-line run summary. Seconds are printed as a plain
// decimal number.
func Summary(res runner.Result) string {
	seconds := strconv.FormatFloat(res.Duration.Seconds(), 'f', -1, 64)
	return fmt.Sprintf("Made %d requests in %s seconds using %d threads.", res.Dispatched, seconds, res.Concurrency)
}

// PrintSummary writes the summary line for res.
func PrintSummary(w io.Writer, res runner.Result) error {
	_, err := fmt.Fprintln(w, Summary(res))
	return err
}

// RunReport is the structured form of one run.
type RunReport struct {
	RunID           string            `json:"run_id" yaml:"run_id"`
	Run             int               `json:"run" yaml:"run"`
	Strategy        string            `json:"strategy" yaml:"strategy"`
	Volume          int               `json:"volume" yaml:"volume"`
	Dispatched      int               `json:"dispatched" yaml:"dispatched"`
	Concurrency     int               `json:"concurrency" yaml:"concurrency"`
	Started         time.Time         `json:"started" yaml:"started"`
	DurationSeconds float64           `json:"duration_seconds" yaml:"duration_seconds"`
	DispatchRate    float64           `json:"dispatch_rate" yaml:"dispatch_rate"`
	Summary         string            `json:"summary" yaml:"summary"`
	Stats           *metrics.Stats    `json:"stats,omitempty" yaml:"stats,omitempty"`
	Thresholds      *ThresholdSummary `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// ThresholdSummary counts passed and failed thresholds for one run.
type ThresholdSummary struct {
	Total   int                   `json:"total" yaml:"total"`
	Passed  int                   `json:"passed" yaml:"passed"`
	Failed  int                   `json:"failed" yaml:"failed"`
	Results []ThresholdResultJSON `json:"results" yaml:"results"`
}

type ThresholdResultJSON struct {
	Threshold string  `json:"threshold" yaml:"threshold"`
	Metric    string  `json:"metric" yaml:"metric"`
	Operation string  `json:"operation,omitempty" yaml:"operation,omitempty"`
	Aggregate string  `json:"aggregate" yaml:"aggregate"`
	Operator  string  `json:"operator" yaml:"operator"`
	Expected  float64 `json:"expected" yaml:"expected"`
	Actual    float64 `json:"actual" yaml:"actual"`
	Pass      bool    `json:"pass" yaml:"pass"`
}

// NewThresholdSummary returns nil when there are no results.
func NewThresholdSummary(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	summary := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		summary.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Operation: tr.Threshold.Operation,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// PrintThresholds writes one line per threshold result.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	passed := 0
	for _, r := range results {
		if r.Pass {
			passed++
		}
	}
	fmt.Fprintf(w, "\nThresholds (%d/%d passed):\n", passed, len(results))
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
}

// NewRunReport combines a run result with optional outcome statistics.
func NewRunReport(res runner.Result, stats *metrics.Stats) RunReport {
	return RunReport{
		RunID:           res.RunID,
		Run:             res.Run,
		Strategy:        string(res.Strategy),
		Volume:          res.Volume,
		Dispatched:      res.Dispatched,
		Concurrency:     res.Concurrency,
		Started:         res.Started,
		DurationSeconds: res.Duration.Seconds(),
		DispatchRate:    res.Throughput(),
		Summary:         Summary(res),
		Stats:           stats,
	}
}

// Encode renders reports as a JSON array or a YAML sequence. Text reports are
// written line by line by the caller and are rejected here.
func Encode(w io.Writer, format Format, reports []RunReport) error {
	if reports == nil {
		reports = []RunReport{}
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("format %q is not a structured format", format)
	}
}

// PrintReport outputs a human-readable statistics block.
func PrintReport(w io.Writer, stats metrics.Stats) {
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if rows := metrics.FlattenStatusCodes(stats.StatusCodes); len(rows) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		for _, row := range rows {
			fmt.Fprintf(w, "  %s: %d\n", row.Code, row.Count)
		}
	}

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		names := make([]string, 0, len(stats.Errors))
		for name := range stats.Errors {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %d\n", name, stats.Errors[name])
		}
	}

	if len(stats.Operations) > 0 {
		fmt.Fprintln(w, "\nOperation Breakdown:")
		names := make([]string, 0, len(stats.Operations))
		for name := range stats.Operations {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			ti, tj := stats.Operations[names[i]].Total, stats.Operations[names[j]].Total
			if ti == tj {
				return names[i] < names[j]
			}
			return ti > tj
		})
		for _, name := range names {
			op := stats.Operations[name]
			fmt.Fprintf(
				w,
				"  - %s: total=%d, successes=%d, failures=%d, p50=%s, p99=%s\n",
				name,
				op.Total,
				op.Successes,
				op.Failures,
				op.P50Latency,
				op.P99Latency,
			)
		}
	}
}
