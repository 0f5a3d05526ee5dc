package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/kvcrank/internal/metrics"
	"github.com/torosent/kvcrank/internal/runner"
	"github.com/torosent/kvcrank/internal/threshold"
)

func sampleResult() runner.Result {
	return runner.Result{
		Run:         2,
		RunID:       "01HZX0000000000000000000AB",
		Strategy:    runner.StrategyDispatchOnly,
		Volume:      1000,
		Dispatched:  1000,
		Concurrency: 100,
		Started:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Duration:    1500 * time.Millisecond,
	}
}

func TestSummaryFormat(t *testing.T) {
	got := Summary(sampleResult())
	want := "Made 1000 requests in 1.5 seconds using 100 threads."
	if got != want {
		t.Fatalf("Summary() = %q, want %q", got, want)
	}
}

func TestSummaryZeroVolume(t *testing.T) {
	res := runner.Result{Concurrency: 4}
	got := Summary(res)
	want := "Made 0 requests in 0 seconds using 4 threads."
	if got != want {
		t.Fatalf("Summary() = %q, want %q", got, want)
	}
}

func TestSummaryReportsDispatchedCount(t *testing.T) {
	res := sampleResult()
	res.Dispatched = 37
	if got := Summary(res); !strings.HasPrefix(got, "Made 37 requests") {
		t.Fatalf("Summary() = %q, expected dispatched count", got)
	}
}

func TestPrintSummaryAppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintSummary(&buf, sampleResult()); err != nil {
		t.Fatalf("PrintSummary() error = %v", err)
	}
	if !strings.HasSuffix(buf.String(), "threads.\n") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"html", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintReportBasic(t *testing.T) {
	stats := metrics.Stats{
		Total:          100,
		Successes:      95,
		Failures:       5,
		RequestsPerSec: 50.0,
		Duration:       2 * time.Second,
	}

	var buf bytes.Buffer
	PrintReport(&buf, stats)

	out := buf.String()
	for _, want := range []string{"Total Requests:    100", "Successful:        95", "Failed:            5", "Requests/sec:      50.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Status Codes") || strings.Contains(out, "Operation Breakdown") {
		t.Errorf("empty sections should be omitted:\n%s", out)
	}
}

func TestPrintReportSections(t *testing.T) {
	stats := metrics.Stats{
		Total:       12,
		Successes:   10,
		Failures:    2,
		Errors:      map[string]int{"HTTP error": 2},
		StatusCodes: map[string]int{"404": 2},
		Operations: map[string]metrics.OperationStats{
			"read":   {Total: 2, Successes: 0, Failures: 2},
			"create": {Total: 10, Successes: 10},
		},
	}

	var buf bytes.Buffer
	PrintReport(&buf, stats)
	out := buf.String()

	if !strings.Contains(out, "404: 2") {
		t.Errorf("missing status bucket:\n%s", out)
	}
	if !strings.Contains(out, "HTTP error: 2") {
		t.Errorf("missing error bucket:\n%s", out)
	}
	create := strings.Index(out, "- create:")
	read := strings.Index(out, "- read:")
	if create < 0 || read < 0 || create > read {
		t.Errorf("operations should be ordered by volume:\n%s", out)
	}
}

func TestEncodeJSON(t *testing.T) {
	stats := metrics.Stats{Total: 3, Successes: 3}
	reports := []RunReport{NewRunReport(sampleResult(), &stats)}

	var buf bytes.Buffer
	if err := Encode(&buf, FormatJSON, reports); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 report, got %d", len(decoded))
	}
	got := decoded[0]
	if got["volume"].(float64) != 1000 {
		t.Errorf("volume = %v", got["volume"])
	}
	if got["duration_seconds"].(float64) != 1.5 {
		t.Errorf("duration_seconds = %v", got["duration_seconds"])
	}
	if got["strategy"] != "dispatch-only" {
		t.Errorf("strategy = %v", got["strategy"])
	}
	if _, ok := got["stats"].(map[string]any); !ok {
		t.Errorf("expected stats object, got %v", got["stats"])
	}
}

func TestEncodeJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, FormatJSON, nil); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("expected empty array, got %q", buf.String())
	}
}

func TestEncodeYAML(t *testing.T) {
	reports := []RunReport{NewRunReport(sampleResult(), nil)}

	var buf bytes.Buffer
	if err := Encode(&buf, FormatYAML, reports); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded []map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, buf.String())
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 report, got %d", len(decoded))
	}
	if decoded[0]["run_id"] != "01HZX0000000000000000000AB" {
		t.Errorf("run_id = %v", decoded[0]["run_id"])
	}
	if _, ok := decoded[0]["stats"]; ok {
		t.Errorf("stats should be omitted when nil")
	}
	if _, ok := decoded[0]["thresholds"]; ok {
		t.Errorf("thresholds should be omitted when nil")
	}
}

func sampleThresholdResults(t *testing.T) []threshold.Result {
	t.Helper()
	ths, err := threshold.ParseMultiple([]string{"latency:p99 < 50", "failed{delete}:count == 0"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	stats := metrics.Stats{
		Total:        10,
		Failures:     2,
		P99LatencyMs: 20,
		Operations: map[string]metrics.OperationStats{
			"delete": {Total: 5, Failures: 2},
		},
	}
	return threshold.NewEvaluator(ths).Evaluate(stats)
}

func TestNewThresholdSummary(t *testing.T) {
	if NewThresholdSummary(nil) != nil {
		t.Fatal("expected nil summary without results")
	}
	summary := NewThresholdSummary(sampleThresholdResults(t))
	if summary.Total != 2 || summary.Passed != 1 || summary.Failed != 1 {
		t.Fatalf("summary counts = %+v", summary)
	}
	second := summary.Results[1]
	if second.Operation != "delete" || second.Actual != 2 || second.Pass {
		t.Errorf("second result = %+v", second)
	}
}

func TestEncodeJSONWithThresholds(t *testing.T) {
	report := NewRunReport(sampleResult(), nil)
	report.Thresholds = NewThresholdSummary(sampleThresholdResults(t))

	var buf bytes.Buffer
	if err := Encode(&buf, FormatJSON, []RunReport{report}); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var decoded []struct {
		Thresholds ThresholdSummary `json:"thresholds"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	got := decoded[0].Thresholds
	if got.Failed != 1 || got.Results[0].Threshold != "latency:p99 < 50" || !got.Results[0].Pass {
		t.Errorf("thresholds = %+v", got)
	}
}

func TestPrintThresholds(t *testing.T) {
	var buf bytes.Buffer
	PrintThresholds(&buf, sampleThresholdResults(t))
	out := buf.String()
	for _, want := range []string{
		"Thresholds (1/2 passed):",
		"✓ latency:p99 < 50: 20.00 < 50.00",
		"✗ failed{delete}:count == 0: 2.00 == 0.00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	PrintThresholds(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("expected no output without results, got %q", buf.String())
	}
}

func TestEncodeRejectsText(t *testing.T) {
	if err := Encode(&bytes.Buffer{}, FormatText, nil); err == nil {
		t.Fatal("expected error for text format")
	}
}
