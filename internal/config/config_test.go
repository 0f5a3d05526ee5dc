package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/torosent/kvcrank/internal/config"
)

func TestParseFlagsDefaults(t *testing.T) {
	loader := config.NewLoader()

	cfg, err := loader.Load([]string{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "http://localhost:8080" {
		t.Errorf("TargetURL = %q, want http://localhost:8080", cfg.TargetURL)
	}
	if cfg.Key != "test_key" {
		t.Errorf("Key = %q, want test_key", cfg.Key)
	}
	if cfg.Total != 1000 {
		t.Errorf("Total = %d, want 1000", cfg.Total)
	}
	if cfg.Concurrency != 100 {
		t.Errorf("Concurrency = %d, want 100", cfg.Concurrency)
	}
	if cfg.Strategy != "dispatch-only" {
		t.Errorf("Strategy = %q, want dispatch-only", cfg.Strategy)
	}
	if cfg.Rate != 0 {
		t.Errorf("Rate = %d, want 0", cfg.Rate)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", cfg.Timeout)
	}
	if cfg.ListSkip != 5 || cfg.ListLimit != 100 {
		t.Errorf("list params = %d/%d, want 5/100", cfg.ListSkip, cfg.ListLimit)
	}
	if cfg.Sweep.Enabled() {
		t.Errorf("Sweep enabled by default")
	}
	if cfg.Format != "text" {
		t.Errorf("Format = %q, want text", cfg.Format)
	}
	if cfg.Stats || cfg.LogErrors {
		t.Errorf("Stats/LogErrors should default to false")
	}
	if len(cfg.Headers) != 0 {
		t.Errorf("Headers len = %d, want 0", len(cfg.Headers))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadHelpRequested(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--help"})
	if err != config.ErrHelpRequested {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadRejectsPositionalArguments(t *testing.T) {
	if _, err := config.NewLoader().Load([]string{"extra"}); err == nil {
		t.Fatal("expected error for positional argument")
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{
		"target": "https://kv.example.com",
		"key": "alpha",
		"collection": "items",
		"headers": {"X-Env": "staging"},
		"createBody": "{\"name\":\"alpha\"}",
		"updateBody": {"name": "beta"},
		"listSkip": 0,
		"listLimit": 10,
		"concurrency": 10,
		"strategy": "bounded",
		"rate": 100,
		"total": 500,
		"timeout": "45s",
		"gracefulShutdown": "5s",
		"stats": true,
		"format": "json"
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path, "--strategy", "sequential", "--header", "Authorization=Bearer token"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "https://kv.example.com" {
		t.Errorf("TargetURL = %q", cfg.TargetURL)
	}
	if cfg.Key != "alpha" || cfg.Collection != "items" {
		t.Errorf("Key/Collection = %q/%q", cfg.Key, cfg.Collection)
	}
	if cfg.Strategy != "sequential" {
		t.Errorf("Strategy = %q, want flag override sequential", cfg.Strategy)
	}
	if cfg.Headers["X-Env"] != "staging" {
		t.Errorf("Headers[X-Env] = %q, want staging", cfg.Headers["X-Env"])
	}
	if cfg.Headers["Authorization"] != "Bearer token" {
		t.Errorf("Headers[Authorization] = %q, want Bearer token", cfg.Headers["Authorization"])
	}
	if cfg.CreateBody != `{"name":"alpha"}` {
		t.Errorf("CreateBody = %q", cfg.CreateBody)
	}
	if cfg.UpdateBody != `{"name":"beta"}` {
		t.Errorf("UpdateBody = %q", cfg.UpdateBody)
	}
	if cfg.ListSkip != 0 || cfg.ListLimit != 10 {
		t.Errorf("list params = %d/%d, want 0/10", cfg.ListSkip, cfg.ListLimit)
	}
	if cfg.Concurrency != 10 || cfg.Rate != 100 || cfg.Total != 500 {
		t.Errorf("load = %d/%d/%d", cfg.Concurrency, cfg.Rate, cfg.Total)
	}
	if cfg.Timeout != 45*time.Second || cfg.GracefulShutdown != 5*time.Second {
		t.Errorf("timeouts = %s/%s", cfg.Timeout, cfg.GracefulShutdown)
	}
	if !cfg.Stats || cfg.Format != "json" {
		t.Errorf("Stats/Format = %v/%q", cfg.Stats, cfg.Format)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := strings.Join([]string{
		"target: http://127.0.0.1:9000",
		"concurrency: 4",
		"sweep: [1, 101, 201]",
		"arrival_model: poisson",
		"rate: 20",
		"tracing:",
		"  endpoint: collector:4317",
		"  sample_rate: 0.5",
		"  propagate: false",
		"thresholds:",
		"  - \"latency:p99 < 50\"",
		"  - \"failed{delete}:rate < 0.1\"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "http://127.0.0.1:9000" {
		t.Errorf("TargetURL = %q", cfg.TargetURL)
	}
	if !reflect.DeepEqual(cfg.Sweep.Volumes, []int{1, 101, 201}) {
		t.Errorf("Sweep.Volumes = %v", cfg.Sweep.Volumes)
	}
	if cfg.Arrival.Model != config.ArrivalModelPoisson {
		t.Errorf("Arrival.Model = %q", cfg.Arrival.Model)
	}
	if cfg.Tracing.Endpoint != "collector:4317" || cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.ShouldPropagate() {
		t.Errorf("propagation should be disabled by config")
	}
	if cfg.Tracing.Protocol != "grpc" {
		t.Errorf("Tracing.Protocol = %q, want default grpc", cfg.Tracing.Protocol)
	}
	wantThresholds := []string{"latency:p99 < 50", "failed{delete}:rate < 0.1"}
	if !reflect.DeepEqual(cfg.Thresholds, wantThresholds) {
		t.Errorf("Thresholds = %v, want %v", cfg.Thresholds, wantThresholds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadAuthSection(t *testing.T) {
	t.Setenv("KVCRANK_AUTH_CLIENT_SECRET", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.yaml")
	content := strings.Join([]string{
		"target: http://127.0.0.1:9000",
		"auth:",
		"  type: OAuth2_Client_Credentials",
		"  token_url: http://idp.local/token",
		"  client_id: kv-client",
		"  scopes: kv.read kv.write",
		"  refresh_before_expiry: 45s",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	a := cfg.Auth
	if a.Type != "oauth2_client_credentials" || a.TokenURL != "http://idp.local/token" || a.ClientID != "kv-client" {
		t.Errorf("Auth = %+v", a)
	}
	if a.ClientSecret != "from-env" {
		t.Errorf("ClientSecret = %q, want env fallback", a.ClientSecret)
	}
	if !reflect.DeepEqual(a.Scopes, []string{"kv.read", "kv.write"}) {
		t.Errorf("Scopes = %v", a.Scopes)
	}
	if a.RefreshBeforeExpiry != 45*time.Second {
		t.Errorf("RefreshBeforeExpiry = %v", a.RefreshBeforeExpiry)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if creds := a.Credentials(); creds.Grant != "oauth2_client_credentials" || creds.ClientSecret != "from-env" {
		t.Errorf("Credentials() = %+v", creds)
	}
}

func TestThresholdFlagRepeatable(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{
		"--threshold", "latency:p95 < 20, ms",
		"--threshold", "ops:rate > 100",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"latency:p95 < 20, ms", "ops:rate > 100"}
	if !reflect.DeepEqual(cfg.Thresholds, want) {
		t.Fatalf("Thresholds = %v, want %v", cfg.Thresholds, want)
	}
}

func TestSweepRangeFlags(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--sweep-stop", "900"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Sweep.Enabled() {
		t.Fatal("sweep should be enabled by --sweep-stop")
	}
	volumes, err := cfg.Sweep.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := []int{1, 101, 201, 301, 401, 501, 601, 701, 801}
	if !reflect.DeepEqual(volumes, want) {
		t.Fatalf("volumes = %v, want %v", volumes, want)
	}
}

func TestSweepListFlagWins(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--sweep", "5,10", "--sweep-stop", "900"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	volumes, err := cfg.Sweep.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !reflect.DeepEqual(volumes, []int{5, 10}) {
		t.Fatalf("volumes = %v, want [5 10]", volumes)
	}
}

func TestConfigValidationErrors(t *testing.T) {
	valid := func() config.Config { return *config.Defaults() }

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
		issues int
	}{
		{
			name:   "missing target",
			mutate: func(c *config.Config) { c.TargetURL = "" },
			want:   []string{"target"},
		},
		{
			name:   "empty key",
			mutate: func(c *config.Config) { c.Key = " " },
			want:   []string{"key"},
		},
		{
			name: "negative values",
			mutate: func(c *config.Config) {
				c.Concurrency = -1
				c.Rate = -5
				c.Total = -10
				c.Timeout = -1
				c.ListSkip = -1
				c.ListLimit = -1
			},
			want:   []string{"concurrency", "rate", "total", "timeout", "list-skip", "list-limit"},
			issues: 6,
		},
		{
			name:   "zero concurrency",
			mutate: func(c *config.Config) { c.Concurrency = 0 },
			want:   []string{"concurrency"},
		},
		{
			name:   "unknown strategy",
			mutate: func(c *config.Config) { c.Strategy = "parallel" },
			want:   []string{"strategy"},
		},
		{
			name:   "unknown format",
			mutate: func(c *config.Config) { c.Format = "xml" },
			want:   []string{"format"},
		},
		{
			name:   "unknown log level",
			mutate: func(c *config.Config) { c.LogLevel = "loud" },
			want:   []string{"log-level"},
		},
		{
			name:   "unknown arrival model",
			mutate: func(c *config.Config) { c.Arrival.Model = "burst" },
			want:   []string{"arrival model"},
		},
		{
			name:   "negative sweep volume",
			mutate: func(c *config.Config) { c.Sweep.Volumes = []int{1, -1} },
			want:   []string{"sweep[1]"},
		},
		{
			name: "bad sweep range",
			mutate: func(c *config.Config) {
				c.Sweep.Stop = 10
				c.Sweep.Step = 0
			},
			want: []string{"sweep"},
		},
		{
			name:   "unknown auth type",
			mutate: func(c *config.Config) { c.Auth.Type = "kerberos" },
			want:   []string{"auth", "kerberos"},
			issues: 1,
		},
		{
			name:   "incomplete client credentials",
			mutate: func(c *config.Config) { c.Auth.Type = "oauth2_client_credentials" },
			want:   []string{"token_url", "client_id"},
		},
		{
			name:   "static auth without token",
			mutate: func(c *config.Config) { c.Auth.Type = "static" },
			want:   []string{"token is required"},
		},
		{
			name:   "bad threshold",
			mutate: func(c *config.Config) { c.Thresholds = []string{"latency:p99 < 5", "cpu:avg < 1"} },
			want:   []string{"threshold[1]", "unsupported metric"},
			issues: 1,
		},
		{
			name: "bad tracing",
			mutate: func(c *config.Config) {
				c.Tracing.Protocol = "thrift"
				c.Tracing.SampleRate = 2
			},
			want:   []string{"protocol", "sample_rate"},
			issues: 2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() error = nil, want error")
			}
			var vErr config.ValidationError
			if ve, ok := err.(config.ValidationError); ok {
				vErr = ve
			} else {
				t.Fatalf("Validate() error type = %T, want ValidationError", err)
			}
			if tc.issues > 0 && len(vErr.Issues()) != tc.issues {
				t.Errorf("Issues() = %v, want %d", vErr.Issues(), tc.issues)
			}
			for _, want := range tc.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error %q missing %q", err.Error(), want)
				}
			}
		})
	}
}

func TestTracingConfigPropagation(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	if (config.TracingConfig{}).ShouldPropagate() {
		t.Error("disabled tracing should not propagate")
	}
	if !(config.TracingConfig{Endpoint: "collector:4317"}).ShouldPropagate() {
		t.Error("enabled tracing should propagate by default")
	}
	off := false
	if (config.TracingConfig{Endpoint: "collector:4317", Propagate: &off}).ShouldPropagate() {
		t.Error("explicit propagate=false ignored")
	}
}
