package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/torosent/kvcrank/internal/auth"
	"github.com/torosent/kvcrank/internal/output"
	"github.com/torosent/kvcrank/internal/runner"
	"github.com/torosent/kvcrank/internal/threshold"
)

const (
	DefaultTarget           = "http://localhost:8080"
	DefaultTotal            = 1000
	DefaultConcurrency      = 100
	DefaultTimeout          = 30 * time.Second
	DefaultGracefulShutdown = 30 * time.Second
	DefaultSweepStart       = 1
	DefaultSweepStep        = 100
)

type Config struct {
	TargetURL        string            `mapstructure:"target"`
	Key              string            `mapstructure:"key"`
	Collection       string            `mapstructure:"collection"`
	Total            int               `mapstructure:"total"`
	Sweep            SweepConfig       `mapstructure:"sweep"`
	Concurrency      int               `mapstructure:"concurrency"`
	Strategy         string            `mapstructure:"strategy"`
	Rate             int               `mapstructure:"rate"`
	Arrival          ArrivalConfig     `mapstructure:"arrival"`
	Timeout          time.Duration     `mapstructure:"timeout"`
	GracefulShutdown time.Duration     `mapstructure:"graceful_shutdown"`
	Headers          map[string]string `mapstructure:"headers"`
	CreateBody       string            `mapstructure:"create_body"`
	UpdateBody       string            `mapstructure:"update_body"`
	ListSkip         int               `mapstructure:"list_skip"`
	ListLimit        int               `mapstructure:"list_limit"`
	Output           string            `mapstructure:"output"`
	Format           string            `mapstructure:"format"`
	Stats            bool              `mapstructure:"stats"`
	Thresholds       []string          `mapstructure:"thresholds"`
	LogErrors        bool              `mapstructure:"log_errors"`
	LogLevel         string            `mapstructure:"log_level"`
	Tracing          TracingConfig     `mapstructure:"tracing"`
	Auth             AuthConfig        `mapstructure:"auth"`
	ConfigFile       string            `mapstructure:"-"`
}

// SweepConfig describes a series of runs with increasing volume. Either an
// explicit list of volumes or a half-open range [Start, Stop) walked by Step.
type SweepConfig struct {
	Volumes []int `mapstructure:"volumes"`
	Start   int   `mapstructure:"start"`
	Stop    int   `mapstructure:"stop"`
	Step    int   `mapstructure:"step"`
}

// Enabled reports whether a sweep was configured.
func (s SweepConfig) Enabled() bool {
	return len(s.Volumes) > 0 || s.Stop > 0
}

// Resolve returns the volumes of the sweep, in run order.
func (s SweepConfig) Resolve() ([]int, error) {
	if len(s.Volumes) > 0 {
		return append([]int(nil), s.Volumes...), nil
	}
	return runner.SweepVolumes(s.Start, s.Stop, s.Step)
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

// TracingConfig configures OpenTelemetry export. Tracing is off unless an
// endpoint is set here or through OTEL_EXPORTER_OTLP_ENDPOINT.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"` // nil means propagate when enabled
}

func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace context is injected into requests.
func (t TracingConfig) ShouldPropagate() bool {
	if !t.Enabled() {
		return false
	}
	if t.Propagate == nil {
		return true
	}
	return *t.Propagate
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	if strings.TrimSpace(c.TargetURL) == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	}
	if strings.TrimSpace(c.Key) == "" {
		issues = append(issues, "key must not be empty")
	}

	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High rate limit configured (%d RPS). Ensure you have authorization to test the target system.", c.Rate))
	}
	if c.Concurrency > 500 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High concurrency configured (%d workers). Ensure you have authorization to test the target system.", c.Concurrency))
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Total < 0 {
		issues = append(issues, "total must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.ListSkip < 0 {
		issues = append(issues, "list-skip must be >= 0")
	}
	if c.ListLimit < 0 {
		issues = append(issues, "list-limit must be >= 0")
	}

	if _, err := runner.ParseStrategy(c.Strategy); err != nil {
		issues = append(issues, fmt.Sprintf("strategy %q is not supported (use dispatch-only, bounded or sequential)", c.Strategy))
	}
	if _, err := output.ParseFormat(c.Format); err != nil {
		issues = append(issues, err.Error())
	}
	if strings.TrimSpace(c.LogLevel) != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			issues = append(issues, fmt.Sprintf("log-level %q is not supported", c.LogLevel))
		}
	}

	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, validateSweepConfig(c.Sweep)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)
	issues = append(issues, validateAuthConfig(c.Auth)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func validateSweepConfig(sweep SweepConfig) []string {
	if !sweep.Enabled() {
		return nil
	}
	var issues []string
	if len(sweep.Volumes) > 0 {
		for idx, v := range sweep.Volumes {
			if v < 0 {
				issues = append(issues, fmt.Sprintf("sweep[%d]: volume must be >= 0, got %d", idx, v))
			}
		}
		return issues
	}
	if _, err := sweep.Resolve(); err != nil {
		issues = append(issues, fmt.Sprintf("sweep: %v", err))
	}
	return issues
}

// AuthConfig selects how requests are authorized. Secrets may come from the
// KVCRANK_AUTH_TOKEN, KVCRANK_AUTH_CLIENT_SECRET and KVCRANK_AUTH_PASSWORD
// environment variables instead of the config file.
type AuthConfig struct {
	Type                string        `mapstructure:"type"`
	Token               string        `mapstructure:"token"`
	TokenURL            string        `mapstructure:"token_url"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	Username            string        `mapstructure:"username"`
	Password            string        `mapstructure:"password"`
	Scopes              []string      `mapstructure:"scopes"`
	RefreshBeforeExpiry time.Duration `mapstructure:"refresh_before_expiry"`
}

// Credentials converts the section into provider credentials.
func (a AuthConfig) Credentials() auth.Credentials {
	return auth.Credentials{
		Grant:               auth.Grant(strings.ToLower(strings.TrimSpace(a.Type))),
		Token:               a.Token,
		TokenURL:            a.TokenURL,
		ClientID:            a.ClientID,
		ClientSecret:        a.ClientSecret,
		Username:            a.Username,
		Password:            a.Password,
		Scopes:              a.Scopes,
		RefreshBeforeExpiry: a.RefreshBeforeExpiry,
	}
}

func validateAuthConfig(a AuthConfig) []string {
	grant, err := auth.ParseGrant(a.Type)
	if err != nil {
		return []string{"auth: " + err.Error()}
	}
	var issues []string
	switch grant {
	case auth.GrantStatic:
		if strings.TrimSpace(a.Token) == "" {
			issues = append(issues, "auth: token is required for static")
		}
	case auth.GrantClientCredentials, auth.GrantPassword:
		if strings.TrimSpace(a.TokenURL) == "" {
			issues = append(issues, fmt.Sprintf("auth: token_url is required for %s", grant))
		}
		if strings.TrimSpace(a.ClientID) == "" {
			issues = append(issues, fmt.Sprintf("auth: client_id is required for %s", grant))
		}
		if grant == auth.GrantPassword && strings.TrimSpace(a.Username) == "" {
			issues = append(issues, "auth: username is required for oauth2_password")
		}
	}
	if a.RefreshBeforeExpiry < 0 {
		issues = append(issues, "auth: refresh_before_expiry must be >= 0")
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
