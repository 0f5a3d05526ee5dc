package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/torosent/kvcrank/internal/catalog"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used when neither a file nor a flag
// overrides a setting.
func Defaults() *Config {
	return &Config{
		TargetURL:        DefaultTarget,
		Key:              catalog.DefaultKey,
		Total:            DefaultTotal,
		Concurrency:      DefaultConcurrency,
		Strategy:         "dispatch-only",
		Arrival:          ArrivalConfig{Model: ArrivalModelUniform},
		Timeout:          DefaultTimeout,
		GracefulShutdown: DefaultGracefulShutdown,
		Headers:          map[string]string{},
		ListSkip:         catalog.DefaultListSkip,
		ListLimit:        catalog.DefaultListLimit,
		Format:           "text",
		LogLevel:         "info",
		Sweep:            SweepConfig{Start: DefaultSweepStart, Step: DefaultSweepStep},
		Tracing:          TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Running without arguments uses the defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.Strategy = strings.ToLower(strings.TrimSpace(cfg.Strategy))
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

// applyConfigSettings layers config-file settings over cfg.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	s := &section{entries: settings}

	s.text(&cfg.TargetURL, "target")
	s.text(&cfg.Key, "key")
	s.text(&cfg.Collection, "collection")
	s.with("headers", func(raw interface{}) error {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(hdrs))
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
		return nil
	})
	s.with("create_body", recordInto(&cfg.CreateBody))
	s.with("update_body", recordInto(&cfg.UpdateBody))
	s.integer(&cfg.ListSkip, "list_skip")
	s.integer(&cfg.ListLimit, "list_limit")

	s.integer(&cfg.Total, "total")
	s.with("sweep", func(raw interface{}) (err error) {
		cfg.Sweep, err = parseSweep(raw, cfg.Sweep)
		return err
	})
	s.integer(&cfg.Concurrency, "concurrency")
	s.lower(&cfg.Strategy, "strategy")
	s.integer(&cfg.Rate, "rate")
	s.with("arrival", func(raw interface{}) error {
		arrival, err := parseArrival(raw)
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
		return err
	}, "arrival_model")
	s.duration(&cfg.Timeout, "timeout")
	s.duration(&cfg.GracefulShutdown, "graceful_shutdown")

	s.text(&cfg.Output, "output")
	s.lower(&cfg.Format, "format")
	s.boolean(&cfg.Stats, "stats")
	s.with("thresholds", func(raw interface{}) (err error) {
		cfg.Thresholds, err = asStringList(raw)
		return err
	}, "threshold")
	s.boolean(&cfg.LogErrors, "log_errors")
	s.lower(&cfg.LogLevel, "log_level")

	s.with("auth", func(raw interface{}) (err error) {
		cfg.Auth, err = parseAuth(raw)
		return err
	})
	s.with("tracing", func(raw interface{}) (err error) {
		cfg.Tracing, err = parseTracing(raw, cfg.Tracing)
		return err
	})
	return s.err
}

// recordInto accepts a record either as JSON text or as a nested map in the
// config file. Maps are re-encoded as JSON; their keys arrive lowercased, so
// records with mixed-case fields must be given as JSON text.
func recordInto(dst *string) func(interface{}) error {
	return func(raw interface{}) error {
		switch raw.(type) {
		case map[string]interface{}, map[interface{}]interface{}:
			entry, err := toStringKeyMap(raw)
			if err != nil {
				return err
			}
			data, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			*dst = string(data)
			return nil
		default:
			v, err := asString(raw)
			*dst = v
			return err
		}
	}
}

// parseSweep accepts an explicit volume list or a start/stop/step map.
func parseSweep(value interface{}, base SweepConfig) (SweepConfig, error) {
	switch value.(type) {
	case nil:
		return base, nil
	case []interface{}, []int, string:
		volumes, err := asIntSlice(value)
		if err != nil {
			return base, err
		}
		base.Volumes = volumes
		return base, nil
	}

	s, err := newSection(value)
	if err != nil {
		return base, err
	}
	s.with("volumes", func(raw interface{}) (err error) {
		base.Volumes, err = asIntSlice(raw)
		return err
	})
	s.integer(&base.Start, "start")
	s.integer(&base.Stop, "stop")
	s.integer(&base.Step, "step")
	return base, s.err
}

// parseArrival accepts a bare model name or a map with a model field.
func parseArrival(value interface{}) (ArrivalConfig, error) {
	if name, ok := value.(string); ok || value == nil {
		return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(name)))}, nil
	}
	s, err := newSection(value)
	if err != nil {
		return ArrivalConfig{}, err
	}
	if _, ok := s.lookup("model"); !ok {
		return ArrivalConfig{}, errors.New("model field is required")
	}
	var model string
	s.lower(&model, "model")
	return ArrivalConfig{Model: ArrivalModel(model)}, s.err
}

// parseAuth reads the auth section. Secrets missing from the file fall back
// to KVCRANK_AUTH_TOKEN, KVCRANK_AUTH_CLIENT_SECRET and KVCRANK_AUTH_PASSWORD.
func parseAuth(value interface{}) (AuthConfig, error) {
	var a AuthConfig
	if value == nil {
		return a, nil
	}
	s, err := newSection(value)
	if err != nil {
		return a, err
	}

	s.lower(&a.Type, "type")
	s.text(&a.Token, "token", "static_token")
	s.text(&a.TokenURL, "token_url")
	s.text(&a.ClientID, "client_id")
	s.text(&a.ClientSecret, "client_secret")
	s.text(&a.Username, "username")
	s.text(&a.Password, "password")
	s.with("scopes", func(raw interface{}) (err error) {
		if str, ok := raw.(string); ok {
			a.Scopes = strings.Fields(strings.ReplaceAll(str, ",", " "))
			return nil
		}
		a.Scopes, err = asStringList(raw)
		return err
	}, "scope")
	s.duration(&a.RefreshBeforeExpiry, "refresh_before_expiry")
	if s.err != nil {
		return AuthConfig{}, s.err
	}

	envFallback(&a.Token, "KVCRANK_AUTH_TOKEN")
	envFallback(&a.ClientSecret, "KVCRANK_AUTH_CLIENT_SECRET")
	envFallback(&a.Password, "KVCRANK_AUTH_PASSWORD")
	return a, nil
}

func envFallback(dst *string, name string) {
	if *dst == "" {
		*dst = os.Getenv(name)
	}
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	s, err := newSection(value)
	if err != nil {
		return base, err
	}
	tc := base
	s.text(&tc.Endpoint, "endpoint")
	s.lower(&tc.Protocol, "protocol")
	s.text(&tc.ServiceName, "service_name")
	s.number(&tc.SampleRate, "sample_rate")
	s.boolean(&tc.Insecure, "insecure")
	s.with("propagate", func(raw interface{}) error {
		on, err := asBool(raw)
		tc.Propagate = &on
		return err
	})
	return tc, s.err
}
