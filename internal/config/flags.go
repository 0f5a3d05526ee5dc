package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/torosent/kvcrank/internal/catalog"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kvcrank",
		Short:         "Fire CRUD and list requests at a key-value HTTP service and time them",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target flags
	flags.String("target", DefaultTarget, "Base URL of the key-value service")
	flags.String("key", catalog.DefaultKey, "Record key used by the named create, read, update and delete operations")
	flags.String("collection", "", "Optional collection prefix for the unnamed create (PUT /<collection>/)")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("create-body", "", "JSON object sent by create operations")
	flags.String("update-body", "", "JSON object sent by update operations")
	flags.Int("list-skip", catalog.DefaultListSkip, "skip query parameter of the list operation")
	flags.Int("list-limit", catalog.DefaultListLimit, "limit query parameter of the list operation")

	// Load control flags
	flags.IntP("total", "t", DefaultTotal, "Number of operations to dispatch in a fixed run")
	flags.IntSlice("sweep", nil, "Explicit sweep volumes, one run each (e.g. 1,101,201)")
	flags.Int("sweep-start", DefaultSweepStart, "First sweep volume")
	flags.Int("sweep-stop", 0, "Exclusive upper bound of the sweep (0 disables range sweeps)")
	flags.Int("sweep-step", DefaultSweepStep, "Increment between sweep volumes")
	flags.IntP("concurrency", "c", DefaultConcurrency, "Concurrency reported in the summary; worker cap for the bounded strategy")
	flags.StringP("strategy", "s", "dispatch-only", "Dispatch strategy: dispatch-only, bounded or sequential")
	flags.IntP("rate", "r", 0, "Dispatch rate limit in operations per second (0 means unlimited)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing requests (uniform or poisson)")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.Duration("graceful-shutdown", DefaultGracefulShutdown, "Max time to wait for in-flight requests before exiting (0 exits immediately)")

	// Output flags
	flags.StringP("output", "o", "", "Append summaries and reports to this file instead of stdout")
	flags.String("format", "text", "Report format: text, json or yaml")
	flags.Bool("stats", false, "Collect per-operation latency and failure statistics")
	flags.StringArray("threshold", nil, "Per-run check reported with stats, e.g. 'latency:p99 < 50' (repeatable; implies --stats)")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port); enables tracing")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of operations traced (0.0 to 1.0)")
	flags.Bool("tracing-insecure", false, "Disable TLS when exporting spans")
	flags.Bool("tracing-propagate", true, "Inject W3C trace context headers into requests")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

type flagSetter func(fs *pflag.FlagSet, name string) error

// applyFlagOverrides copies every flag set on the command line into cfg,
// on top of whatever the config file provided.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	setters := map[string]flagSetter{
		"target":            textFlag(&cfg.TargetURL),
		"key":               textFlag(&cfg.Key),
		"collection":        textFlag(&cfg.Collection),
		"header":            headerFlag(cfg),
		"create-body":       rawFlag(&cfg.CreateBody),
		"update-body":       rawFlag(&cfg.UpdateBody),
		"list-skip":         intFlag(&cfg.ListSkip),
		"list-limit":        intFlag(&cfg.ListLimit),
		"total":             intFlag(&cfg.Total),
		"sweep-start":       intFlag(&cfg.Sweep.Start),
		"sweep-stop":        intFlag(&cfg.Sweep.Stop),
		"sweep-step":        intFlag(&cfg.Sweep.Step),
		"concurrency":       intFlag(&cfg.Concurrency),
		"strategy":          lowerFlag(&cfg.Strategy),
		"rate":              intFlag(&cfg.Rate),
		"timeout":           durationFlag(&cfg.Timeout),
		"graceful-shutdown": durationFlag(&cfg.GracefulShutdown),
		"output":            textFlag(&cfg.Output),
		"format":            lowerFlag(&cfg.Format),
		"stats":             boolFlag(&cfg.Stats),
		"log-errors":        boolFlag(&cfg.LogErrors),
		"log-level":         lowerFlag(&cfg.LogLevel),

		"tracing-endpoint":     textFlag(&cfg.Tracing.Endpoint),
		"tracing-protocol":     lowerFlag(&cfg.Tracing.Protocol),
		"tracing-service-name": textFlag(&cfg.Tracing.ServiceName),
		"tracing-insecure":     boolFlag(&cfg.Tracing.Insecure),
		"tracing-sample-rate": func(fs *pflag.FlagSet, name string) (err error) {
			cfg.Tracing.SampleRate, err = fs.GetFloat64(name)
			return err
		},
		"tracing-propagate": func(fs *pflag.FlagSet, name string) error {
			on, err := fs.GetBool(name)
			cfg.Tracing.Propagate = &on
			return err
		},
		"sweep": func(fs *pflag.FlagSet, name string) (err error) {
			cfg.Sweep.Volumes, err = fs.GetIntSlice(name)
			return err
		},
		"threshold": func(fs *pflag.FlagSet, name string) (err error) {
			cfg.Thresholds, err = fs.GetStringArray(name)
			return err
		},
		"arrival-model": func(fs *pflag.FlagSet, name string) error {
			var model string
			err := lowerFlag(&model)(fs, name)
			cfg.Arrival.Model = ArrivalModel(model)
			return err
		},
	}

	var err error
	fs.Visit(func(f *pflag.Flag) {
		set, ok := setters[f.Name]
		if !ok || err != nil {
			return
		}
		err = set(fs, f.Name)
	})
	return err
}

func rawFlag(dst *string) flagSetter {
	return func(fs *pflag.FlagSet, name string) (err error) {
		*dst, err = fs.GetString(name)
		return err
	}
}

func textFlag(dst *string) flagSetter {
	return func(fs *pflag.FlagSet, name string) error {
		err := rawFlag(dst)(fs, name)
		*dst = strings.TrimSpace(*dst)
		return err
	}
}

func lowerFlag(dst *string) flagSetter {
	return func(fs *pflag.FlagSet, name string) error {
		err := textFlag(dst)(fs, name)
		*dst = strings.ToLower(*dst)
		return err
	}
}

func intFlag(dst *int) flagSetter {
	return func(fs *pflag.FlagSet, name string) (err error) {
		*dst, err = fs.GetInt(name)
		return err
	}
}

func boolFlag(dst *bool) flagSetter {
	return func(fs *pflag.FlagSet, name string) (err error) {
		*dst, err = fs.GetBool(name)
		return err
	}
}

func durationFlag(dst *time.Duration) flagSetter {
	return func(fs *pflag.FlagSet, name string) (err error) {
		*dst, err = fs.GetDuration(name)
		return err
	}
}

// headerFlag merges repeated key=value pairs into cfg.Headers.
func headerFlag(cfg *Config) flagSetter {
	return func(fs *pflag.FlagSet, name string) error {
		entries, err := fs.GetStringSlice(name)
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(entries))
		}
		for _, entry := range entries {
			k, v, ok := strings.Cut(entry, "=")
			if !ok {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(k))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(v)
		}
		return nil
	}
}
