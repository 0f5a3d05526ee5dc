package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/kvcrank/internal/auth"
	"github.com/torosent/kvcrank/internal/catalog"
	"github.com/torosent/kvcrank/internal/config"
	"github.com/torosent/kvcrank/internal/httpclient"
	"github.com/torosent/kvcrank/internal/logging"
	"github.com/torosent/kvcrank/internal/metrics"
	"github.com/torosent/kvcrank/internal/output"
	"github.com/torosent/kvcrank/internal/runner"
	"github.com/torosent/kvcrank/internal/threshold"
	"github.com/torosent/kvcrank/internal/tracing"
)

const tracingShutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return execute(ctx, args, os.Stdout, os.Stderr)
}

// execute loads the configuration, performs the fixed run or the sweep and
// writes summaries and reports. Only configuration problems are returned as
// errors; failed requests never fail the process.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	strategy, err := runner.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	volumes := []int{cfg.Total}
	sweep := cfg.Sweep.Enabled()
	if sweep {
		if volumes, err = cfg.Sweep.Resolve(); err != nil {
			return err
		}
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}
	evaluator := threshold.NewEvaluator(thresholds)

	cat, err := buildCatalog(cfg)
	if err != nil {
		return err
	}

	tp, err := tracing.Init(ctx, cfg.Tracing, tracing.RunAttributes(cat.Base(), string(strategy))...)
	if err != nil {
		return err
	}
	if tp.Enabled() {
		log.Debug("tracing enabled", zap.String("protocol", cfg.Tracing.Protocol), zap.Bool("propagate", tp.ShouldPropagate()))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	client := httpclient.NewClient(cfg.Timeout, maxConnsPerHost(strategy, cfg.Concurrency))
	authProvider, err := auth.New(ctx, cfg.Auth.Credentials())
	if err != nil {
		return err
	}
	defer authProvider.Close()

	requesters, err := newRequesters(cat, client, tp, authProvider)
	if err != nil {
		return err
	}

	var failureLogger runner.FailureLogger
	if cfg.LogErrors {
		failureLogger = logging.NewFailureLogger(log)
	}
	catalogReqs := make([]runner.Requester, len(requesters))
	for i, req := range requesters {
		catalogReqs[i] = runner.WithLogging(req, failureLogger)
	}

	var stats *runStats
	var sink runner.ResultSink
	if cfg.Stats || evaluator.Len() > 0 {
		stats = newRunStats()
		sink = stats
	}

	dest := output.NewWriterDestination(stdout)
	if cfg.Output != "" {
		if dest, err = output.OpenDestination(cfg.Output); err != nil {
			return err
		}
	}
	defer dest.Close()

	var results []runner.Result
	opts := runner.Options{
		Strategy:      strategy,
		Concurrency:   cfg.Concurrency,
		Catalog:       catalogReqs,
		Sink:          sink,
		RatePerSecond: cfg.Rate,
		ArrivalModel:  toRunnerArrivalModel(cfg.Arrival.Model),
		OnResult: func(res runner.Result) {
			results = append(results, res)
			log.Debug("run finished",
				zap.Int("run", res.Run),
				zap.String("run_id", res.RunID),
				zap.Int("volume", res.Volume),
				zap.Int("dispatched", res.Dispatched),
				zap.Duration("duration", res.Duration),
			)
			if format == output.FormatText {
				if err := output.PrintSummary(dest, res); err != nil {
					log.Warn("writing summary failed", zap.Error(err))
				}
			}
		},
	}

	r, err := runner.New(opts)
	if err != nil {
		return err
	}

	log.Debug("starting",
		zap.String("target", cat.Base()),
		zap.String("strategy", string(strategy)),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Ints("volumes", volumes),
	)

	if sweep {
		_, err = r.RunSweep(ctx, volumes)
	} else {
		_, err = r.RunFixed(ctx, cfg.Total)
	}
	var cfgErr *runner.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		return err
	case err != nil:
		log.Warn("run interrupted", zap.Error(err))
	}

	drain(r, cfg.GracefulShutdown, log)

	return writeReports(dest, format, results, stats, evaluator, log)
}

// drain waits for operations still in flight, up to timeout.
func drain(r *runner.Runner, timeout time.Duration, log *zap.Logger) {
	if r.Inflight() == 0 {
		return
	}
	if timeout <= 0 {
		log.Warn("exiting with requests in flight", zap.Int64("inflight", r.Inflight()))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log.Debug("waiting for in-flight requests", zap.Int64("inflight", r.Inflight()))
	if err := r.Drain(ctx); err != nil {
		log.Warn("graceful shutdown timed out", zap.Int64("inflight", r.Inflight()), zap.Duration("timeout", timeout))
	}
}

// writeReports renders per-run statistics and threshold results. Failed
// thresholds are reported and logged but never change the exit status.
func writeReports(w io.Writer, format output.Format, results []runner.Result, stats *runStats, evaluator *threshold.Evaluator, log *zap.Logger) error {
	var buf bytes.Buffer
	reports := make([]output.RunReport, 0, len(results))
	for _, res := range results {
		var s *metrics.Stats
		var checks []threshold.Result
		if stats != nil {
			st := stats.Stats(res)
			s = &st
			checks = evaluator.Evaluate(st)
			for _, c := range checks {
				if !c.Pass {
					log.Warn("threshold failed",
						zap.Int("run", res.Run),
						zap.String("threshold", c.Threshold.Raw),
						zap.Float64("actual", c.Actual),
					)
				}
			}
		}

		if format == output.FormatText {
			if s == nil {
				continue
			}
			fmt.Fprintf(&buf, "\nRun %d: %d operations (%s)\n", res.Run+1, res.Volume, res.RunID)
			output.PrintReport(&buf, *s)
			output.PrintThresholds(&buf, checks)
			continue
		}

		report := output.NewRunReport(res, s)
		report.Thresholds = output.NewThresholdSummary(checks)
		reports = append(reports, report)
	}

	if format != output.FormatText {
		if err := output.Encode(&buf, format, reports); err != nil {
			return err
		}
	}
	if buf.Len() == 0 {
		return nil
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func buildCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.Canonical(catalog.Options{
		BaseURL:      cfg.TargetURL,
		Key:          cfg.Key,
		Collection:   cfg.Collection,
		CreateRecord: cfg.CreateBody,
		UpdateRecord: cfg.UpdateBody,
		ListSkip:     cfg.ListSkip,
		ListLimit:    cfg.ListLimit,
		Headers:      makeHeaders(cfg.Headers),
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return cat, nil
}

// makeHeaders converts a map[string]string to http.Header
func makeHeaders(headers map[string]string) http.Header {
	h := make(http.Header)
	for k, v := range headers {
		h.Set(k, v)
	}
	return h
}

// maxConnsPerHost caps connections at the worker count under the bounded
// strategy. Zero leaves them unbounded.
func maxConnsPerHost(strategy runner.Strategy, concurrency int) int {
	if strategy == runner.StrategyBounded {
		return concurrency
	}
	return 0
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch model {
	case config.ArrivalModelPoisson:
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}
