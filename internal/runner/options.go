package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Requester abstracts executing a single catalog operation.
// Implementations should return an error for failed requests.
type Requester interface {
	Do(ctx context.Context) error
}

// Strategy selects how operations are dispatched and what the run timer covers.
type Strategy string

const (
	// StrategyDispatchOnly launches one goroutine per operation and never
	// waits for them. The timer covers the dispatch loop only and the
	// concurrency value is a label, not a cap.
	StrategyDispatchOnly Strategy = "dispatch-only"
	// StrategyBounded runs operations on Concurrency workers and waits for
	// all of them. The timer covers dispatch and completion.
	StrategyBounded Strategy = "bounded"
	// StrategySequential awaits each operation before dispatching the next.
	StrategySequential Strategy = "sequential"
)

// ParseStrategy maps a user supplied name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case "", StrategyDispatchOnly, "legacy":
		return StrategyDispatchOnly, nil
	case StrategyBounded:
		return StrategyBounded, nil
	case StrategySequential:
		return StrategySequential, nil
	default:
		return "", &ConfigurationError{Field: "strategy", Reason: fmt.Sprintf("unsupported value %q", name)}
	}
}

// ArrivalModel controls the spacing of dispatches when a rate is set.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Options configure the Runner.
type Options struct {
	Strategy       Strategy                    // dispatch strategy (default dispatch-only)
	Concurrency    int                         // concurrency hint; enforced only by StrategyBounded
	Catalog        []Requester                 // operations selected round-robin (required)
	Sink           ResultSink                  // outcome recorder (nil discards)
	OnResult       func(Result)                // optional observer called after every run
	RatePerSecond  int                         // dispatch pacing (0 means unlimited)
	ArrivalModel   ArrivalModel                // pacing model when RatePerSecond > 0
	RandomSeed     int64                       // seed for poisson sampling
	PoissonSampler func() float64              // optional injection for tests
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Strategy == "" {
		o.Strategy = StrategyDispatchOnly
	}
	if o.Sink == nil {
		o.Sink = Discard
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func (o Options) validate() error {
	if len(o.Catalog) == 0 {
		return &ConfigurationError{Field: "catalog", Reason: "must contain at least one operation"}
	}
	for i, req := range o.Catalog {
		if req == nil {
			return &ConfigurationError{Field: fmt.Sprintf("catalog[%d]", i), Reason: "operation is nil"}
		}
	}
	if o.Concurrency < 1 {
		return &ConfigurationError{Field: "concurrency", Reason: fmt.Sprintf("must be >= 1, got %d", o.Concurrency)}
	}
	switch o.Strategy {
	case StrategyDispatchOnly, StrategyBounded, StrategySequential:
	default:
		return &ConfigurationError{Field: "strategy", Reason: fmt.Sprintf("unsupported value %q", o.Strategy)}
	}
	switch o.ArrivalModel {
	case ArrivalModelUniform, ArrivalModelPoisson:
	default:
		return &ConfigurationError{Field: "arrival model", Reason: fmt.Sprintf("unsupported value %q", o.ArrivalModel)}
	}
	return nil
}
