package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// Result captures one run's summary.
type Result struct {
	Run         int       // ordinal within the Runner, starting at 0
	RunID       string    // ULID identifying the run
	Strategy    Strategy
	Volume      int       // requested number of operations
	Dispatched  int       // operations actually launched
	Concurrency int       // declared concurrency
	Started     time.Time
	Duration    time.Duration
}

// Throughput returns dispatched operations per second of measured time.
func (r Result) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Dispatched) / r.Duration.Seconds()
}

// Runner dispatches catalog operations round-robin and times each run.
type Runner struct {
	opt   Options
	pacer pacer

	runs     atomic.Int64
	inflight atomic.Int64
	tasks    sync.WaitGroup
}

// New validates opt and returns a Runner. Invalid options yield a
// *ConfigurationError.
func New(opt Options) (*Runner, error) {
	opt.normalize()
	if err := opt.validate(); err != nil {
		return nil, err
	}
	opt.Catalog = append([]Requester(nil), opt.Catalog...)
	return &Runner{opt: opt, pacer: newPacer(opt)}, nil
}

// RunFixed dispatches volume operations, operation i being
// Catalog[i mod len(Catalog)]. A negative volume is a *ConfigurationError.
// If ctx is cancelled the dispatch loop stops and the partial result is
// returned with ctx's error.
func (r *Runner) RunFixed(ctx context.Context, volume int) (Result, error) {
	if volume < 0 {
		return Result{}, &ConfigurationError{Field: "volume", Reason: fmt.Sprintf("must be >= 0, got %d", volume)}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	run := int(r.runs.Add(1) - 1)
	res := Result{
		Run:         run,
		RunID:       ulid.Make().String(),
		Strategy:    r.opt.Strategy,
		Volume:      volume,
		Concurrency: r.opt.Concurrency,
	}

	var err error
	res.Started = time.Now()
	switch r.opt.Strategy {
	case StrategyBounded:
		res.Dispatched, err = r.dispatchBounded(ctx, run, volume)
	case StrategySequential:
		res.Dispatched, err = r.dispatchSequential(ctx, run, volume)
	default:
		res.Dispatched, err = r.dispatchDetached(ctx, run, volume)
	}
	res.Duration = time.Since(res.Started)

	if r.opt.OnResult != nil {
		r.opt.OnResult(res)
	}
	return res, err
}

// RunSweep performs one RunFixed per volume, in order. All volumes are
// validated before the first dispatch. Runs never overlap in dispatch, but
// dispatch-only stragglers from one run may still be in flight while the next
// run dispatches.
func (r *Runner) RunSweep(ctx context.Context, volumes []int) ([]Result, error) {
	for i, v := range volumes {
		if v < 0 {
			return nil, &ConfigurationError{Field: fmt.Sprintf("volumes[%d]", i), Reason: fmt.Sprintf("must be >= 0, got %d", v)}
		}
	}
	results := make([]Result, 0, len(volumes))
	for _, v := range volumes {
		res, err := r.RunFixed(ctx, v)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// Inflight reports operations dispatched but not yet finished.
func (r *Runner) Inflight() int64 {
	return r.inflight.Load()
}

// Drain blocks until every detached operation has finished or ctx is done.
// It must not be called while a run is dispatching.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchDetached launches one goroutine per operation and returns as soon
// as the last one is launched. Tasks outlive ctx cancellation.
func (r *Runner) dispatchDetached(ctx context.Context, run, volume int) (int, error) {
	taskCtx := context.WithoutCancel(ctx)
	n := len(r.opt.Catalog)
	for i := 0; i < volume; i++ {
		if err := r.pace(ctx); err != nil {
			return i, err
		}
		r.inflight.Add(1)
		r.tasks.Add(1)
		go func(seq int) {
			defer r.tasks.Done()
			r.invoke(taskCtx, run, seq, seq%n)
		}(i)
	}
	return volume, nil
}

// dispatchBounded keeps at most Concurrency operations running and waits
// for all of them to finish. Pacing stays on the dispatching goroutine.
func (r *Runner) dispatchBounded(ctx context.Context, run, volume int) (int, error) {
	var g errgroup.Group
	g.SetLimit(r.opt.Concurrency)
	n := len(r.opt.Catalog)

	for i := 0; i < volume; i++ {
		if err := r.pace(ctx); err != nil {
			_ = g.Wait()
			return i, err
		}
		g.Go(func() error {
			r.inflight.Add(1)
			r.invoke(ctx, run, i, i%n)
			return nil
		})
	}
	_ = g.Wait()
	return volume, nil
}

func (r *Runner) dispatchSequential(ctx context.Context, run, volume int) (int, error) {
	n := len(r.opt.Catalog)
	for i := 0; i < volume; i++ {
		if err := r.pace(ctx); err != nil {
			return i, err
		}
		r.inflight.Add(1)
		r.invoke(ctx, run, i, i%n)
	}
	return volume, nil
}

// pace blocks until the next dispatch slot, or only checks ctx when unpaced.
func (r *Runner) pace(ctx context.Context) error {
	if r.pacer == nil {
		return ctx.Err()
	}
	return r.pacer.Wait(ctx)
}

// invoke runs one operation and hands its outcome to the sink. The caller has
// already counted it as in flight.
func (r *Runner) invoke(ctx context.Context, run, seq, idx int) {
	defer r.inflight.Add(-1)
	req := r.opt.Catalog[idx]
	start := time.Now()
	err := req.Do(ctx)
	r.opt.Sink.Record(Outcome{
		Run:     run,
		Seq:     seq,
		Index:   idx,
		Name:    nameOf(req),
		Latency: time.Since(start),
		Err:     err,
	})
}
