// Package runner provides the dispatch harness for kvcrank.
//
// A [Runner] fires a fixed volume of operations taken round-robin from a
// catalog: operation i is always Catalog[i mod len(Catalog)]. Runs come in two
// shapes:
//   - [Runner.RunFixed]: one volume, one timed run
//   - [Runner.RunSweep]: a sequence of independent runs over several volumes
//
// # Basic Usage
//
//	r, err := runner.New(runner.Options{
//		Strategy:    runner.StrategyDispatchOnly,
//		Concurrency: 100,
//		Catalog:     requesters,
//	})
//	if err != nil {
//		return err // *runner.ConfigurationError
//	}
//	res, err := r.RunFixed(ctx, 1000)
//
// # Strategies
//
// The measurement boundary depends on the [Strategy]:
//   - [StrategyDispatchOnly]: one goroutine per operation, nothing awaited. The
//     timer stops once the last goroutine is launched, so the duration does not
//     grow with target latency. Concurrency only labels the run.
//   - [StrategyBounded]: Concurrency workers, the run waits for completion.
//   - [StrategySequential]: each operation finishes before the next starts.
//
// With dispatch-only or bounded runs, read/update/delete operations can reach
// the target before the create that establishes their key. Sequential runs do
// not have that race.
//
// # Outcomes
//
// Operation results are dropped unless a [ResultSink] is configured. Sinks see
// every [Outcome], including those of dispatch-only tasks that finish after
// their run returned. Use [Runner.Drain] to wait for such stragglers.
//
// # Pacing
//
// RatePerSecond paces the dispatch loop using [ArrivalModelUniform] (token
// bucket) or [ArrivalModelPoisson] spacing. Zero means unpaced.
package runner
