package runner

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// pacer spaces dispatches. *rate.Limiter satisfies it directly.
type pacer interface {
	Wait(ctx context.Context) error
}

// newPacer returns nil when RatePerSecond is zero.
func newPacer(opt Options) pacer {
	if opt.RatePerSecond <= 0 {
		return nil
	}
	if opt.ArrivalModel != ArrivalModelPoisson {
		return opt.LimiterFactory(opt.RatePerSecond)
	}

	draw := opt.PoissonSampler
	if draw == nil {
		draw = rand.New(rand.NewSource(opt.RandomSeed)).ExpFloat64
	}
	return &exponentialPacer{mean: time.Second / time.Duration(opt.RatePerSecond), draw: draw}
}

// exponentialPacer sleeps for exponentially distributed gaps, so dispatches
// form a Poisson process with the configured mean rate.
type exponentialPacer struct {
	mean time.Duration

	mu   sync.Mutex
	draw func() float64 // unit-mean sample; *rand.Rand is not safe for concurrent use
}

func (p *exponentialPacer) Wait(ctx context.Context) error {
	gap := p.gap()
	if gap <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(gap)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *exponentialPacer) gap() time.Duration {
	p.mu.Lock()
	x := p.draw()
	p.mu.Unlock()

	d := x * float64(p.mean)
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
