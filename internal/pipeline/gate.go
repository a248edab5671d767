package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/lead-pipeline/internal/cost"
	"github.com/sells-group/lead-pipeline/internal/metrics"
)

// DefaultGateDelay is slept before each gated call.
const DefaultGateDelay = 1500 * time.Millisecond

// Gate throttles calls to rate-limited external APIs: at most n in flight,
// a fixed delay before each, and a cost reservation against the run meter.
type Gate struct {
	sem     *semaphore.Weighted
	delay   time.Duration
	timeout time.Duration
	meter   *cost.Meter
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithMeter charges each call to m. Calls are refused once the cap is hit.
func WithMeter(m *cost.Meter) GateOption {
	return func(g *Gate) { g.meter = m }
}

// WithGateMetrics records per-service call outcomes.
func WithGateMetrics(m *metrics.Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// WithCallTimeout bounds each gated call.
func WithCallTimeout(d time.Duration) GateOption {
	return func(g *Gate) { g.timeout = d }
}

// NewGate returns a Gate admitting concurrency calls at a time.
func NewGate(concurrency int, delay time.Duration, opts ...GateOption) *Gate {
	if concurrency < 1 {
		concurrency = 1
	}
	if delay < 0 {
		delay = 0
	}
	g := &Gate{
		sem:   semaphore.NewWeighted(int64(concurrency)),
		delay: delay,
		sleep: sleepCtx,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Do runs fn inside the gate, charging one call to svc.
func (g *Gate) Do(ctx context.Context, svc cost.Service, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return eris.Wrap(err, "gate: acquire")
	}
	defer g.sem.Release(1)

	if g.meter != nil {
		if err := g.meter.Reserve(svc); err != nil {
			return eris.Wrapf(err, "gate: %s", svc)
		}
	}
	if err := g.sleep(ctx, g.delay); err != nil {
		return eris.Wrap(err, "gate: delay")
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	err := fn(callCtx)
	g.metrics.ObserveCall(string(svc), err)
	return err
}

// GateVal is Do for calls that return a value.
func GateVal[T any](ctx context.Context, g *Gate, svc cost.Service, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, svc, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
