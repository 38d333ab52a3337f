package engine

import (
	"context"
	"sync"
)

// flow groups the recomputes caused by one externally originated write.
//
// Every hook and refresh starts a flow unless its context already carries
// one; writes made inside the flow pass the context on, so cascaded hooks
// join the same flow and share its quota and cycle history.
type flow struct {
	token string

	mu    sync.Mutex
	quota *QuotaEnforcer
	err   error // sticky once the quota is exceeded
}

type flowKey struct{}

func flowFrom(ctx context.Context) *flow {
	f, _ := ctx.Value(flowKey{}).(*flow)
	return f
}

// FlowToken returns the token of the flow carried by ctx, or "" outside a flow.
func FlowToken(ctx context.Context) string {
	if f := flowFrom(ctx); f != nil {
		return f.token
	}
	return ""
}

// step charges one recompute to the flow. Once the quota is exceeded every
// later step fails with the same error.
func (f *flow) step() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	if err := f.quota.Check(f.token); err != nil {
		f.err = err
		return err
	}
	return nil
}

// withFlow runs fn inside the flow carried by ctx, or inside a new flow that
// ends (and forgets its cycle history) when fn returns.
func (e *Engine) withFlow(ctx context.Context, fn func(context.Context) error) error {
	if flowFrom(ctx) != nil {
		return fn(ctx)
	}

	f := &flow{
		token: e.flowGen.Generate(),
		quota: NewQuotaEnforcer(e.maxSteps),
	}
	defer e.cycles.Clear(f.token)

	err := fn(context.WithValue(ctx, flowKey{}, f))
	e.metrics.RecordFlow(ctx, f.quota.Current(), err == nil)
	return err
}
