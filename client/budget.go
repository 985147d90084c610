package client

import (
	"context"
	"sync/atomic"
)

type budgetContextKey struct{}

type retryBudget struct {
	remaining atomic.Int32
}

// WithRetryBudget allows at most n refresh-and-replay cycles for every
// request made with ctx. Requests sharing ctx share the budget.
func WithRetryBudget(ctx context.Context, n int) context.Context {
	b := &retryBudget{}
	if n > 0 {
		b.remaining.Store(int32(n))
	}
	return context.WithValue(ctx, budgetContextKey{}, b)
}

// RetriesLeft reports the remaining budget in ctx, or -1 when none is set.
func RetriesLeft(ctx context.Context) int {
	b, ok := ctx.Value(budgetContextKey{}).(*retryBudget)
	if !ok {
		return -1
	}
	return int(b.remaining.Load())
}

func budgetFrom(ctx context.Context) *retryBudget {
	if b, ok := ctx.Value(budgetContextKey{}).(*retryBudget); ok {
		return b
	}
	b := &retryBudget{}
	b.remaining.Store(1)
	return b
}

func (b *retryBudget) take() bool {
	for {
		v := b.remaining.Load()
		if v <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(v, v-1) {
			return true
		}
	}
}
