package httpx

import (
	"context"
)

// Limiter bounds the number of simultaneously in-flight outbound requests
// across all adapters. Callers block on Acquire until a slot frees up.
type Limiter struct {
	slots chan struct{}
}

func NewLimiter(max int) *Limiter {
	if max <= 0 {
		max = 1
	}
	return &Limiter{
		slots: make(chan struct{}, max),
	}
}

func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) Release() {
	select {
	case <-l.slots:
	default:
		// Release without Acquire is a programming error; don't block on it.
	}
}

// InFlight reports the number of currently held slots.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}
