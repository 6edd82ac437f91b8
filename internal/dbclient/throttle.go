package dbclient

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// throttle bounds the number of simultaneous queries against the source and,
// optionally, the rate at which new queries start.
type throttle struct {
	slots   *semaphore.Weighted
	limiter *rate.Limiter // nil: unlimited
}

func newThrottle(maxConcurrent int, qps float64) *throttle {
	t := &throttle{slots: semaphore.NewWeighted(int64(maxConcurrent))}
	if qps > 0 {
		burst := int(qps)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(qps), burst)
	}
	return t
}

// acquire blocks until a query may start. release must be called once the
// query's result set is closed.
func (t *throttle) acquire(ctx context.Context) (release func(), err error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := t.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	released := false
	return func() {
		if !released {
			released = true
			t.slots.Release(1)
		}
	}, nil
}
