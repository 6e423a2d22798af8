package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// claimLimiter throttles claim calls per worker so a tight retry loop
// in one worker cannot starve the claim path for the rest.
type claimLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newClaimLimiter(rps, burst int) *claimLimiter {
	if rps <= 0 {
		return nil
	}
	return &claimLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (cl *claimLimiter) allow(workerID string) bool {
	if cl == nil {
		return true
	}

	cl.mu.Lock()
	limiter, ok := cl.limiters[workerID]
	if !ok {
		limiter = rate.NewLimiter(cl.rps, cl.burst)
		cl.limiters[workerID] = limiter
	}
	cl.mu.Unlock()

	return limiter.Allow()
}
