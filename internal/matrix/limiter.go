package matrix

import (
	"context"
	"sync"

	"github.com/striezel/botvinnik-sub001/pkg/ratelimit"
)

// One limiter per homeserver, shared by every client pointed at it, so
// reconnects don't reset the pacing state.
var limiterRegistry sync.Map

const (
	defaultSendRate  = 2.0
	defaultSendBurst = 4
)

func limiterFor(baseURL string) *ratelimit.Limiter {
	key := cleanBaseURL(baseURL)
	if existing, ok := limiterRegistry.Load(key); ok {
		return existing.(*ratelimit.Limiter)
	}

	limiter := ratelimit.NewLimiter(defaultSendRate, defaultSendBurst)
	actual, _ := limiterRegistry.LoadOrStore(key, limiter)
	return actual.(*ratelimit.Limiter)
}

func waitForLimiter(limiter *ratelimit.Limiter) {
	if limiter == nil {
		return
	}
	_ = limiter.Wait(context.Background())
}
