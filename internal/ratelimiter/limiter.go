package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/notifyhub/notification-queue/internal/domain"
)

// KindLimiters holds one token bucket per notification kind, created on
// first use. Burst equals the rate so no capacity is saved up beyond the
// configured per-second maximum.
type KindLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[domain.Kind]*rate.Limiter
}

// New creates a KindLimiters with ratePerSec tokens per second per kind.
func New(ratePerSec int) *KindLimiters {
	return &KindLimiters{
		limit:    rate.Limit(ratePerSec),
		burst:    ratePerSec,
		limiters: make(map[domain.Kind]*rate.Limiter),
	}
}

// Wait blocks until the kind's limiter grants a token. It returns an error
// if ctx is cancelled, or at once if ctx's deadline would pass first.
func (kl *KindLimiters) Wait(ctx context.Context, kind domain.Kind) error {
	return kl.limiter(kind).Wait(ctx)
}

func (kl *KindLimiters) limiter(kind domain.Kind) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	l, ok := kl.limiters[kind]
	if !ok {
		l = rate.NewLimiter(kl.limit, kl.burst)
		kl.limiters[kind] = l
	}
	return l
}
