package identity

import (
	"sync"

	"github.com/webaffe/webaffe/backend/console/pkg/metrics"
	"golang.org/x/time/rate"
)

// attemptLimiter is a per-email token bucket for password sign-in.
type attemptLimiter struct {
	rps   float64
	burst int
	store sync.Map // map[string]*rate.Limiter
}

func newAttemptLimiter(rps float64, burst int) *attemptLimiter {
	return &attemptLimiter{rps: rps, burst: burst}
}

func (l *attemptLimiter) allow(email string) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	v, _ := l.store.LoadOrStore(normalizeEmail(email), rate.NewLimiter(rate.Limit(l.rps), l.burst))
	if !v.(*rate.Limiter).Allow() {
		metrics.RateLimitRejected.WithLabelValues("signin").Inc()
		return false
	}
	metrics.RateLimitAllowed.WithLabelValues("signin").Inc()
	return true
}
