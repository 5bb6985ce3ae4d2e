package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	xerrors "intel-registry/internal/errors"
)

// CodeRateLimited 表示调用方超出了变更请求的速率限制。
const CodeRateLimited xerrors.Code = "RATE_LIMITED"

func init() {
	xerrors.Register(CodeRateLimited, xerrors.Attributes{
		Message:    "too many requests",
		Severity:   xerrors.SeverityInfo,
		Retryable:  true,
		HTTPStatus: http.StatusTooManyRequests,
	})
}

// callerLimiter 为每个调用方维护独立的令牌桶。
type callerLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newCallerLimiter(perSecond float64, burst int) *callerLimiter {
	if burst <= 0 {
		burst = 5
	}
	return &callerLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *callerLimiter) allow(caller string) bool {
	l.mu.RLock()
	limiter, ok := l.limiters[caller]
	l.mu.RUnlock()
	if !ok {
		l.mu.Lock()
		if limiter, ok = l.limiters[caller]; !ok {
			limiter = rate.NewLimiter(l.limit, l.burst)
			l.limiters[caller] = limiter
		}
		l.mu.Unlock()
	}
	return limiter.Allow()
}
