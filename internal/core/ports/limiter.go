// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/domain"
)

type RateLimiter interface {
	Exempt(path string) bool
	Evaluate(ctx context.Context, req domain.RateLimitRequest) (domain.Decision, error)
}

type Clock interface {
	Now() time.Time
}

// SystemClock é o relógio real usado fora dos testes.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Observer recebe eventos do limiter sem interferir na decisão.
type Observer interface {
	SharedStoreFailed(ctx context.Context, req domain.RateLimitRequest, err error)
	RequestLimited(ctx context.Context, req domain.RateLimitRequest, decision domain.Decision)
}
