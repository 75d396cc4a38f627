package services

import (
	"context"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/domain"
)

// NoopObserver descarta todos os eventos.
type NoopObserver struct{}

func (NoopObserver) SharedStoreFailed(context.Context, domain.RateLimitRequest, error) {}

func (NoopObserver) RequestLimited(context.Context, domain.RateLimitRequest, domain.Decision) {}
