package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/domain"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/ports"
)

const (
	DefaultFailureLogInterval = 10 * time.Second
	DefaultFailureLogBurst    = 3
)

// FailureObserver registra falhas do store compartilhado e requisições bloqueadas.
// Durante uma queda do Redis cada requisição gera uma falha; o limiter de log
// mantém o volume limitado e conta o que foi descartado.
type FailureObserver struct {
	logger     *slog.Logger
	clock      ports.Clock
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

var _ ports.Observer = (*FailureObserver)(nil)

type ObserverOptions struct {
	// Interval é o intervalo médio entre logs de falha após o burst.
	Interval time.Duration
	Burst    int
	Clock    ports.Clock
}

func NewFailureObserver(logger *slog.Logger, opts ObserverOptions) *FailureObserver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultFailureLogInterval
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultFailureLogBurst
	}
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}

	return &FailureObserver{
		logger:  logger,
		clock:   opts.Clock,
		limiter: rate.NewLimiter(rate.Every(opts.Interval), opts.Burst),
	}
}

func (o *FailureObserver) SharedStoreFailed(ctx context.Context, req domain.RateLimitRequest, err error) {
	if !o.limiter.AllowN(o.clock.Now(), 1) {
		o.suppressed.Add(1)
		return
	}

	attrs := []any{"scope", req.Scope, "error", err}
	if n := o.suppressed.Swap(0); n > 0 {
		attrs = append(attrs, "suppressed", n)
	}
	if domain.IsUnavailableError(err) {
		o.logger.WarnContext(ctx, "shared rate limit store unavailable, using local store", attrs...)
		return
	}
	o.logger.ErrorContext(ctx, "shared rate limit store failed, using local store", attrs...)
}

func (o *FailureObserver) RequestLimited(ctx context.Context, req domain.RateLimitRequest, decision domain.Decision) {
	o.logger.WarnContext(ctx, "rate limit exceeded",
		"scope", req.Scope,
		"identity", req.Identity,
		"path", req.Path,
		"limit", decision.Limit,
		"source", decision.Source,
		"retry_after", decision.RetryAfterSeconds(),
	)
}

// Suppressed devolve quantos logs de falha foram descartados desde o último emitido.
func (o *FailureObserver) Suppressed() int64 {
	return o.suppressed.Load()
}
