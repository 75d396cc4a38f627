// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/domain"
)

// CounterStore incrementa o contador de uma chave dentro de uma janela fixa.
// Implementações remotas devolvem erros compatíveis com domain.ErrStoreUnavailable.
type CounterStore interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (domain.Decision, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}
