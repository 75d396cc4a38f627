package services

import (
	"context"
	"fmt"
	"time"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/domain"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/ports"
)

const DefaultSharedTimeout = 300 * time.Millisecond

// Config agrega os limites e dependências utilizados pelo serviço de rate limiting.
type Config struct {
	DefaultRule domain.RateLimitRule
	Rules       map[domain.Scope]domain.RateLimitRule
	// Exempt indica caminhos que nunca passam pelo limiter. Nil usa DefaultExempt.
	Exempt        func(path string) bool
	SharedTimeout time.Duration
	Clock         ports.Clock
	Observer      ports.Observer
}

// RateLimiterService decide se uma requisição pode prosseguir. Tenta primeiro o
// store compartilhado e, em qualquer falha, usa o store local.
type RateLimiterService struct {
	shared ports.CounterStore
	local  ports.CounterStore
	config Config
}

var _ ports.RateLimiter = (*RateLimiterService)(nil)

// NewRateLimiterService cria uma nova instância do serviço. shared pode ser nil.
func NewRateLimiterService(local, shared ports.CounterStore, cfg Config) (*RateLimiterService, error) {
	if local == nil {
		return nil, fmt.Errorf("local storage is required")
	}
	if !cfg.DefaultRule.Valid() {
		return nil, fmt.Errorf("default rule must have positive values")
	}
	for scope, rule := range cfg.Rules {
		if !rule.Valid() {
			return nil, fmt.Errorf("rule for scope %q must have positive values", scope)
		}
	}
	if cfg.Rules == nil {
		cfg.Rules = make(map[domain.Scope]domain.RateLimitRule)
	}
	if cfg.Exempt == nil {
		cfg.Exempt = DefaultExempt
	}
	if cfg.SharedTimeout <= 0 {
		cfg.SharedTimeout = DefaultSharedTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver{}
	}

	return &RateLimiterService{shared: shared, local: local, config: cfg}, nil
}

// DefaultExempt libera a raiz e o health check.
func DefaultExempt(path string) bool {
	return path == "/" || path == "/health"
}

func (s *RateLimiterService) Exempt(path string) bool {
	return s.config.Exempt(path)
}

// Rule devolve a regra configurada para o escopo, ou a regra padrão.
func (s *RateLimiterService) Rule(scope domain.Scope) domain.RateLimitRule {
	if rule, ok := s.config.Rules[scope]; ok {
		return rule
	}
	return s.config.DefaultRule
}

// Evaluate avalia a requisição. O único erro possível é *domain.LimitExceededError;
// falhas de store nunca chegam ao chamador.
func (s *RateLimiterService) Evaluate(ctx context.Context, req domain.RateLimitRequest) (domain.Decision, error) {
	if s.Exempt(req.Path) {
		return domain.Decision{Allowed: true, Source: domain.SourceExempt}, nil
	}

	rule := s.Rule(req.Scope)
	key := req.Key()

	decision, err := s.checkShared(ctx, key, rule)
	if err != nil {
		if s.shared != nil {
			s.config.Observer.SharedStoreFailed(ctx, req, err)
		}
		decision = s.checkLocal(ctx, key, rule)
	}

	decision.Limit = rule.Requests
	decision.Identifier = key

	if decision.Allowed {
		return decision, nil
	}

	decision.RetryAfter = decision.ResetAt.Sub(s.config.Clock.Now())
	if decision.RetryAfter < 0 {
		decision.RetryAfter = 0
	}
	s.config.Observer.RequestLimited(ctx, req, decision)

	return decision, &domain.LimitExceededError{Key: key, RetryAfter: decision.RetryAfter}
}

func (s *RateLimiterService) checkShared(ctx context.Context, key string, rule domain.RateLimitRule) (decision domain.Decision, err error) {
	if s.shared == nil {
		return domain.Decision{}, domain.ErrStoreNotConfigured
	}

	defer func() {
		if r := recover(); r != nil {
			decision = domain.Decision{}
			err = &domain.StoreError{Store: "shared", Op: "check", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.config.SharedTimeout)
	defer cancel()

	decision, err = s.shared.Check(ctx, key, rule.Requests, rule.Window)
	if err != nil {
		return domain.Decision{}, err
	}
	decision.Source = domain.SourceShared
	return decision, nil
}

// checkLocal nunca bloqueia a requisição: um erro do store local libera o acesso.
func (s *RateLimiterService) checkLocal(ctx context.Context, key string, rule domain.RateLimitRule) domain.Decision {
	decision, err := s.local.Check(ctx, key, rule.Requests, rule.Window)
	if err != nil {
		decision = domain.NewDecision(0, rule.Requests, s.config.Clock.Now().Add(rule.Window))
	}
	decision.Source = domain.SourceLocal
	return decision
}
