// Package redis disponibiliza a implementação do storage baseada em Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/domain"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/ports"
)

const (
	storeName = "redis"

	DefaultPrefix         = "rl:"
	DefaultConnectTimeout = 5 * time.Second

	maxRetryBackoff  = 3 * time.Second
	retryBackoffStep = 200 * time.Millisecond
)

var errBackingOff = errors.New("waiting before next connection attempt")

// Storage conecta no Redis sob demanda. A conexão é criada uma única vez e
// reutilizada; tentativas concorrentes de conexão são agrupadas.
type Storage struct {
	options        *redis.Options
	prefix         string
	connectTimeout time.Duration
	clock          ports.Clock
	newClient      func(*redis.Options) *redis.Client

	group singleflight.Group

	mu          sync.RWMutex
	client      *redis.Client
	failures    int
	nextAttempt time.Time
}

var (
	_ ports.CounterStore  = (*Storage)(nil)
	_ ports.HealthChecker = (*Storage)(nil)
)

type Config struct {
	URL            string
	Prefix         string
	ConnectTimeout time.Duration
	// CommandTimeout limita leitura e escrita de cada comando.
	CommandTimeout time.Duration
	ClientName     string
	Clock          ports.Clock
}

// New valida a configuração sem abrir conexão.
func New(cfg Config) (*Storage, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}

	opts.DialTimeout = cfg.ConnectTimeout
	if cfg.CommandTimeout > 0 {
		opts.ReadTimeout = cfg.CommandTimeout
		opts.WriteTimeout = cfg.CommandTimeout
	}
	opts.MaxRetries = 1
	if cfg.ClientName != "" {
		opts.ClientName = cfg.ClientName
	}

	return &Storage{
		options:        opts,
		prefix:         cfg.Prefix,
		connectTimeout: cfg.ConnectTimeout,
		clock:          cfg.Clock,
		newClient:      redis.NewClient,
	}, nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// Check executa INCR e PTTL na mesma transação e define a expiração no primeiro
// incremento da janela.
func (s *Storage) Check(ctx context.Context, key string, limit int, window time.Duration) (domain.Decision, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return domain.Decision{}, err
	}

	redisKey := s.prefix + key

	pipe := client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Decision{}, &domain.StoreError{Store: storeName, Op: "incr", Err: err}
	}

	current := incr.Val()
	remainingTTL := ttl.Val()

	// PTTL devolve -1 quando a chave não tem expiração e -2 quando não existe.
	if current == 1 || remainingTTL < 0 {
		if err := client.Expire(ctx, redisKey, window).Err(); err != nil {
			return domain.Decision{}, &domain.StoreError{Store: storeName, Op: "expire", Err: err}
		}
	}

	resetIn := window
	if remainingTTL > 0 {
		resetIn = remainingTTL
	}

	decision := domain.NewDecision(current, limit, s.clock.Now().Add(resetIn))
	decision.Source = domain.SourceShared
	return decision, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return &domain.StoreError{Store: storeName, Op: "ping", Err: err}
	}
	return nil
}

// Connected informa se a conexão já foi estabelecida.
func (s *Storage) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

func (s *Storage) connect(ctx context.Context) (*redis.Client, error) {
	s.mu.RLock()
	client, nextAttempt := s.client, s.nextAttempt
	s.mu.RUnlock()

	if client != nil {
		return client, nil
	}
	if s.clock.Now().Before(nextAttempt) {
		return nil, &domain.StoreError{Store: storeName, Op: "connect", Err: errBackingOff}
	}

	ch := s.group.DoChan("connect", s.dial)

	timer := time.NewTimer(s.connectTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*redis.Client), nil
	case <-ctx.Done():
		return nil, &domain.StoreError{Store: storeName, Op: "connect", Err: ctx.Err()}
	case <-timer.C:
		return nil, &domain.StoreError{Store: storeName, Op: "connect", Err: context.DeadlineExceeded}
	}
}

// dial roda fora do contexto da requisição para que o cancelamento de um
// chamador não derrube a conexão compartilhada com os demais.
func (s *Storage) dial() (any, error) {
	s.mu.RLock()
	existing := s.client
	s.mu.RUnlock()
	if existing != nil {
		return existing, nil
	}

	client := s.newClient(s.options)

	ctx, cancel := context.WithTimeout(context.Background(), s.connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		s.mu.Lock()
		s.failures++
		s.nextAttempt = s.clock.Now().Add(backoff(s.failures))
		s.mu.Unlock()

		return nil, &domain.StoreError{Store: storeName, Op: "connect", Err: err}
	}

	s.mu.Lock()
	s.client = client
	s.failures = 0
	s.nextAttempt = time.Time{}
	s.mu.Unlock()

	return client, nil
}

func backoff(failures int) time.Duration {
	d := time.Duration(failures) * retryBackoffStep
	if d > maxRetryBackoff {
		return maxRetryBackoff
	}
	return d
}
