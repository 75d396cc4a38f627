// Package domain concentra entidades e estruturas centrais do rate limiter.
package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Scope identifica a política aplicada a um grupo de rotas.
type Scope string

const (
	ScopeGlobal     Scope = "global"
	ScopeWaitlist   Scope = "waitlist"
	ScopeAdminLogin Scope = "admin-login"
)

// SharedIdentity agrupa todos os clientes cujo endereço não pôde ser determinado.
const SharedIdentity = "shared"

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

type RateLimitRule struct {
	Requests int
	Window   time.Duration
}

func (r RateLimitRule) Valid() bool {
	return r.Requests > 0 && r.Window > 0
}

type RateLimitRequest struct {
	Scope    Scope
	Identity string
	Path     string
}

// Key monta a chave "<scope>:<identity>" usada pelos stores.
func (r RateLimitRequest) Key() string {
	identity := strings.ToLower(strings.TrimSpace(r.Identity))
	if identity == "" {
		identity = SharedIdentity
	}
	scope := strings.TrimSpace(string(r.Scope))
	if scope == "" {
		scope = string(ScopeGlobal)
	}
	return scope + ":" + identity
}

// Source indica qual store produziu a decisão.
type Source string

const (
	SourceShared Source = "shared"
	SourceLocal  Source = "local"
	SourceExempt Source = "exempt"
)

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Source     Source
	Identifier string
}

// NewDecision aplica as invariantes remaining = max(0, limit-count) e allowed = count <= limit.
func NewDecision(count int64, limit int, resetAt time.Time) Decision {
	if count < 0 {
		count = 0
	}
	if limit < 0 {
		limit = 0
	}
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}
}

// RetryAfterSeconds arredonda RetryAfter para cima, em segundos inteiros.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Headers devolve os cabeçalhos X-RateLimit-*; o reset é expresso em milissegundos unix.
func (d Decision) Headers() map[string]string {
	return map[string]string{
		HeaderLimit:     strconv.Itoa(d.Limit),
		HeaderRemaining: strconv.Itoa(d.Remaining),
		HeaderReset:     strconv.FormatInt(d.ResetAt.UnixMilli(), 10),
	}
}
