// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/domain"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/ports"
)

const rateLimitExceededMessage = "Too many requests, please try again later"

type Options struct {
	Scope    domain.Scope
	Resolver IdentityResolver
	Logger   *slog.Logger
}

type rateLimitedResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

func NewRateLimiterMiddleware(limiter ports.RateLimiter, opts Options) func(http.Handler) http.Handler {
	if opts.Scope == "" {
		opts.Scope = domain.ScopeGlobal
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limiter.Exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			identity := opts.Resolver.Resolve(r)

			decision, err := limiter.Evaluate(r.Context(), domain.RateLimitRequest{
				Scope:    opts.Scope,
				Identity: identity,
				Path:     r.URL.Path,
			})
			if decision.Source != domain.SourceExempt {
				for name, value := range decision.Headers() {
					w.Header().Set(name, value)
				}
			}

			if err != nil && !domain.IsRateLimitedError(err) {
				// Evaluate não deveria devolver outros erros; segue sem bloquear.
				opts.Logger.ErrorContext(r.Context(), "rate limiter failed", "scope", opts.Scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				writeTooManyRequests(w, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter, decision domain.Decision) {
	retryAfter := decision.RetryAfterSeconds()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(rateLimitedResponse{
		Error:      "rate_limited",
		Message:    rateLimitExceededMessage,
		RetryAfter: retryAfter,
	})
}
