package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrStoreUnavailable   = errors.New("counter store unavailable")
	ErrStoreNotConfigured = errors.New("counter store not configured")
)

// StoreError descreve uma falha de um store de contadores.
type StoreError struct {
	Store string
	Op    string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Store, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// LimitExceededError sinaliza que a requisição deve ser rejeitada com 429.
type LimitExceededError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s: %s (retry after %s)", ErrRateLimited, e.Key, e.RetryAfter)
}

func (e *LimitExceededError) Is(target error) bool {
	return target == ErrRateLimited
}

func IsRateLimitedError(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func IsUnavailableError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrStoreNotConfigured)
}
