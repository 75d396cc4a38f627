// Package memory disponibiliza o storage local de janela fixa, com limite de chaves.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/domain"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/ports"
)

const DefaultCapacity = 1000

type entry struct {
	count     int64
	expiresAt time.Time
	limit     int
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.After(now)
}

// Storage guarda contadores por chave em memória. Quando a capacidade é atingida,
// as entradas mais próximas de expirar são descartadas primeiro; a chave descartada
// recomeça uma janela nova na próxima requisição.
type Storage struct {
	mu       sync.Mutex
	entries  map[string]*entry
	capacity int
	clock    ports.Clock

	// nextExpiry é um limite inferior para o expiresAt de todas as entradas.
	nextExpiry time.Time
}

var _ ports.CounterStore = (*Storage)(nil)

func New(capacity int, clock ports.Clock) *Storage {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Storage{
		entries:  make(map[string]*entry),
		capacity: capacity,
		clock:    clock,
	}
}

func (s *Storage) Check(_ context.Context, key string, limit int, window time.Duration) (domain.Decision, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune(now)

	ent, ok := s.entries[key]
	if !ok {
		s.makeRoom()
		ent = &entry{count: 1, expiresAt: now.Add(window), limit: limit}
		s.entries[key] = ent
		if s.nextExpiry.IsZero() || ent.expiresAt.Before(s.nextExpiry) {
			s.nextExpiry = ent.expiresAt
		}
	} else {
		ent.count++
	}

	decision := domain.NewDecision(ent.count, limit, ent.expiresAt)
	decision.Source = domain.SourceLocal
	return decision, nil
}

// prune remove as entradas expiradas. Enquanto now for anterior a nextExpiry
// nenhuma entrada pode ter expirado e a varredura é pulada.
func (s *Storage) prune(now time.Time) {
	if len(s.entries) == 0 || now.Before(s.nextExpiry) {
		return
	}

	var earliest time.Time
	for k, ent := range s.entries {
		if ent.expired(now) {
			delete(s.entries, k)
			continue
		}
		if earliest.IsZero() || ent.expiresAt.Before(earliest) {
			earliest = ent.expiresAt
		}
	}
	s.nextExpiry = earliest
}

// makeRoom libera espaço para uma nova chave descartando as entradas com o
// expiresAt mais próximo.
func (s *Storage) makeRoom() {
	excess := len(s.entries) - s.capacity + 1
	if excess <= 0 {
		return
	}

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return s.entries[a].expiresAt.Compare(s.entries[b].expiresAt)
	})
	for _, k := range keys[:excess] {
		delete(s.entries, k)
	}
}

func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type EntrySnapshot struct {
	Key       string
	Count     int64
	Limit     int
	ExpiresAt time.Time
}

// Snapshot devolve uma cópia das entradas ainda válidas, ordenadas por expiração.
func (s *Storage) Snapshot() []EntrySnapshot {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EntrySnapshot, 0, len(s.entries))
	for k, ent := range s.entries {
		if ent.expired(now) {
			continue
		}
		out = append(out, EntrySnapshot{Key: k, Count: ent.count, Limit: ent.limit, ExpiresAt: ent.expiresAt})
	}
	slices.SortFunc(out, func(a, b EntrySnapshot) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	return out
}
