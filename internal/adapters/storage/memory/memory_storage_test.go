package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/domain"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/ports"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/testutil"
)

func TestStorage_AllowsUpToLimitThenDenies(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(1_700_000_000, 0))
	storage := New(10, clock)
	ctx := context.Background()

	wantRemaining := []int{2, 1, 0}
	for i, want := range wantRemaining {
		decision, err := storage.Check(ctx, "global:a", 3, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error at attempt %d: %v", i+1, err)
		}
		if !decision.Allowed {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
		if decision.Remaining != want {
			t.Fatalf("request %d: expected remaining=%d, got %d", i+1, want, decision.Remaining)
		}
		if decision.Source != domain.SourceLocal {
			t.Fatalf("expected local source, got %q", decision.Source)
		}
	}

	decision, _ := storage.Check(ctx, "global:a", 3, time.Minute)
	if decision.Allowed {
		t.Fatalf("expected 4th request to be denied")
	}
	if decision.Remaining != 0 {
		t.Fatalf("expected remaining=0 after limit, got %d", decision.Remaining)
	}
}

func TestStorage_WindowDoesNotSlide(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := testutil.NewFakeClock(start)
	storage := New(10, clock)
	ctx := context.Background()

	first, _ := storage.Check(ctx, "k", 5, time.Minute)
	clock.Advance(30 * time.Second)
	second, _ := storage.Check(ctx, "k", 5, time.Minute)

	if !first.ResetAt.Equal(start.Add(time.Minute)) {
		t.Fatalf("unexpected first resetAt %v", first.ResetAt)
	}
	if !second.ResetAt.Equal(first.ResetAt) {
		t.Fatalf("expected resetAt to stay %v, got %v", first.ResetAt, second.ResetAt)
	}
}

func TestStorage_ResetsAfterWindow(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(1_700_000_000, 0))
	storage := New(10, clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = storage.Check(ctx, "k", 3, time.Minute)
	}

	// expiresAt <= now already counts as expired.
	clock.Advance(time.Minute)

	decision, _ := storage.Check(ctx, "k", 3, time.Minute)
	if !decision.Allowed || decision.Remaining != 2 {
		t.Fatalf("expected fresh window with remaining=2, got %+v", decision)
	}
	snap := storage.Snapshot()
	if len(snap) != 1 || snap[0].Count != 1 {
		t.Fatalf("expected count reset to 1, got %+v", snap)
	}
}

func TestStorage_EvictsSoonestExpiryFirst(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(1_700_000_000, 0))
	storage := New(2, clock)
	ctx := context.Background()

	_, _ = storage.Check(ctx, "A", 10, 10*time.Second)
	_, _ = storage.Check(ctx, "B", 10, 5*time.Second)
	_, _ = storage.Check(ctx, "C", 10, time.Minute)

	if got := storage.Len(); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
	keys := map[string]bool{}
	for _, e := range storage.Snapshot() {
		keys[e.Key] = true
	}
	if !keys["A"] || !keys["C"] || keys["B"] {
		t.Fatalf("expected A and C to remain, got %v", keys)
	}
}

func TestStorage_NeverExceedsCapacity(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(1_700_000_000, 0))
	storage := New(50, clock)
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		clock.Advance(time.Millisecond)
		_, _ = storage.Check(ctx, fmt.Sprintf("ip-%d", i), 10, time.Minute)
		if got := storage.Len(); got > 50 {
			t.Fatalf("store grew to %d entries after %d inserts", got, i+1)
		}
	}
}

func TestStorage_PrunesExpiredBeforeEvicting(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(1_700_000_000, 0))
	storage := New(2, clock)
	ctx := context.Background()

	_, _ = storage.Check(ctx, "short", 10, time.Second)
	_, _ = storage.Check(ctx, "long", 10, time.Hour)
	clock.Advance(2 * time.Second)
	_, _ = storage.Check(ctx, "new", 10, time.Minute)

	keys := map[string]bool{}
	for _, e := range storage.Snapshot() {
		keys[e.Key] = true
	}
	if !keys["long"] || !keys["new"] {
		t.Fatalf("expected long and new to remain, got %v", keys)
	}
}

func TestStorage_LimitChangeMidWindow(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(1_700_000_000, 0))
	storage := New(10, clock)
	ctx := context.Background()

	_, _ = storage.Check(ctx, "k", 5, time.Minute)
	_, _ = storage.Check(ctx, "k", 5, time.Minute)
	decision, _ := storage.Check(ctx, "k", 2, time.Minute)

	if decision.Allowed {
		t.Fatalf("expected count 3 to exceed new limit 2")
	}
	if decision.Limit != 2 || decision.Remaining != 0 {
		t.Fatalf("expected reporting against new limit, got %+v", decision)
	}
	if snap := storage.Snapshot(); snap[0].Limit != 5 {
		t.Fatalf("expected stored limit to stay 5, got %d", snap[0].Limit)
	}
}

func TestStorage_ConcurrentSameKey(t *testing.T) {
	storage := New(10, nil)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	wg.Add(100)
	for i := 0; i < 100; i++ {
		go func() {
			defer wg.Done()
			decision, _ := storage.Check(ctx, "k", 40, time.Minute)
			if decision.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 40 {
		t.Fatalf("expected exactly 40 allowed requests, got %d", allowed)
	}
}

func BenchmarkStorage_Check(b *testing.B) {
	storage := New(DefaultCapacity, nil)
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		_, _ = storage.Check(ctx, fmt.Sprintf("ip-%d", i%2000), 100, time.Minute)
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(0, nil)
	if s.capacity != DefaultCapacity {
		t.Fatalf("expected default capacity %d, got %d", DefaultCapacity, s.capacity)
	}
	if _, ok := s.clock.(ports.SystemClock); !ok {
		t.Fatalf("expected ports.SystemClock, got %T", s.clock)
	}
}
