package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/testutil"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeLocal int

func (f fakeLocal) Len() int { return int(f) }

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) healthResponse {
	t.Helper()
	var resp healthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return resp
}

func TestLiveness(t *testing.T) {
	h := HealthHandler{
		Service:  "waitlist-api",
		Version:  "1.2.0",
		Instance: "abc",
		Clock:    testutil.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
	}

	w := httptest.NewRecorder()
	h.Liveness(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp livenessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	want := livenessResponse{OK: true, Service: "waitlist-api", Version: "1.2.0", Instance: "abc", Timestamp: "2026-01-02T03:04:05Z"}
	if resp != want {
		t.Fatalf("expected %+v, got %+v", want, resp)
	}
}

func TestHealth(t *testing.T) {
	cases := []struct {
		name       string
		shared     *fakePinger
		wantStatus int
		wantRedis  string
	}{
		{name: "redis disabled", shared: nil, wantStatus: http.StatusOK, wantRedis: "disabled"},
		{name: "redis connected", shared: &fakePinger{}, wantStatus: http.StatusOK, wantRedis: "connected"},
		{name: "redis down", shared: &fakePinger{err: errors.New("dial tcp: refused")}, wantStatus: http.StatusServiceUnavailable, wantRedis: "unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := HealthHandler{Local: fakeLocal(7)}
			if tc.shared != nil {
				h.Shared = *tc.shared
			}

			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, w.Code)
			}
			resp := decodeHealth(t, w)
			if resp.Redis != tc.wantRedis || resp.LocalKeys != 7 {
				t.Fatalf("unexpected response %+v", resp)
			}
		})
	}
}

func TestAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	Accepted(w, httptest.NewRequest(http.MethodPost, "/api/waitlist", nil))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
}

func TestAccepted_BodyOverLimit(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/waitlist", strings.NewReader(strings.Repeat("a", 64)))
	w := httptest.NewRecorder()
	r.Body = http.MaxBytesReader(w, r.Body, 16)

	Accepted(w, r)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}
