// Package handlers agrupa os handlers HTTP da API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/ports"
)

const healthCheckTimeout = 2 * time.Second

// TrackedKeys é implementado pelo store local para relatório de saúde.
type TrackedKeys interface {
	Len() int
}

type HealthHandler struct {
	Service  string
	Version  string
	Instance string
	// Shared é nil quando o store compartilhado não está configurado.
	Shared ports.HealthChecker
	Local  TrackedKeys
	Clock  ports.Clock
}

type livenessResponse struct {
	OK        bool   `json:"ok"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Instance  string `json:"instance"`
	Timestamp string `json:"timestamp"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Redis     string `json:"redis"`
	Error     string `json:"error,omitempty"`
	LocalKeys int    `json:"localKeys"`
	Timestamp string `json:"timestamp"`
}

// Liveness responde sempre 200; não toca em dependências externas.
func (h HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, livenessResponse{
		OK:        true,
		Service:   h.Service,
		Version:   h.Version,
		Instance:  h.Instance,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Health verifica o store compartilhado. Sem Redis configurado o serviço segue saudável.
func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Redis:     "disabled",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
	if h.Local != nil {
		resp.LocalKeys = h.Local.Len()
	}

	status := http.StatusOK
	if h.Shared != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := h.Shared.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			resp.Status = "degraded"
			resp.Redis = "unavailable"
			resp.Error = err.Error()
		} else {
			resp.Redis = "connected"
		}
	}

	writeJSON(w, status, resp)
}

func (h HealthHandler) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock.Now()
}

// Accepted responde 202 nas rotas cujo processamento de negócio fica fora deste serviço.
// O corpo é consumido para que o limite de tamanho seja aplicado.
func Accepted(w http.ResponseWriter, r *http.Request) {
	if _, err := io.Copy(io.Discard, r.Body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload_too_large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
