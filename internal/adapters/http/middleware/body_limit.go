package middleware

import (
	"encoding/json"
	"net/http"
)

const DefaultBodyLimit = 16 << 10

type payloadTooLargeResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// BodyLimit recusa corpos declarados acima de max e limita a leitura dos demais.
// Handlers que leem o corpo recebem *http.MaxBytesError ao ultrapassar o limite.
func BodyLimit(max int64) func(http.Handler) http.Handler {
	if max <= 0 {
		max = DefaultBodyLimit
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > max {
				writePayloadTooLarge(w)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}

func writePayloadTooLarge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusRequestEntityTooLarge)
	_ = json.NewEncoder(w).Encode(payloadTooLargeResponse{
		Error:   "payload_too_large",
		Message: "Request body is too large",
	})
}
