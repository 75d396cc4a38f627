// Package logging configura o slog da aplicação e o observador de eventos do limiter.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const EnvProduction = "production"

// New cria o logger raiz. Produção usa JSON; os demais ambientes usam texto.
func New(level, env string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, env)
}

func NewWithWriter(w io.Writer, level, env string) *slog.Logger {
	production := strings.EqualFold(strings.TrimSpace(env), EnvProduction)
	opts := &slog.HandlerOptions{Level: ParseLevel(level, production)}

	var handler slog.Handler
	if production {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converte LOG_LEVEL. Valores vazios ou desconhecidos usam debug em
// desenvolvimento e info em produção.
func ParseLevel(level string, production bool) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if production {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// Service devolve um logger filho identificado pelo serviço (redis, api, security).
func Service(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("service", name)
}
