package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/domain"
)

const DefaultPlatformHeader = "CF-Connecting-IP"

// IdentityResolver deriva a identidade do cliente. Cabeçalhos de proxy só são
// considerados com TrustForwarded habilitado, pois podem ser forjados.
type IdentityResolver struct {
	TrustForwarded bool
	// PlatformHeader é o cabeçalho do proxy confiável (CDN). Vazio usa DefaultPlatformHeader.
	PlatformHeader string
}

func (ir IdentityResolver) Resolve(r *http.Request) string {
	if ir.TrustForwarded {
		platform := ir.PlatformHeader
		if platform == "" {
			platform = DefaultPlatformHeader
		}
		candidates := []string{
			firstForwarded(r.Header.Get(platform)),
			firstForwarded(r.Header.Get("X-Forwarded-For")),
			strings.TrimSpace(r.Header.Get("X-Real-IP")),
		}
		for _, candidate := range candidates {
			if candidate != "" && !strings.EqualFold(candidate, "unknown") {
				return candidate
			}
		}
	}

	if remote := remoteHost(r.RemoteAddr); remote != "" {
		return remote
	}
	return domain.SharedIdentity
}

// firstForwarded devolve a primeira entrada da lista, a mais próxima do cliente.
func firstForwarded(value string) string {
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}

func remoteHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.Trim(remoteAddr, "[]")
	}
	return host
}
