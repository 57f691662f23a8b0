// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
)

// NewClientIdentityMiddleware grava o IP do cliente no contexto da requisição.
// Com trustProxyHeaders, X-Forwarded-For e X-Real-IP têm precedência sobre RemoteAddr.
func NewClientIdentityMiddleware(trustProxyHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractIP(r, trustProxyHeaders)
			if ip != "" {
				r = r.WithContext(domain.WithClientIdentity(r.Context(), ip))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
		if xForwardedFor != "" {
			parts := strings.Split(xForwardedFor, ",")
			if first := strings.TrimSpace(parts[0]); first != "" {
				return first
			}
		}

		xRealIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
		if xRealIP != "" {
			return xRealIP
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}

	return host
}
