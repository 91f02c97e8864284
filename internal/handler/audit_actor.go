package handler

import (
	"net"
	"net/http"
	"strings"

	"go-identity-gate/internal/middleware"
)

// actorID names whoever is behind the request for event and log attribution.
func actorID(r *http.Request) string {
	if identity, ok := middleware.IdentityFromContext(r.Context()); ok {
		return identity.ID
	}
	if session, ok := middleware.SessionFromContext(r.Context()); ok && session.Authenticated() {
		return session.Data.UserID
	}
	return ""
}

func clientIP(r *http.Request) string {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	xri := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}

	return strings.TrimSpace(r.RemoteAddr)
}
