package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// deviceKey extracts a device API key from "Authorization: Bearer <key>" or
// the X-API-Key header.
func deviceKey(r *http.Request) string {
	if k := bearerToken(r); k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// provisioningAuth admits requests carrying one of tokens as a bearer
// token. With no tokens configured every request is refused.
func provisioningAuth(tokens []string) func(http.Handler) http.Handler {
	allowed := make([][]byte, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			allowed = append(allowed, []byte(t))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(bearerToken(r))
			if len(got) > 0 {
				for _, want := range allowed {
					if subtle.ConstantTimeCompare(got, want) == 1 {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			writeError(w, acceptFormat(r), http.StatusUnauthorized, "unauthorized", "provisioning token required")
		})
	}
}
