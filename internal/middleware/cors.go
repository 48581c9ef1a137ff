package middleware

import (
	"net/http"
	"strings"
)

// OriginAllowed reports whether browser calls from an origin are accepted.
// An empty list or "*" allows any origin.
func OriginAllowed(allowed []string) func(origin string) bool {
	allowAll := len(allowed) == 0
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		origins[o] = struct{}{}
	}

	return func(origin string) bool {
		if allowAll {
			return true
		}
		_, ok := origins[origin]
		return ok
	}
}

// CORS allows browser calls from the given origins.
func CORS(allowed []string) func(http.Handler) http.Handler {
	allow := OriginAllowed(allowed)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if allow(origin) {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
					h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
					h.Add("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
