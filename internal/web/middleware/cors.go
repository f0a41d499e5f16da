package middleware

import (
	"net/http"
	"strings"
)

// Origins is the set of browser origins allowed to read the status API.
// The entry "*" admits every origin.
type Origins map[string]struct{}

// ParseOrigins builds an Origins set, ignoring blanks and trailing slashes.
func ParseOrigins(list []string) Origins {
	o := make(Origins, len(list))
	for _, s := range list {
		s = strings.TrimRight(strings.TrimSpace(s), "/")
		if s != "" {
			o[s] = struct{}{}
		}
	}
	return o
}

func (o Origins) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := o["*"]; ok {
		return true
	}
	_, ok := o[origin]
	return ok
}

// CORS lets dashboards on the configured origins poll the status API. A
// preflight from any other origin gets no CORS headers.
func CORS(origins Origins) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")
			allowed := origins.allows(origin)
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					w.Header().Set("Access-Control-Allow-Methods", "GET")
					w.Header().Set("Access-Control-Allow-Headers", "Accept")
					w.Header().Set("Access-Control-Max-Age", "600")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders marks every response as non-embeddable JSON.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
