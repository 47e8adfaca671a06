// Package authmw gates the tracking API behind shared bearer tokens.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// BearerToken returns middleware that requires the Authorization header to
// carry one of the accepted tokens. Passing several tokens lets a deployment
// rotate credentials without cutting off feed producers still on the old one.
// Empty tokens are ignored; comparison is constant-time per token.
func BearerToken(tokens ...string) func(http.Handler) http.Handler {
	accepted := make([][]byte, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			accepted = append(accepted, []byte(t))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, bearerPrefix) {
				unauthorized(w, "missing or malformed authorization header")
				return
			}

			got := []byte(auth[len(bearerPrefix):])
			for _, want := range accepted {
				if subtle.ConstantTimeCompare(got, want) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			unauthorized(w, "invalid token")
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
