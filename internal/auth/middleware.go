package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey keeps this package's context values private.
type contextKey string

const sessionKey contextKey = "presenterSession"

// RequirePresenter only lets through requests carrying a presenter token for the
// session the route addresses. sessionOf extracts that session code from the
// request (the router's URL parameter).
//
// A nil TokenService disables the check: without a configured secret the
// dashboard is open, as it always was.
func RequirePresenter(tokens *TokenService, sessionOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tokens == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessionOf(r)
			if err := tokens.Authorize(TokenFromRequest(r), session); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"presenter token required"}`))
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session the presenter was authorized for.
func SessionFromContext(ctx context.Context) (string, bool) {
	code, ok := ctx.Value(sessionKey).(string)
	return code, ok && code != ""
}

// TokenFromRequest reads a bearer token from the Authorization header, falling
// back to the "token" query parameter (browsers cannot set headers on a
// WebSocket handshake).
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
