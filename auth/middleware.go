package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jonwraymond/sampleops/observe"
)

const bearerPrefix = "bearer "

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingCredentials
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMissingCredentials
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingCredentials
	}
	return token, nil
}

// Middleware authenticates every request with authn and stores the identity
// on the request context. Requests without a valid bearer token get 401.
// A nil logger is treated as observe.NopLogger().
func Middleware(authn Authenticator, logger observe.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err == nil {
				var id *Identity
				id, err = authn.Authenticate(r.Context(), token)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
			}

			logger.Warn(r.Context(), "request rejected",
				observe.Field{Key: "path", Value: r.URL.Path},
				observe.Field{Key: "reason", Value: err.Error()},
			)
			w.Header().Set("WWW-Authenticate", challenge(err))
			writeError(w, http.StatusUnauthorized, err)
		})
	}
}

// RequireRole only admits identities holding role. It must run inside
// Middleware; a request without identity gets 401 and one lacking the role 403.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if id == nil {
				writeError(w, http.StatusUnauthorized, ErrMissingCredentials)
				return
			}
			if !id.HasRole(role) {
				writeError(w, http.StatusForbidden, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func challenge(err error) string {
	if errors.Is(err, ErrMissingCredentials) {
		return `Bearer realm="sampleops"`
	}
	return `Bearer realm="sampleops", error="invalid_token"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
