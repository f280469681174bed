package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	errNoCredentials = errors.New("missing Authorization header")
	errNotBearer     = errors.New("authorization header must use the Bearer scheme")
	errEmptyKey      = errors.New("missing API key")
)

// bearerKey returns the key from "Authorization: Bearer <key>". The scheme
// name is case-insensitive.
func bearerKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoCredentials
	}
	scheme, key, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errEmptyKey
	}
	return key, nil
}

// keyMatches compares in constant time. An empty configured key never matches.
func keyMatches(provided, configured string) bool {
	if configured == "" || len(provided) != len(configured) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) == 1
}

// authMiddleware guards the command routes. Without a configured key they are
// unavailable rather than open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIKey == "" {
			s.writeError(w, http.StatusServiceUnavailable, "api.api_key is not configured")
			return
		}
		key, err := bearerKey(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !keyMatches(key, s.config.APIKey) {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
