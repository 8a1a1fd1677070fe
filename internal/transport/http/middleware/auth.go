package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"dealership_backend/internal/auth"
	"dealership_backend/internal/httputil"
	"dealership_backend/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// PrincipalKey is the context key for the authenticated principal
	PrincipalKey contextKey = "principal"
)

// tokenFrom checks the Authorization header first (mobile), then the cookie (web).
func tokenFrom(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	cookie, err := r.Cookie("access_token")
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// AuthMiddleware rejects requests without a valid access token and stores the
// principal in the request context.
func AuthMiddleware(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := tokenFrom(r)
			if tokenString == "" {
				httputil.WriteUnauthorized(w, "Missing authentication token")
				return
			}

			p, err := verifier.Verify(tokenString)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredCredential) {
					httputil.WriteUnauthorizedWithCode(w, model.CodeTokenExpired, "Access token has expired")
					return
				}
				httputil.WriteUnauthorizedWithCode(w, model.CodeTokenInvalid, "Invalid authentication token")
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthMiddleware attaches the principal when a valid token is present
// and lets the request through anonymously otherwise.
func OptionalAuthMiddleware(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString := tokenFrom(r); tokenString != "" {
				if p, err := verifier.Verify(tokenString); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), PrincipalKey, p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOperator must run after AuthMiddleware.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipalFromContext(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "Authentication required")
			return
		}
		if !p.Role.IsOperator() {
			httputil.WriteForbidden(w, "Operator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetPrincipalFromContext extracts the principal from the request context
func GetPrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(model.Principal)
	return p, ok
}

// GetUserIDFromContext extracts the user ID from the request context
// Returns the user ID and true if found, or 0 and false if not found
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	p, ok := GetPrincipalFromContext(ctx)
	return p.ID, ok
}
