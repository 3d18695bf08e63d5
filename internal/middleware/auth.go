package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/nikhil/creatortent/internal/auth"
	"github.com/nikhil/creatortent/internal/httputil"
)

type ContextKey string

const (
	// UserContextKey holds the *auth.Claims of the authenticated caller.
	UserContextKey ContextKey = "currentUser"
)

// ClaimsFromContext returns the caller's claims, if authenticated.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// GetUserID returns the authenticated user ID, or "" when absent.
func GetUserID(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.UserID
	}
	return ""
}

// GetEmail returns the authenticated user's email, or "" when absent.
func GetEmail(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.Email
	}
	return ""
}

// WithClaims stores claims in ctx. Handlers under test use it to skip token parsing.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// AuthMiddleware requires a valid "Authorization: Bearer <token>" header.
func AuthMiddleware(jwtManager *auth.JWTManager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.RespondWithError(w, http.StatusUnauthorized, "Missing auth token")
				return
			}

			tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				httputil.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			claims, err := jwtManager.Validate(tokenStr)
			if err != nil {
				httputil.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WebSocketAuthMiddleware authenticates websocket upgrades, which cannot carry
// custom headers from browsers, through the "token" query parameter. A bearer
// header is accepted as well.
func WebSocketAuthMiddleware(jwtManager *auth.JWTManager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := r.URL.Query().Get("token")
			if tokenStr == "" {
				tokenStr = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}

			claims, err := jwtManager.Validate(tokenStr)
			if err != nil {
				httputil.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func ResponseWrapperMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
