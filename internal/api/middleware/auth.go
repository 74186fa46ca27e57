package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/parley-chat/parley/internal/auth"
)

type contextKey string

const identityContextKey contextKey = "identity"

// AuthMiddleware verifies JWT credentials on HTTP requests.
type AuthMiddleware struct {
	verifier *auth.Manager
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(verifier *auth.Manager) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth verifies the access token (Token cookie, or Authorization
// bearer for non-browser clients) and injects the identity into the
// request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if cookie, err := r.Cookie("Token"); err == nil {
			token = cookie.Value
		}
		if token == "" {
			if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
				token = strings.TrimPrefix(header, "Bearer ")
			}
		}
		if token == "" {
			jsonError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		ident, err := m.verifier.VerifyAccess(token)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext retrieves the authenticated identity from the
// request context, or nil when the request is unauthenticated.
func IdentityFromContext(ctx context.Context) *auth.Identity {
	ident, ok := ctx.Value(identityContextKey).(*auth.Identity)
	if !ok {
		return nil
	}
	return ident
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
