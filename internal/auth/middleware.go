package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/knowledge-library/internal/model"
)

// CookieName is the cookie that carries the session token.
const CookieName = "token"

type contextKey string

const identityKey contextKey = "identity"

// RequireAuth rejects requests without a valid token with 401 before any
// handler runs. On success the caller's identity is stored in the context.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := identityFromRequest(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated","message":"valid authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok && id.UserID != ""
}

// TokenFromRequest prefers an Authorization: Bearer header over the cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func identityFromRequest(r *http.Request, tokens *TokenService) (model.Identity, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return model.Identity{}, ErrTokenInvalid
	}
	return tokens.Validate(token)
}
