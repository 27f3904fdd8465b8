package auth

import (
	"context"
	"net/http"
	"strings"
)

// Identity is what the access guard attaches to the request context.
type Identity struct {
	UserID       string
	TokenVersion int
}

type identityContextKey struct{}

// IdentityFromContext returns the identity placed by Middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// Middleware is the access guard for protected routes. It verifies the
// bearer token as an access-class token and never consults the store, so an
// unexpired access token issued before a token-version bump still passes
// until it expires.
func Middleware(codec *Codec, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "No token provided")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "No token provided")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "No token provided")
			return
		}

		claims, err := codec.Verify(tokenStr, TokenClassAccess)
		if err != nil {
			writeError(w, http.StatusForbidden, "Invalid or expired token")
			return
		}

		identity := Identity{UserID: claims.UserID, TokenVersion: claims.TokenVersion}
		ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
