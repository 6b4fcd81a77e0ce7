package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/haontuhcmut/lab-services/internal/auth"
	"github.com/haontuhcmut/lab-services/internal/store"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// requireToken is the token authentication gate. It extracts the bearer
// token, runs the auth core's gate state machine for the given token class,
// and hands the claims to downstream handlers via the request context.
func (a *API) requireToken(kind auth.GateKind, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeAuthError(w, auth.ErrMissingCredentials)
			return
		}
		claims, err := a.auth.Authenticate(r.Context(), token, kind)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		ctx := auth.ContextWithClaims(r.Context(), claims)
		next(w, r.WithContext(ctx))
	}
}

type principalContextKey struct{}

// requireRoles is the role authorization gate, composed after requireToken.
// It resolves the claims to the stored principal and rejects unverified
// accounts before any role comparison.
func (a *API) requireRoles(next http.HandlerFunc, allowed ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeAuthError(w, auth.ErrMissingCredentials)
			return
		}
		user, err := a.auth.Authorize(r.Context(), claims, allowed...)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalContextKey{}, user)
		next(w, r.WithContext(ctx))
	}
}

func principalFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(principalContextKey{}).(*store.User)
	return u, ok
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
