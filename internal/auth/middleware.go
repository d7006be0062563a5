package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/liftlog-io/liftlog/internal/models"
)

type contextKey struct{}

// Authenticator resolves a raw bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Middleware admits a request only when its bearer token resolves to an
// existing user, which is then available through UserFromContext. Token
// problems go to deny; any other lookup failure goes to fail.
func Middleware(authn Authenticator, deny http.HandlerFunc, fail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				deny(w, r)
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) {
					deny(w, r)
					return
				}
				fail(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// BearerToken extracts the credentials of an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFromContext returns the user set by Middleware, if any.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(contextKey{}).(*models.User)
	return u, ok && u != nil
}
