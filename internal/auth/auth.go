// Package auth resolves the caller's user id from an API request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/identity"
	"github.com/golang-jwt/jwt/v5"
)

// IdentityHeader carries the guest identity token when no signing secret is
// configured.
const IdentityHeader = "X-Identity-Token"

var ErrUnauthorized = errors.New("unauthorized")

type ctxKey struct{}

// Authenticator verifies HS256 bearer tokens. With an empty secret it
// trusts IdentityHeader instead.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func New(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (a *Authenticator) Signed() bool { return len(a.secret) > 0 }

// Issue signs a token whose subject is userID.
func (a *Authenticator) Issue(userID string) (string, error) {
	if !a.Signed() {
		return "", fmt.Errorf("no signing secret configured")
	}
	if err := identity.ValidateToken(userID); err != nil {
		return "", fmt.Errorf("user id: %w", err)
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify returns the subject of a valid token.
func (a *Authenticator) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(a.now))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	if err := identity.ValidateToken(claims.Subject); err != nil {
		return "", fmt.Errorf("%w: bad subject: %v", ErrUnauthorized, err)
	}
	return claims.Subject, nil
}

// UserID extracts the caller from r.
func (a *Authenticator) UserID(r *http.Request) (string, error) {
	if !a.Signed() {
		id := strings.TrimSpace(r.Header.Get(IdentityHeader))
		if id == "" {
			return "", fmt.Errorf("%w: missing %s header", ErrUnauthorized, IdentityHeader)
		}
		if err := identity.ValidateToken(id); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return id, nil
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	return a.Verify(token)
}

// Middleware rejects unauthenticated requests and stores the user id in the
// request context.
func (a *Authenticator) Middleware(onError func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.UserID(r)
			if err != nil {
				onError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
