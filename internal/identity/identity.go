// Package identity issues and remembers the per-browser guest token that
// namespaces scan history.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/storage"
)

// StorageKey is where the active token lives.
const StorageKey = "userID"

const guestPrefix = "guest_"

// ErrInvalidToken is returned for tokens that cannot name a history.
var ErrInvalidToken = errors.New("invalid identity token")

// reserved holds store keys that must never double as a history key.
var reserved = map[string]struct{}{
	StorageKey:       {},
	"darkMode":       {},
	"users":          {},
	"communityPosts": {},
}

// ValidateToken reports whether s may be used as a history key.
func ValidateToken(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	if _, ok := reserved[s]; ok {
		return fmt.Errorf("%w: %q is a reserved key", ErrInvalidToken, s)
	}
	return nil
}

// Token is an opaque identity string such as "guest_1712345678901".
type Token string

// Provider lazily creates the identity token and returns the same value
// on every later call.
type Provider struct {
	store storage.Port
	now   func() time.Time

	mu     sync.Mutex
	cached Token
}

func NewProvider(store storage.Port) *Provider {
	return &Provider{store: store, now: time.Now}
}

// WithClock overrides the timestamp source used for new tokens.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// Current returns the persisted token, generating and storing one when absent.
func (p *Provider) Current(ctx context.Context) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached, nil
	}

	value, found, err := p.store.Get(ctx, StorageKey)
	if err != nil {
		return "", fmt.Errorf("failed to read identity token: %w", err)
	}
	if found && value != "" {
		if err := ValidateToken(value); err != nil {
			return "", err
		}
		p.cached = Token(value)
		return p.cached, nil
	}

	token := NewGuestToken(p.now())
	if err := p.store.Set(ctx, StorageKey, string(token)); err != nil {
		return "", fmt.Errorf("failed to persist identity token: %w", err)
	}
	slog.Info("Issued guest identity", "token", token)
	p.cached = token
	return token, nil
}

// NewGuestToken formats a guest token from a timestamp in milliseconds.
func NewGuestToken(at time.Time) Token {
	return Token(guestPrefix + strconv.FormatInt(at.UnixMilli(), 10))
}
