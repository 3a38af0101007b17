package tokenprovider

import (
	"context"
	"time"
)

// expiry margin so that a call does not start with a token about to lapse
const expiryLeeway = 30 * time.Second

// TokenProvider supplies the credential sent with every Flight call.
type TokenProvider interface {
	Token(ctx context.Context) (*Token, error)
}

// TokenProviderFunc adapts an ordinary function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (*Token, error)

func (f TokenProviderFunc) Token(ctx context.Context) (*Token, error) {
	return f(ctx)
}

// Token is an api key or access token. A zero ExpiresAt never expires.
type Token struct {
	Value     string
	Scheme    string
	ExpiresAt time.Time
}

// Expired reports whether the token lapses within expiryLeeway of now.
func (t *Token) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(expiryLeeway).After(t.ExpiresAt)
}

// Header is the authorization metadata value, "Bearer <value>" unless Scheme is set.
func (t *Token) Header() string {
	scheme := t.Scheme
	if scheme == "" {
		scheme = "Bearer"
	}
	return scheme + " " + t.Value
}
