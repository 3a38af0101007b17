package tokenprovider

import (
	"context"

	"github.com/pkg/errors"
)

// APIKeyProvider hands out a fixed api key as a bearer token.
type APIKeyProvider struct {
	key string
}

var _ TokenProvider = (*APIKeyProvider)(nil)

func NewAPIKeyProvider(key string) *APIKeyProvider {
	return &APIKeyProvider{key: key}
}

func (p *APIKeyProvider) Token(ctx context.Context) (*Token, error) {
	if p.key == "" {
		return nil, errors.New("api key provider: key is empty")
	}
	return &Token{Value: p.key}, nil
}
