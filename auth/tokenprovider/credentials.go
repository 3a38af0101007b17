package tokenprovider

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spiceai/spice-sql-go/logger"
	"google.golang.org/grpc/credentials"
)

const (
	AuthorizationMetadataKey = "authorization"
	UserAgentMetadataKey     = "x-spice-user-agent"
)

// PerRPCCredentials attaches the bearer token and the client identification
// string to every Flight call.
type PerRPCCredentials struct {
	provider  TokenProvider
	userAgent string
	secure    bool
}

var _ credentials.PerRPCCredentials = (*PerRPCCredentials)(nil)

// NewPerRPCCredentials creates call credentials. A nil provider sends only the
// client identification, which is what an unauthenticated local runtime expects.
func NewPerRPCCredentials(provider TokenProvider, userAgent string, secure bool) *PerRPCCredentials {
	return &PerRPCCredentials{
		provider:  provider,
		userAgent: userAgent,
		secure:    secure,
	}
}

// GetRequestMetadata implements credentials.PerRPCCredentials
func (c *PerRPCCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	md := map[string]string{UserAgentMetadataKey: c.userAgent}
	if c.provider == nil {
		return md, nil
	}

	token, err := c.provider.Token(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "per rpc credentials: failed to get token")
	}
	if token.Value == "" {
		return nil, errors.New("per rpc credentials: empty token")
	}
	if token.Expired(time.Now()) {
		logger.Warn().Msg("spice: flight token is expired or about to expire")
	}

	md[AuthorizationMetadataKey] = token.Header()
	return md, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials
func (c *PerRPCCredentials) RequireTransportSecurity() bool {
	return c.secure
}
