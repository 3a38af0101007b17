package auth

import (
	"net/http"
)

const APIKeyHeader = "X-API-Key"

type Authenticator interface {
	Authenticate(*http.Request) error
}

// APIKeyAuthenticator sets the X-API-Key header used by the REST api.
// An empty key leaves the request untouched, as expected by a local runtime.
type APIKeyAuthenticator struct {
	APIKey string
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)

func NewAPIKeyAuthenticator(apiKey string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{APIKey: apiKey}
}

func (a *APIKeyAuthenticator) Authenticate(r *http.Request) error {
	if a.APIKey != "" {
		r.Header.Set(APIKeyHeader, a.APIKey)
	}
	return nil
}
