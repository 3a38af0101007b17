package spice

import (
	"os"

	"github.com/spiceai/spice-sql-go/internal/config"
)

var envParams = []string{
	config.EnvAPIKey,
	config.EnvFlightURL,
	config.EnvHTTPURL,
	config.EnvFlightTLS,
	config.EnvMaxRetries,
	config.EnvPollInterval,
	config.EnvUserAgentInfo,
}

// ParamsFromEnv returns the SPICE_* settings present in the environment, for use with WithParams.
func ParamsFromEnv() map[string]string {
	params := make(map[string]string)
	for _, k := range envParams {
		if v, ok := os.LookupEnv(k); ok {
			params[k] = v
		}
	}
	return params
}
