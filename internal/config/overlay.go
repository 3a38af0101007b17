package config

import (
	"context"
	"strconv"
	"time"
)

// ConfigValue represents a configuration value that can be set explicitly or
// resolved at use time.
//
// Priority: explicit value > resolver > default.
type ConfigValue[T any] struct {
	// nil = not set (use resolver)
	value *T
}

// NewConfigValue creates a ConfigValue with an explicit value.
func NewConfigValue[T any](value T) ConfigValue[T] {
	return ConfigValue[T]{value: &value}
}

// IsSet returns true if the value was explicitly set.
func (cv ConfigValue[T]) IsSet() bool {
	return cv.value != nil
}

// Get returns the explicit value and whether it was set.
func (cv ConfigValue[T]) Get() (T, bool) {
	if cv.value != nil {
		return *cv.value, true
	}
	var zero T
	return zero, false
}

// Resolver derives a configuration value when none was set explicitly.
type Resolver[T any] interface {
	Resolve(ctx context.Context) (T, error)
}

type ResolverFunc[T any] func(ctx context.Context) (T, error)

func (f ResolverFunc[T]) Resolve(ctx context.Context) (T, error) {
	return f(ctx)
}

// Resolve applies the overlay priority. The resolver may be nil; a resolver
// error falls back to defaultValue.
func (cv ConfigValue[T]) Resolve(ctx context.Context, resolver Resolver[T], defaultValue T) T {
	if cv.value != nil {
		return *cv.value
	}

	if resolver != nil {
		if v, err := resolver.Resolve(ctx); err == nil {
			return v
		}
	}

	return defaultValue
}

// ParseBoolConfigValue parses params[key] into a ConfigValue[bool].
// Returns an unset value if the key is missing.
func ParseBoolConfigValue(params map[string]string, key string) ConfigValue[bool] {
	if v, ok := params[key]; ok {
		return NewConfigValue(v == "true" || v == "1")
	}
	return ConfigValue[bool]{}
}

// ParseStringConfigValue returns an unset value if the key is missing or empty.
func ParseStringConfigValue(params map[string]string, key string) ConfigValue[string] {
	if v, ok := params[key]; ok && v != "" {
		return NewConfigValue(v)
	}
	return ConfigValue[string]{}
}

// ParseIntConfigValue returns an unset value if the key is missing or invalid.
func ParseIntConfigValue(params map[string]string, key string) ConfigValue[int] {
	if v, ok := params[key]; ok {
		if i, err := strconv.Atoi(v); err == nil {
			return NewConfigValue(i)
		}
	}
	return ConfigValue[int]{}
}

// ParseDurationConfigValue accepts Go duration strings such as "500ms".
func ParseDurationConfigValue(params map[string]string, key string) ConfigValue[time.Duration] {
	if v, ok := params[key]; ok {
		if d, err := time.ParseDuration(v); err == nil {
			return NewConfigValue(d)
		}
	}
	return ConfigValue[time.Duration]{}
}

// Environment variables understood by ApplyParams.
const (
	EnvAPIKey        = "SPICE_API_KEY"
	EnvFlightURL     = "SPICE_FLIGHT_URL"
	EnvHTTPURL       = "SPICE_HTTP_URL"
	EnvFlightTLS     = "SPICE_FLIGHT_TLS"
	EnvMaxRetries    = "SPICE_MAX_RETRIES"
	EnvPollInterval  = "SPICE_POLL_INTERVAL"
	EnvUserAgentInfo = "SPICE_USER_AGENT_ENTRY"
)

// ApplyParams overrides c with the values present in params.
func (c *Config) ApplyParams(params map[string]string) {
	if v, ok := ParseStringConfigValue(params, EnvAPIKey).Get(); ok {
		c.APIKey = v
	}
	if v, ok := ParseStringConfigValue(params, EnvFlightURL).Get(); ok {
		c.FlightAddress = v
	}
	if v, ok := ParseStringConfigValue(params, EnvHTTPURL).Get(); ok {
		c.HTTPURL = v
	}
	if tlsValue := ParseBoolConfigValue(params, EnvFlightTLS); tlsValue.IsSet() {
		c.FlightTLS = tlsValue
	}
	if v, ok := ParseIntConfigValue(params, EnvMaxRetries).Get(); ok {
		c.MaxRetries = v
	}
	if v, ok := ParseDurationConfigValue(params, EnvPollInterval).Get(); ok {
		c.PollInterval = v
	}
	if v, ok := ParseStringConfigValue(params, EnvUserAgentInfo).Get(); ok {
		c.UserAgentEntry = v
	}
}
