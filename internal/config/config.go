package config

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	spiceerrint "github.com/spiceai/spice-sql-go/internal/errors"
)

const (
	DefaultFlightAddress = "flight.spiceai.io:443"
	DefaultHTTPURL       = "https://data.spiceai.io"

	LocalFlightAddress = "localhost:50051"
	LocalHTTPURL       = "http://localhost:8090"

	DefaultClientName = "spice-go"

	// upper bound on rows per REST result page
	MaxPageSize = 500
)

type Config struct {
	APIKey string

	FlightAddress string           // host:port of the Flight endpoint
	FlightTLS     ConfigValue[bool] // unset derives from FlightAddress
	TLSConfig     *tls.Config       // optional custom TLS settings for the Flight channel

	HTTPURL string // base url of the REST api

	// Flight query retries
	MaxRetries     int
	BackoffFactor  float64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// REST retries
	HTTPRetryMax     int
	HTTPRetryWaitMin time.Duration
	HTTPRetryWaitMax time.Duration
	HTTPTimeout      time.Duration
	HTTPClient       *http.Client

	UserAgentEntry string
	ClientName     string
	ClientVersion  string

	PageSize     int
	MaxPages     int
	PollInterval time.Duration
	PollTimeout  time.Duration // zero waits until the context is done
}

func WithDefaults() *Config {
	return &Config{
		FlightAddress:    DefaultFlightAddress,
		HTTPURL:          DefaultHTTPURL,
		MaxRetries:       3,
		BackoffFactor:    1.5,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
		HTTPRetryMax:     3,
		HTTPRetryWaitMin: 1 * time.Second,
		HTTPRetryWaitMax: 30 * time.Second,
		HTTPTimeout:      30 * time.Second,
		ClientName:       DefaultClientName,
		ClientVersion:    DefaultClientVersion,
		PageSize:         MaxPageSize,
		MaxPages:         1000,
		PollInterval:     1 * time.Second,
	}
}

// Validate checks the settings that would otherwise fail on first use.
func (c *Config) Validate(ctx context.Context) error {
	if c.FlightAddress == "" {
		return spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptyFlightAddress, nil)
	}
	if c.MaxRetries < 0 {
		return spiceerrint.NewValidationError(ctx, spiceerrint.ErrNegativeMaxRetries, nil)
	}
	if c.BackoffFactor < 1 {
		return spiceerrint.NewValidationError(ctx, spiceerrint.ErrInvalidBackoff, nil)
	}
	u, err := url.Parse(c.HTTPURL)
	if err != nil {
		return spiceerrint.NewValidationError(ctx, spiceerrint.ErrInvalidHTTPURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return spiceerrint.NewValidationErrorf(ctx, "%s: %q", spiceerrint.ErrInvalidHTTPURL, c.HTTPURL)
	}
	if c.PageSize <= 0 || c.PageSize > MaxPageSize {
		return spiceerrint.NewValidationError(ctx, spiceerrint.ErrInvalidLimit, nil)
	}
	return nil
}

// FlightTLSEnabled resolves whether the Flight channel is encrypted.
// An explicit setting wins, loopback addresses are plaintext and anything else uses TLS.
func (c *Config) FlightTLSEnabled(ctx context.Context) bool {
	return c.FlightTLS.Resolve(ctx, ResolverFunc[bool](c.tlsFromAddress), true)
}

func (c *Config) tlsFromAddress(ctx context.Context) (bool, error) {
	host, _, err := net.SplitHostPort(c.FlightAddress)
	if err != nil {
		return false, err
	}
	return !IsLoopback(host), nil
}

// IsLoopback reports whether host names the local machine.
func IsLoopback(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1", "[::1]":
		return true
	}
	return false
}

func (c *Config) DeepCopy() *Config {
	if c == nil {
		return nil
	}

	return &Config{
		APIKey:           c.APIKey,
		FlightAddress:    c.FlightAddress,
		FlightTLS:        c.FlightTLS,
		TLSConfig:        c.TLSConfig.Clone(),
		HTTPURL:          c.HTTPURL,
		MaxRetries:       c.MaxRetries,
		BackoffFactor:    c.BackoffFactor,
		InitialBackoff:   c.InitialBackoff,
		MaxBackoff:       c.MaxBackoff,
		HTTPRetryMax:     c.HTTPRetryMax,
		HTTPRetryWaitMin: c.HTTPRetryWaitMin,
		HTTPRetryWaitMax: c.HTTPRetryWaitMax,
		HTTPTimeout:      c.HTTPTimeout,
		HTTPClient:       c.HTTPClient,
		UserAgentEntry:   c.UserAgentEntry,
		ClientName:       c.ClientName,
		ClientVersion:    c.ClientVersion,
		PageSize:         c.PageSize,
		MaxPages:         c.MaxPages,
		PollInterval:     c.PollInterval,
		PollTimeout:      c.PollTimeout,
	}
}
