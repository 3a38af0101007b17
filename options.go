package spice

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/spiceai/spice-sql-go/auth"
	"github.com/spiceai/spice-sql-go/internal/config"
	"github.com/spiceai/spice-sql-go/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type clientOptions struct {
	cfg           *config.Config
	telemetry     *telemetry.Config
	allocator     memory.Allocator
	authenticator auth.Authenticator
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

// WithAPIKey sets the key sent as a bearer token on Flight calls and as
// X-API-Key on REST calls.
func WithAPIKey(apiKey string) ClientOption {
	return func(o *clientOptions) {
		o.cfg.APIKey = apiKey
	}
}

// WithFlightAddress sets the host:port of the Flight endpoint.
func WithFlightAddress(address string) ClientOption {
	return func(o *clientOptions) {
		o.cfg.FlightAddress = address
	}
}

// WithHTTPURL sets the base url of the REST api.
func WithHTTPURL(url string) ClientOption {
	return func(o *clientOptions) {
		o.cfg.HTTPURL = url
	}
}

// WithLocalRuntime targets a runtime on this machine over plaintext.
func WithLocalRuntime() ClientOption {
	return func(o *clientOptions) {
		o.cfg.FlightAddress = config.LocalFlightAddress
		o.cfg.HTTPURL = config.LocalHTTPURL
		o.cfg.FlightTLS = config.NewConfigValue(false)
	}
}

// WithTLSConfig sets the TLS configuration of the Flight channel and enables TLS.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(o *clientOptions) {
		o.cfg.TLSConfig = cfg
		o.cfg.FlightTLS = config.NewConfigValue(true)
	}
}

// WithInsecureFlight uses plaintext for the Flight channel regardless of address.
func WithInsecureFlight() ClientOption {
	return func(o *clientOptions) {
		o.cfg.FlightTLS = config.NewConfigValue(false)
	}
}

// WithMaxRetries sets how many times a failed query is retried. Zero disables retries.
func WithMaxRetries(n int) ClientOption {
	return func(o *clientOptions) {
		o.cfg.MaxRetries = n
	}
}

// WithBackoff sets the delay before the first retry, the cap on any delay
// and the growth factor between retries.
func WithBackoff(initial, max time.Duration, factor float64) ClientOption {
	return func(o *clientOptions) {
		o.cfg.InitialBackoff = initial
		o.cfg.MaxBackoff = max
		o.cfg.BackoffFactor = factor
	}
}

// WithHTTPRetries sets the retry count and wait bounds of REST calls.
func WithHTTPRetries(max int, waitMin, waitMax time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.cfg.HTTPRetryMax = max
		o.cfg.HTTPRetryWaitMin = waitMin
		o.cfg.HTTPRetryWaitMax = waitMax
	}
}

// WithHTTPTimeout sets the timeout of a single REST request.
func WithHTTPTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.cfg.HTTPTimeout = timeout
	}
}

// WithHTTPClient uses c for REST calls. Its timeout is left untouched.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.cfg.HTTPClient = c
	}
}

// WithUserAgentEntry appends entry to the client identification string,
// for example "my-app/1.2".
func WithUserAgentEntry(entry string) ClientOption {
	return func(o *clientOptions) {
		o.cfg.UserAgentEntry = entry
	}
}

// WithClientInfo overrides the client name and version in the identification string.
func WithClientInfo(name, version string) ClientOption {
	return func(o *clientOptions) {
		o.cfg.ClientName = name
		o.cfg.ClientVersion = version
	}
}

// WithPollInterval sets how often WaitForQueryResults checks for completion.
// A positive timeout bounds the wait.
func WithPollInterval(interval, timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.cfg.PollInterval = interval
		o.cfg.PollTimeout = timeout
	}
}

// WithMaxPages bounds the number of pages fetched for one async query.
func WithMaxPages(n int) ClientOption {
	return func(o *clientOptions) {
		o.cfg.MaxPages = n
	}
}

// WithTracerProvider records spans with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(o *clientOptions) {
		o.telemetry.TracerProvider = tp
	}
}

// WithMeterProvider records measurements with mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(o *clientOptions) {
		o.telemetry.MeterProvider = mp
	}
}

// WithTelemetry turns span and metric recording on or off. It is on by default.
func WithTelemetry(enabled bool) ClientOption {
	return func(o *clientOptions) {
		o.telemetry.Enabled = enabled
	}
}

// WithAllocator sets the allocator used to decode result batches.
func WithAllocator(mem memory.Allocator) ClientOption {
	return func(o *clientOptions) {
		o.allocator = mem
	}
}

// WithAuthenticator replaces the X-API-Key authentication of REST calls.
func WithAuthenticator(a auth.Authenticator) ClientOption {
	return func(o *clientOptions) {
		o.authenticator = a
	}
}

// WithParams applies string settings, as read from the environment by ParamsFromEnv.
func WithParams(params map[string]string) ClientOption {
	return func(o *clientOptions) {
		o.cfg.ApplyParams(params)
	}
}
