package client

import (
	"context"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/spiceai/spice-sql-go/internal/config"
	"github.com/spiceai/spice-sql-go/logger"
)

//go:generate go run golang.org/x/tools/cmd/stringer -type=clientMethod

type contextKey int

const (
	ClientMethod contextKey = iota
)

type clientMethod int

const (
	unknown clientMethod = iota
	submitQuery
	getQueryResults
	refreshDataset
	getLatestPrices
	getHistoricalPrices
)

// requests that must not be replayed once the server may have acted on them
var nonRetryableClientMethods map[clientMethod]any = map[clientMethod]any{
	submitQuery:    struct{}{},
	refreshDataset: struct{}{},
}

var (
	// A regular expression to match the error returned by net/http when the
	// configured number of redirects is exhausted. This error isn't typed
	// specifically so we resort to matching on the error string.
	redirectsErrorRe = regexp.MustCompile(`stopped after \d+ redirects\z`)

	// A regular expression to match the error returned by net/http when the
	// scheme specified in the URL is invalid. This error isn't typed
	// specifically so we resort to matching on the error string.
	schemeErrorRe = regexp.MustCompile(`unsupported protocol scheme`)

	// A regular expression to match the error returned by net/http when the
	// TLS certificate is not trusted. This error isn't typed
	// specifically so we resort to matching on the error string.
	notTrustedErrorRe = regexp.MustCompile(`certificate is not trusted`)
)

// NewRetryableClient builds the pooled http client used for all REST calls.
func NewRetryableClient(cfg *config.Config) *retryablehttp.Client {
	retryableClient := retryablehttp.NewClient()
	if cfg.HTTPClient != nil {
		retryableClient.HTTPClient = cfg.HTTPClient
	} else {
		retryableClient.HTTPClient.Timeout = cfg.HTTPTimeout
	}
	retryableClient.RetryMax = cfg.HTTPRetryMax
	retryableClient.RetryWaitMin = cfg.HTTPRetryWaitMin
	retryableClient.RetryWaitMax = cfg.HTTPRetryWaitMax
	retryableClient.CheckRetry = RetryPolicy
	retryableClient.Logger = logger.NewLeveledLogger(nil)
	// hand the last response back so the status and body end up in the error
	retryableClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryableClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Debug().Msgf("spice: retrying %s %s, attempt %d", req.Method, req.URL.Path, attempt)
		}
	}

	return retryableClient
}

// RetryPolicy decides whether a REST request is attempted again.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	// do not retry on context.Canceled or context.DeadlineExceeded
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	caller, _ := ctx.Value(ClientMethod).(clientMethod)
	_, nonRetryableClientMethod := nonRetryableClientMethods[caller]

	if err != nil {
		if isRetryableError(err) && !nonRetryableClientMethod {
			return true, nil
		}
		return false, err
	}

	if resp == nil {
		return false, nil
	}

	// 429 Too Many Requests or 503 Service Unavailable means the request was
	// not processed, so even non idempotent requests can be sent again.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return true, nil
	}

	// Other 500-range responses are usually not permanent. This also catches
	// invalid response codes like 0 and 999.
	if !nonRetryableClientMethod && (resp.StatusCode == 0 || (resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented)) {
		return true, fmt.Errorf("unexpected HTTP status %s", resp.Status)
	}

	return false, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// Don't retry if the error was due to too many redirects.
		if redirectsErrorRe.MatchString(urlErr.Error()) {
			return false
		}

		// Don't retry if the error was due to an invalid protocol scheme.
		if schemeErrorRe.MatchString(urlErr.Error()) {
			return false
		}

		// Don't retry if the error was due to TLS cert verification failure.
		if notTrustedErrorRe.MatchString(urlErr.Error()) {
			return false
		}
		if _, ok := urlErr.Err.(x509.UnknownAuthorityError); ok {
			return false
		}
	}

	// The error is likely recoverable so retry.
	return true
}
