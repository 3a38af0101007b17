package errors

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	spiceerr "github.com/spiceai/spice-sql-go/errors"
	"github.com/spiceai/spice-sql-go/queryctx"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error messages
const (
	// Validation errors (caller input)
	ErrEmptySQL            = "sql is required"
	ErrEmptyQueryName      = "query name is required"
	ErrEmptyWebhookURI     = "webhook uri is required"
	ErrEmptyQueryId        = "query id is required"
	ErrEmptyDataset        = "dataset name is required"
	ErrEmptySymbols        = "at least one symbol is required"
	ErrNegativeOffset      = "offset must be greater than or equal to 0"
	ErrInvalidLimit        = "limit must be between 0 and 500"
	ErrNegativeMaxRetries  = "maxRetries must be greater than or equal to 0"
	ErrInvalidBackoff      = "backoff factor must be greater than or equal to 1"
	ErrEmptyFlightAddress  = "flight address is required"
	ErrInvalidHTTPURL      = "invalid http url"
	ErrInvalidNotification = "invalid query completion notification"
	ErrInvalidQueryIdLen   = "query id must be 36 characters"

	// Protocol errors (malformed server responses)
	ErrNoEndpoints        = "flight info contains no endpoints"
	ErrNoTicket           = "flight endpoint contains no ticket"
	ErrMissingQueryId     = "async query response does not contain a query id"
	ErrRowCountMismatch   = "row count differs between result pages"
	ErrSchemaMismatch     = "schema differs between result pages"
	ErrPageLimitExceeded  = "result page limit reached before all rows were retrieved"
	ErrInvalidIPCStream   = "could not decode arrow ipc stream"
	ErrInvalidResultsBody = "could not decode response body"

	// Transport errors
	ErrGetFlightInfo     = "get flight info request failed"
	ErrDoGet             = "do get request failed"
	ErrReadStream        = "failed to read result stream"
	ErrCreateChannel     = "failed to create flight channel"
	ErrCloseChannel      = "failed to close flight channel"
	ErrRequestFailed     = "request failed"
	ErrUnexpectedStatus  = "unexpected response status"
	ErrPartialDelivery   = "result stream failed after rows were delivered"
	ErrQueryNotCompleted = "query has not completed"
)

// gRPC status codes considered safe to retry.
var retryableCodes = map[codes.Code]struct{}{
	codes.Canceled:          {},
	codes.Unavailable:       {},
	codes.DeadlineExceeded:  {},
	codes.ResourceExhausted: {},
	codes.Aborted:           {},
	codes.Internal:          {},
}

// IsRetryableCode reports whether an RPC failure with code c is transient.
func IsRetryableCode(c codes.Code) bool {
	_, ok := retryableCodes[c]
	return ok
}

// IsRetryableHTTPStatus reports whether a REST failure with status s is transient.
func IsRetryableHTTPStatus(s int) bool {
	if s == http.StatusTooManyRequests || s == http.StatusServiceUnavailable {
		return true
	}
	return s >= 500 && s != http.StatusNotImplemented
}

type spiceError struct {
	err           error
	correlationId string
	queryId       string
	errType       string
}

var _ error = (*spiceError)(nil)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func newSpiceError(ctx context.Context, msg string, err error) spiceError {
	// create an error with the new message
	if err == nil {
		err = errors.New(msg)
	} else {
		err = errors.WithMessage(err, msg)
	}

	// if the source error does not have a stack trace in its
	// error chain add a stack trace
	var st stackTracer
	if ok := errors.As(err, &st); !ok {
		err = errors.WithStack(err)
	}

	return spiceError{
		err:           err,
		correlationId: queryctx.CorrelationIdFromContext(ctx),
		queryId:       queryctx.QueryIdFromContext(ctx),
		errType:       "unknown",
	}
}

func (e spiceError) Error() string {
	return fmt.Sprintf("spice: %s: %s", e.errType, e.err.Error())
}

func (e spiceError) Cause() error {
	return e.err
}

func (e spiceError) StackTrace() errors.StackTrace {
	var st stackTracer
	if ok := errors.As(e.err, &st); ok {
		return st.StackTrace()
	}

	return nil
}

func (e spiceError) CorrelationId() string {
	return e.correlationId
}

func (e spiceError) QueryId() string {
	return e.queryId
}

// validationError are caused by missing or out of range caller input
type validationError struct {
	spiceError
}

var _ spiceerr.SpiceValidationError = (*validationError)(nil)

func (e validationError) Is(err error) bool {
	return err == spiceerr.ValidationError
}

func (e validationError) Unwrap() error {
	return e.err
}

func NewValidationError(ctx context.Context, msg string, err error) *validationError {
	spErr := newSpiceError(ctx, msg, err)
	spErr.errType = "validation error"
	return &validationError{spiceError: spErr}
}

func NewValidationErrorf(ctx context.Context, format string, args ...interface{}) *validationError {
	return NewValidationError(ctx, fmt.Sprintf(format, args...), nil)
}

// transportError are connectivity, authentication or status coded failures
type transportError struct {
	spiceError
	code        codes.Code
	httpStatus  int
	body        string
	isRetryable bool
}

var _ spiceerr.SpiceTransportError = (*transportError)(nil)

func (e transportError) Is(err error) bool {
	return err == spiceerr.TransportError
}

func (e transportError) Unwrap() error {
	return e.err
}

func (e transportError) Code() codes.Code {
	return e.code
}

func (e transportError) HTTPStatus() int {
	return e.httpStatus
}

func (e transportError) ResponseBody() string {
	return e.body
}

func (e transportError) IsRetryable() bool {
	return e.isRetryable
}

// NewTransportError wraps an RPC failure. The status code is taken from err.
func NewTransportError(ctx context.Context, msg string, err error) *transportError {
	spErr := newSpiceError(ctx, msg, err)
	spErr.errType = "transport error"
	code := status.Code(errors.Cause(err))
	if code == codes.Unknown {
		code = status.Code(err)
	}
	return &transportError{spiceError: spErr, code: code, isRetryable: IsRetryableCode(code)}
}

// NewHTTPError creates an error for a failed REST call. The response body text
// is part of the message.
func NewHTTPError(ctx context.Context, msg string, httpStatus int, body string) *transportError {
	var cause error
	if body != "" {
		cause = fmt.Errorf("%d %s: %s", httpStatus, http.StatusText(httpStatus), body)
	} else {
		cause = fmt.Errorf("%d %s", httpStatus, http.StatusText(httpStatus))
	}
	spErr := newSpiceError(ctx, msg, cause)
	spErr.errType = "transport error"
	return &transportError{
		spiceError:  spErr,
		code:        codes.Unknown,
		httpStatus:  httpStatus,
		body:        body,
		isRetryable: IsRetryableHTTPStatus(httpStatus),
	}
}

// NewRequestError wraps a REST call that failed without a response.
// Connection level failures are transient unless the context ended.
func NewRequestError(ctx context.Context, msg string, err error) *transportError {
	spErr := newSpiceError(ctx, msg, err)
	spErr.errType = "transport error"
	retryable := !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	code := codes.Unavailable
	if !retryable {
		code = status.FromContextError(err).Code()
	}
	return &transportError{spiceError: spErr, code: code, isRetryable: retryable}
}

// protocolError are structurally invalid server responses
type protocolError struct {
	spiceError
}

var _ spiceerr.SpiceProtocolError = (*protocolError)(nil)

func (e protocolError) Is(err error) bool {
	return err == spiceerr.ProtocolError
}

func (e protocolError) Unwrap() error {
	return e.err
}

func NewProtocolError(ctx context.Context, msg string, err error) *protocolError {
	spErr := newSpiceError(ctx, msg, err)
	spErr.errType = "protocol error"
	return &protocolError{spiceError: spErr}
}

// partialDeliveryError wraps any error raised after an incremental callback fired
type partialDeliveryError struct {
	spiceError
	delivered int
}

var _ spiceerr.SpicePartialDeliveryError = (*partialDeliveryError)(nil)

func (e partialDeliveryError) Is(err error) bool {
	return err == spiceerr.PartialDeliveryError
}

func (e partialDeliveryError) Unwrap() error {
	return e.err
}

func (e partialDeliveryError) DeliveredBatches() int {
	return e.delivered
}

func NewPartialDeliveryError(ctx context.Context, delivered int, err error) *partialDeliveryError {
	spErr := newSpiceError(ctx, ErrPartialDelivery, err)
	spErr.errType = "partial delivery error"
	return &partialDeliveryError{spiceError: spErr, delivered: delivered}
}

// IsRetryable reports whether err may be retried. Only transport errors with a
// transient code are retryable, and never once rows have been delivered.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, spiceerr.PartialDeliveryError) ||
		errors.Is(err, spiceerr.ValidationError) ||
		errors.Is(err, spiceerr.ProtocolError) {
		return false
	}

	var te spiceerr.SpiceTransportError
	if errors.As(err, &te) {
		return te.IsRetryable()
	}

	// a bare status error straight from grpc
	if s, ok := status.FromError(err); ok {
		return IsRetryableCode(s.Code())
	}

	return false
}

// wraps an error and adds trace if not already present
func WrapErr(err error, msg string) error {
	var st stackTracer
	if ok := errors.As(err, &st); ok {
		// wrap passed in error in a new error with the message
		return errors.WithMessage(err, msg)
	}

	// wrap passed in error in errors with the message and a stack trace
	return errors.Wrap(err, msg)
}

// adds a stack trace if not already present
func WrapErrf(err error, format string, args ...interface{}) error {
	var st stackTracer
	if ok := errors.As(err, &st); ok {
		// wrap passed in error in a new error with the formatted message
		return errors.WithMessagef(err, format, args...)
	}

	// wrap passed in error in errors with the formatted message and a stack trace
	return errors.Wrapf(err, format, args...)
}
