package errors

import (
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
)

// value to be used with errors.Is() to determine if an error chain contains a validation error
var ValidationError error = errors.New("Validation Error")

// value to be used with errors.Is() to determine if an error chain contains a transport error
var TransportError error = errors.New("Transport Error")

// value to be used with errors.Is() to determine if an error chain contains a protocol error
var ProtocolError error = errors.New("Protocol Error")

// value to be used with errors.Is() to determine if an error chain contains a partial delivery error
var PartialDeliveryError error = errors.New("Partial Delivery Error")

// Base interface for client errors
type SpiceError interface {
	// Descriptive message describing the error
	Error() string

	// User specified id to track what happens under a request.
	// Appears in log messages as field corrId.  See queryctx.NewContextWithCorrelationId()
	CorrelationId() string

	// Id of the async query the error relates to, if any.
	// Appears in log messages as field queryId.
	QueryId() string

	// Stack trace associated with the error.  May be nil.
	StackTrace() errors.StackTrace

	// Underlying causative error. May be nil.
	Cause() error
}

// Missing or out of range caller input. Never retried and never sent to the server.
type SpiceValidationError interface {
	SpiceError
}

// A connectivity, authentication or status coded failure from the RPC or REST layer.
type SpiceTransportError interface {
	SpiceError

	// gRPC status code of the failure. codes.Unknown for REST failures.
	Code() codes.Code

	// HTTP status code of a REST failure. Zero for RPC failures.
	HTTPStatus() int

	// Body of a failed REST response, if any.
	ResponseBody() string

	IsRetryable() bool
}

// A structurally invalid server response. Never retried.
type SpiceProtocolError interface {
	SpiceError
}

// An error raised after rows were already handed to an incremental callback.
// Never retried, regardless of the underlying error.
type SpicePartialDeliveryError interface {
	SpiceError

	// Number of incremental tables delivered before the failure.
	DeliveredBatches() int
}
