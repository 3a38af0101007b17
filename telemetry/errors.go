package telemetry

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	spiceerr "github.com/spiceai/spice-sql-go/errors"
)

// classifyError returns the error.type attribute value for err.
func classifyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, spiceerr.PartialDeliveryError):
		return "partial_delivery"
	case errors.Is(err, spiceerr.ValidationError):
		return "validation"
	case errors.Is(err, spiceerr.ProtocolError):
		return "protocol"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, spiceerr.TransportError):
		return "transport"
	}

	return "error"
}

// errorCode returns the gRPC code name or HTTP status of a transport error.
func errorCode(err error) string {
	var te spiceerr.SpiceTransportError
	if !errors.As(err, &te) {
		return ""
	}
	if status := te.HTTPStatus(); status != 0 {
		return strconv.Itoa(status)
	}
	return te.Code().String()
}
