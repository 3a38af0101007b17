// Package queryctx carries request identifiers through a context so that log
// messages and errors can be tied back to a caller request and an async query.
package queryctx

import (
	"context"
)

type key struct{ name string }

var (
	correlationIdKey = key{"correlationId"}
	queryIdKey       = key{"queryId"}
	submittedKey     = key{"onSubmitted"}
)

// SubmittedFunc receives the id of an async query as soon as the service has accepted it.
type SubmittedFunc func(queryId string)

// NewContextWithCorrelationId tags ctx with a caller chosen id. It appears as
// the corrId field of log messages and in SpiceError.CorrelationId.
func NewContextWithCorrelationId(ctx context.Context, correlationId string) context.Context {
	return context.WithValue(ctx, correlationIdKey, correlationId)
}

func CorrelationIdFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIdKey)
}

// NewContextWithQueryId tags ctx with the id of the async query being worked on.
func NewContextWithQueryId(ctx context.Context, queryId string) context.Context {
	return context.WithValue(ctx, queryIdKey, queryId)
}

func QueryIdFromContext(ctx context.Context) string {
	return stringValue(ctx, queryIdKey)
}

// NewContextWithSubmittedFunc registers fn to be called with the id of every
// async query submitted with the returned context.
func NewContextWithSubmittedFunc(ctx context.Context, fn SubmittedFunc) context.Context {
	return context.WithValue(ctx, submittedKey, fn)
}

// Submitted reports a newly accepted query id to the function registered in ctx, if any.
func Submitted(ctx context.Context, queryId string) {
	if ctx == nil {
		return
	}
	if fn, ok := ctx.Value(submittedKey).(SubmittedFunc); ok && fn != nil {
		fn(queryId)
	}
}

func stringValue(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(k).(string)
	return s
}
