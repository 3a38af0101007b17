package queryctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const queryId = "8d3d2b0e-4d9b-4d7e-9b4a-0c1f1f0f0a11"

func TestIds(t *testing.T) {
	t.Run("correlation and query ids are independent", func(t *testing.T) {
		ctx := NewContextWithCorrelationId(context.Background(), "nightly-report")
		assert.Equal(t, "", QueryIdFromContext(ctx))

		ctx = NewContextWithQueryId(ctx, queryId)
		assert.Equal(t, "nightly-report", CorrelationIdFromContext(ctx))
		assert.Equal(t, queryId, QueryIdFromContext(ctx))
	})

	t.Run("inner value wins", func(t *testing.T) {
		ctx := NewContextWithCorrelationId(context.Background(), "outer")
		ctx = NewContextWithCorrelationId(ctx, "inner")
		assert.Equal(t, "inner", CorrelationIdFromContext(ctx))
	})

	t.Run("deadline is kept", func(t *testing.T) {
		parent, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		ctx := NewContextWithQueryId(NewContextWithCorrelationId(parent, "abc"), queryId)
		want, _ := parent.Deadline()
		got, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("missing values are empty", func(t *testing.T) {
		assert.Equal(t, "", CorrelationIdFromContext(context.Background()))
		assert.Equal(t, "", QueryIdFromContext(context.Background()))
		//nolint:staticcheck
		assert.Equal(t, "", QueryIdFromContext(nil))
	})
}

func TestSubmitted(t *testing.T) {
	var got []string
	ctx := NewContextWithSubmittedFunc(context.Background(), func(id string) { got = append(got, id) })

	Submitted(ctx, queryId)
	// tagging a context with a query id is not a submission
	_ = NewContextWithQueryId(ctx, "other")

	assert.Equal(t, []string{queryId}, got)

	assert.NotPanics(t, func() {
		Submitted(context.Background(), queryId)
		//nolint:staticcheck
		Submitted(nil, queryId)
	})
}
