package spice

import (
	"context"

	"github.com/spiceai/spice-sql-go/internal/asyncquery"
	"github.com/spiceai/spice-sql-go/queryctx"
	"github.com/spiceai/spice-sql-go/rows"
	"github.com/spiceai/spice-sql-go/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// PageOption narrows the page returned by GetQueryResults.
type PageOption = asyncquery.PageOption

// WithOffset skips the first n rows of the result. n must not be negative.
func WithOffset(n int) PageOption {
	return asyncquery.WithOffset(n)
}

// WithLimit returns at most n rows, 0 to 500.
func WithLimit(n int) PageOption {
	return asyncquery.WithLimit(n)
}

// SubmitAsyncQuery starts sql on the service and returns immediately. The
// service posts a completion notification to webhookURI when the query has
// finished; pass its body to GetQueryResultsFromNotification.
func (c *Client) SubmitAsyncQuery(ctx context.Context, name, sql, webhookURI string) (handle *rows.AsyncQueryHandle, err error) {
	ctx = c.telemetry.BeforeExecute(ctx, telemetry.OperationSubmit, c.tags(ctx, telemetry.TransportHTTP)...)
	defer func() {
		if handle != nil {
			c.telemetry.AddTag(ctx, attribute.String(telemetry.TagQueryID, handle.QueryID))
		}
		c.telemetry.AfterExecute(ctx, err)
	}()

	return c.correlator.Submit(ctx, name, sql, webhookURI)
}

// GetQueryResults fetches one page of a completed async query. Without
// options the first page of up to 500 rows is returned.
func (c *Client) GetQueryResults(ctx context.Context, queryId string, opts ...PageOption) (page *rows.ResultPage, err error) {
	ctx = c.startQueryOp(ctx, telemetry.OperationGetPage, queryId)
	defer func() {
		c.telemetry.AfterExecute(ctx, err)
	}()

	return c.correlator.GetPage(ctx, queryId, opts...)
}

// GetAllQueryResults fetches every page of a completed async query and
// returns them merged into one page in row order.
func (c *Client) GetAllQueryResults(ctx context.Context, queryId string) (page *rows.ResultPage, err error) {
	ctx = c.startQueryOp(ctx, telemetry.OperationGetAllPages, queryId)
	defer func() {
		c.telemetry.AfterExecute(ctx, err)
	}()

	return c.correlator.GetAllPages(ctx, queryId)
}

// GetQueryResultsFromNotification fetches every result row of the query
// named in a completion notification body.
func (c *Client) GetQueryResultsFromNotification(ctx context.Context, body []byte) (page *rows.ResultPage, err error) {
	ctx = c.telemetry.BeforeExecute(ctx, telemetry.OperationGetAllPages, c.tags(ctx, telemetry.TransportHTTP)...)
	defer func() {
		c.telemetry.AfterExecute(ctx, err)
	}()

	n, err := asyncquery.ParseNotification(ctx, body)
	if err != nil {
		return nil, err
	}
	c.telemetry.AddTag(ctx, attribute.String(telemetry.TagQueryID, n.QueryID))

	return c.correlator.GetAllPages(ctx, n.QueryID)
}

// WaitForQueryResults polls until queryId has completed and then fetches all
// of its results. It gives up when ctx is done or the poll timeout passes.
func (c *Client) WaitForQueryResults(ctx context.Context, queryId string) (page *rows.ResultPage, err error) {
	ctx = c.startQueryOp(ctx, telemetry.OperationWaitForResults, queryId)
	defer func() {
		c.telemetry.AfterExecute(ctx, err)
	}()

	return c.correlator.WaitForResults(ctx, queryId)
}

// ParseQueryCompleteNotification decodes a completion notification body.
func ParseQueryCompleteNotification(ctx context.Context, body []byte) (*rows.QueryCompleteNotification, error) {
	return asyncquery.ParseNotification(ctx, body)
}

func (c *Client) startQueryOp(ctx context.Context, operation, queryId string) context.Context {
	if queryId != "" {
		ctx = queryctx.NewContextWithQueryId(ctx, queryId)
	}
	return c.telemetry.BeforeExecute(ctx, operation,
		c.tags(ctx, telemetry.TransportHTTP, attribute.String(telemetry.TagQueryID, queryId))...)
}
