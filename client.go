package spice

import (
	"context"
	"strings"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/spiceai/spice-sql-go/internal/asyncquery"
	"github.com/spiceai/spice-sql-go/internal/client"
	"github.com/spiceai/spice-sql-go/internal/config"
	spiceerrint "github.com/spiceai/spice-sql-go/internal/errors"
	"github.com/spiceai/spice-sql-go/internal/retry"
	"github.com/spiceai/spice-sql-go/internal/rows/arrowbased"
	"github.com/spiceai/spice-sql-go/logger"
	"github.com/spiceai/spice-sql-go/queryctx"
	"github.com/spiceai/spice-sql-go/rows"
	"github.com/spiceai/spice-sql-go/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Client runs sql against a Spice runtime or the Spice cloud. It is safe for
// concurrent use. Each query opens its own Flight channel.
type Client struct {
	cfg        *config.Config
	mem        memory.Allocator
	executor   *client.FlightQueryExecutor
	rest       *client.RestClient
	correlator *asyncquery.Correlator
	telemetry  *telemetry.Interceptor
}

// NewClient creates a client. With no options it targets the Spice cloud
// without credentials; use WithAPIKey for the cloud and WithLocalRuntime for
// a runtime on this machine.
func NewClient(opts ...ClientOption) (*Client, error) {
	o := &clientOptions{
		cfg:       config.WithDefaults(),
		telemetry: telemetry.DefaultConfig(),
		allocator: memory.DefaultAllocator,
	}
	for _, opt := range opts {
		opt(o)
	}

	ctx := context.Background()
	if err := o.cfg.Validate(ctx); err != nil {
		return nil, err
	}

	rest, err := client.NewRestClient(o.cfg, o.authenticator)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        o.cfg,
		mem:        o.allocator,
		executor:   client.NewFlightQueryExecutor(o.cfg),
		rest:       rest,
		correlator: asyncquery.NewCorrelator(rest, o.cfg),
		telemetry:  telemetry.NewInterceptor(o.telemetry),
	}
	c.correlator.OnPage = func(ctx context.Context, offset int, page *rows.ResultPage) {
		c.telemetry.RecordPage(ctx, offset, len(page.Rows))
	}

	logger.Debug().Msgf("spice: client created for %s and %s", o.cfg.FlightAddress, o.cfg.HTTPURL)
	return c, nil
}

// Query runs sql and returns the complete result. The caller must Release the table.
func (c *Client) Query(ctx context.Context, sql string) (arrow.Table, error) {
	return c.query(ctx, telemetry.OperationQuery, sql, nil)
}

// QueryStream runs sql and calls onData with every record batch as it
// arrives, then returns the complete result. Tables passed to onData are
// released when onData returns. The caller must Release the returned table.
//
// A failure after onData has been called is returned as a
// PartialDeliveryError and is not retried.
func (c *Client) QueryStream(ctx context.Context, sql string, onData rows.OnDataFunc) (arrow.Table, error) {
	if onData == nil {
		return nil, spiceerrint.NewValidationError(ctx, "onData callback is required", nil)
	}
	return c.query(ctx, telemetry.OperationQueryStream, sql, onData)
}

func (c *Client) query(ctx context.Context, operation string, sql string, onData rows.OnDataFunc) (table arrow.Table, err error) {
	if strings.TrimSpace(sql) == "" {
		return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptySQL, nil)
	}

	ctx = c.telemetry.BeforeExecute(ctx, operation, c.tags(ctx, telemetry.TransportFlight)...)
	defer func() {
		c.telemetry.AfterExecute(ctx, err)
	}()

	log := logger.WithContext(queryctx.CorrelationIdFromContext(ctx), "")
	msg, start := log.Track("spice: query")
	defer log.Duration(msg, start)

	attempt := func(ctx context.Context, rc *retry.Context) (arrow.Table, error) {
		c.telemetry.RecordAttempt(ctx, rc.Attempts())

		stream, fc, err := c.executor.GetResultStream(ctx, sql)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := fc.Close(); err != nil {
				log.Debug().Err(err).Msg(spiceerrint.ErrCloseChannel)
			}
		}()

		var cb rows.OnDataFunc
		if onData != nil {
			cb = func(t arrow.Table) error {
				rc.MarkPartialDelivery()
				c.telemetry.RecordBatch(ctx, t.NumRows())
				return onData(t)
			}
		}

		return arrowbased.Assemble(ctx, stream, c.mem, cb)
	}

	table, err = retry.Execute(ctx, c.retryConfig(), attempt,
		retry.WithOnRetry(func(n int, err error) {
			c.telemetry.RecordRetry(ctx, n, err)
		}),
	)
	if err != nil {
		log.Err(err).Msg("spice: query failed")
		return nil, err
	}

	if onData == nil {
		c.telemetry.AddTag(ctx, attribute.Int64(telemetry.TagRowCount, table.NumRows()))
	}
	return table, nil
}

func (c *Client) retryConfig() retry.Config {
	return retry.Config{
		MaxRetries:     c.cfg.MaxRetries,
		BackoffFactor:  c.cfg.BackoffFactor,
		InitialBackoff: c.cfg.InitialBackoff,
		MaxBackoff:     c.cfg.MaxBackoff,
	}
}

func (c *Client) tags(ctx context.Context, transport string, extra ...attribute.KeyValue) []attribute.KeyValue {
	tags := []attribute.KeyValue{attribute.String(telemetry.TagTransport, transport)}
	if corrId := queryctx.CorrelationIdFromContext(ctx); corrId != "" {
		tags = append(tags, attribute.String(telemetry.TagCorrelationID, corrId))
	}
	return append(tags, extra...)
}

// Close releases idle REST connections. Flight channels are closed after
// every query.
func (c *Client) Close() error {
	c.rest.Close()
	return nil
}
