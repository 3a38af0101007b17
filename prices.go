package spice

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spiceai/spice-sql-go/internal/client"
	spiceerrint "github.com/spiceai/spice-sql-go/internal/errors"
	"github.com/spiceai/spice-sql-go/rows"
	"github.com/spiceai/spice-sql-go/telemetry"
)

// HistoricalPriceOptions bounds a historical price request. Zero values are
// left to the service defaults.
type HistoricalPriceOptions struct {
	Start       time.Time
	End         time.Time
	Granularity string
}

// GetLatestPrices returns the latest price of every trading pair in symbols,
// for example "BTC-USD". convert optionally names a quote currency.
func (c *Client) GetLatestPrices(ctx context.Context, symbols []string, convert string) (prices rows.LatestPrices, err error) {
	if len(symbols) == 0 {
		return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptySymbols, nil)
	}

	ctx = c.telemetry.BeforeExecute(ctx, telemetry.OperationLatestPrices, c.tags(ctx, telemetry.TransportHTTP)...)
	defer func() {
		c.telemetry.AfterExecute(ctx, err)
	}()

	return c.rest.GetLatestPrices(ctx, &client.LatestPricesRequest{Symbols: symbols, Convert: convert})
}

// GetHistoricalPrices returns price history for every trading pair in symbols.
func (c *Client) GetHistoricalPrices(ctx context.Context, symbols []string, opts HistoricalPriceOptions) (prices rows.HistoricalPrices, err error) {
	if len(symbols) == 0 {
		return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptySymbols, nil)
	}

	ctx = c.telemetry.BeforeExecute(ctx, telemetry.OperationHistoricalPrices, c.tags(ctx, telemetry.TransportHTTP)...)
	defer func() {
		c.telemetry.AfterExecute(ctx, err)
	}()

	return c.rest.GetHistoricalPrices(ctx, historicalQuery(symbols, opts))
}

func historicalQuery(symbols []string, opts HistoricalPriceOptions) url.Values {
	q := url.Values{}
	q.Set("pairs", strings.Join(symbols, ","))
	if !opts.Start.IsZero() {
		q.Set("start", strconv.FormatInt(opts.Start.Unix(), 10))
	}
	if !opts.End.IsZero() {
		q.Set("end", strconv.FormatInt(opts.End.Unix(), 10))
	}
	if opts.Granularity != "" {
		q.Set("granularity", opts.Granularity)
	}
	return q
}
