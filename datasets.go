package spice

import (
	"context"

	"github.com/spiceai/spice-sql-go/internal/client"
	spiceerrint "github.com/spiceai/spice-sql-go/internal/errors"
	"github.com/spiceai/spice-sql-go/logger"
	"github.com/spiceai/spice-sql-go/telemetry"
)

// RefreshOptions customizes a dataset refresh.
type RefreshOptions struct {
	// RefreshSQL limits the refresh to the rows selected by this query
	RefreshSQL string
}

// RefreshDataset asks the runtime to refresh the accelerated copy of
// dataset. The refresh runs in the background; the call returns once the
// runtime has accepted it. opts may be nil.
func (c *Client) RefreshDataset(ctx context.Context, dataset string, opts *RefreshOptions) (err error) {
	if dataset == "" {
		return spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptyDataset, nil)
	}

	ctx = c.telemetry.BeforeExecute(ctx, telemetry.OperationRefreshDataset, c.tags(ctx, telemetry.TransportHTTP)...)
	defer func() {
		c.telemetry.AfterExecute(ctx, err)
	}()

	req := &client.RefreshRequest{}
	if opts != nil {
		req.RefreshSQL = opts.RefreshSQL
	}

	if err := c.rest.RefreshDataset(ctx, dataset, req); err != nil {
		return err
	}

	logger.Info().Msgf("spice: refresh of dataset %s accepted", dataset)
	return nil
}
