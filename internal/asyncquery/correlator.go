// Package asyncquery submits sql for asynchronous execution and pages
// through the results once the query has completed.
//
// Completion is signalled either by a webhook notification posted by the
// service or by polling the results endpoint.
package asyncquery

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	spiceerr "github.com/spiceai/spice-sql-go/errors"
	"github.com/spiceai/spice-sql-go/internal/client"
	"github.com/spiceai/spice-sql-go/internal/config"
	spiceerrint "github.com/spiceai/spice-sql-go/internal/errors"
	"github.com/spiceai/spice-sql-go/internal/sentinel"
	"github.com/spiceai/spice-sql-go/logger"
	"github.com/spiceai/spice-sql-go/queryctx"
	"github.com/spiceai/spice-sql-go/rows"
)

const (
	DefaultMaxPages = 1000

	// length of a query id, for example "3bd6f1a2-90c4-4f6e-8f53-6f1c4b8a2d11"
	QueryIdLength = 36

	NotificationTypeWebhook = "webhook"
)

// RestClient is the part of the REST api used by the Correlator.
type RestClient interface {
	PageFetcher
	SubmitQuery(ctx context.Context, req *client.SubmitQueryRequest) (*client.SubmitQueryResponse, error)
}

// Correlator submits async queries and maps completions to merged result pages.
type Correlator struct {
	rest         RestClient
	pageSize     int
	maxPages     int
	pollInterval time.Duration
	pollTimeout  time.Duration

	// called for every page fetched by GetAllPages
	OnPage func(ctx context.Context, offset int, page *rows.ResultPage)
}

func NewCorrelator(rest RestClient, cfg *config.Config) *Correlator {
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > config.MaxPageSize {
		pageSize = config.MaxPageSize
	}
	return &Correlator{
		rest:         rest,
		pageSize:     pageSize,
		maxPages:     cfg.MaxPages,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
	}
}

// Submit starts sql asynchronously and registers webhookURI to be called on completion.
func (c *Correlator) Submit(ctx context.Context, name, sql, webhookURI string) (*rows.AsyncQueryHandle, error) {
	if name == "" {
		return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptyQueryName, nil)
	}
	if strings.TrimSpace(sql) == "" {
		return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptySQL, nil)
	}
	if webhookURI == "" {
		return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptyWebhookURI, nil)
	}
	if _, err := url.ParseRequestURI(webhookURI); err != nil {
		return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptyWebhookURI, err)
	}

	notification := rows.Notification{Name: name, Type: NotificationTypeWebhook, URI: webhookURI}
	resp, err := c.rest.SubmitQuery(ctx, &client.SubmitQueryRequest{
		SQL:           sql,
		Notifications: []rows.Notification{notification},
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.QueryID == "" {
		return nil, spiceerrint.NewProtocolError(ctx, spiceerrint.ErrMissingQueryId, nil)
	}

	queryctx.Submitted(ctx, resp.QueryID)
	ctx = queryctx.NewContextWithQueryId(ctx, resp.QueryID)
	logger.WithContext(queryctx.CorrelationIdFromContext(ctx), resp.QueryID).Debug().Msgf("spice: submitted async query %s", name)

	return &rows.AsyncQueryHandle{QueryID: resp.QueryID, SQL: sql, Webhook: notification}, nil
}

type pageOptions struct {
	offset *int
	limit  *int
}

// PageOption narrows the page returned by GetPage.
type PageOption func(*pageOptions)

// WithOffset skips the first n rows. n must not be negative.
func WithOffset(n int) PageOption {
	return func(o *pageOptions) {
		o.offset = &n
	}
}

// WithLimit returns at most n rows, 0 to 500. A limit of zero returns only
// the row count and schema.
func WithLimit(n int) PageOption {
	return func(o *pageOptions) {
		o.limit = &n
	}
}

// GetPage fetches one page of a completed query.
func (c *Correlator) GetPage(ctx context.Context, queryId string, opts ...PageOption) (*rows.ResultPage, error) {
	if queryId == "" {
		return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptyQueryId, nil)
	}

	o := pageOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	query := url.Values{}
	if o.offset != nil {
		if *o.offset < 0 {
			return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrNegativeOffset, nil)
		}
		query.Set("offset", strconv.Itoa(*o.offset))
	}
	if o.limit != nil {
		if *o.limit < 0 || *o.limit > config.MaxPageSize {
			return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrInvalidLimit, nil)
		}
		query.Set("limit", strconv.Itoa(*o.limit))
	}

	return c.rest.GetQueryResults(queryctx.NewContextWithQueryId(ctx, queryId), queryId, query)
}

// Pages iterates over every page of a completed query.
func (c *Correlator) Pages(ctx context.Context, queryId string) (rows.PageIterator, error) {
	if queryId == "" {
		return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptyQueryId, nil)
	}
	ctx = queryctx.NewContextWithQueryId(ctx, queryId)
	return newResultPageIterator(ctx, c.rest, queryId, c.pageSize, c.maxPages, c.OnPage), nil
}

// GetAllPages fetches every page of a completed query and merges them in
// arrival order. RowCount and Schema come from the first page.
func (c *Correlator) GetAllPages(ctx context.Context, queryId string) (*rows.ResultPage, error) {
	it, err := c.Pages(ctx, queryId)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	log := logger.WithContext(queryctx.CorrelationIdFromContext(ctx), queryId)
	msg, start := log.Track("get all result pages")
	defer log.Duration(msg, start)

	var merged *rows.ResultPage
	for {
		page, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if merged == nil {
			merged = &rows.ResultPage{
				RowCount: page.RowCount,
				Schema:   page.Schema,
				Rows:     make([]map[string]interface{}, 0, capacity(page.RowCount)),
			}
		}
		merged.Rows = append(merged.Rows, page.Rows...)
	}

	log.Debug().Msgf("spice: retrieved %d of %d rows", len(merged.Rows), merged.RowCount)
	return merged, nil
}

// ParseNotification decodes a completion notification body.
func ParseNotification(ctx context.Context, body []byte) (*rows.QueryCompleteNotification, error) {
	var n rows.QueryCompleteNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrInvalidNotification, err)
	}
	if len(n.QueryID) != QueryIdLength {
		return nil, spiceerrint.NewValidationErrorf(ctx, "%s, got %d", spiceerrint.ErrInvalidQueryIdLen, len(n.QueryID))
	}
	return &n, nil
}

// FromNotification fetches all results of the query named in a completion
// notification body.
func (c *Correlator) FromNotification(ctx context.Context, body []byte) (*rows.ResultPage, error) {
	n, err := ParseNotification(ctx, body)
	if err != nil {
		return nil, err
	}
	return c.GetAllPages(ctx, n.QueryID)
}

// WaitForResults polls until queryId has completed, then fetches all its results.
func (c *Correlator) WaitForResults(ctx context.Context, queryId string) (*rows.ResultPage, error) {
	if queryId == "" {
		return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptyQueryId, nil)
	}
	ctx = queryctx.NewContextWithQueryId(ctx, queryId)
	log := logger.WithContext(queryctx.CorrelationIdFromContext(ctx), queryId)

	s := sentinel.Sentinel[*rows.ResultPage]{
		PollImmediately: true,
		StatusFn: func(ctx context.Context) (sentinel.Done, *rows.ResultPage, error) {
			page, err := c.GetPage(ctx, queryId, WithLimit(0))
			if err != nil {
				if notReady(err) {
					log.Debug().Err(err).Msg("spice: query not complete yet")
					return func() bool { return false }, nil, nil
				}
				return nil, nil, err
			}
			return func() bool { return true }, page, nil
		},
		OnDoneFn: func(ctx context.Context, _ *rows.ResultPage) (*rows.ResultPage, error) {
			return c.GetAllPages(ctx, queryId)
		},
	}

	status, page, err := s.Watch(ctx, c.pollInterval, c.pollTimeout)
	switch status {
	case sentinel.WatchSuccess:
		return page, nil
	case sentinel.WatchTimeout:
		return nil, spiceerrint.NewTransportError(ctx, spiceerrint.ErrQueryNotCompleted, err)
	default:
		return nil, err
	}
}

// notReady reports whether a poll failure means the query is still running.
func notReady(err error) bool {
	var te spiceerr.SpiceTransportError
	if !errors.As(err, &te) {
		return false
	}
	switch te.HTTPStatus() {
	case http.StatusNotFound, http.StatusAccepted, http.StatusTooEarly:
		return true
	}
	return te.IsRetryable()
}

func capacity(rowCount int64) int {
	const maxPrealloc = 1 << 16
	if rowCount <= 0 {
		return 0
	}
	if rowCount > maxPrealloc {
		return maxPrealloc
	}
	return int(rowCount)
}
