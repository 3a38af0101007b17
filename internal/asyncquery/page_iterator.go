package asyncquery

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/google/go-cmp/cmp"
	spiceerrint "github.com/spiceai/spice-sql-go/internal/errors"
	"github.com/spiceai/spice-sql-go/logger"
	"github.com/spiceai/spice-sql-go/queryctx"
	"github.com/spiceai/spice-sql-go/rows"
)

// PageFetcher retrieves one page of async query results.
type PageFetcher interface {
	GetQueryResults(ctx context.Context, queryId string, query url.Values) (*rows.ResultPage, error)
}

// Create a new result page iterator that walks the pages of queryId from
// offset zero until rowCount rows have been read.
func newResultPageIterator(
	ctx context.Context,
	fetcher PageFetcher,
	queryId string,
	pageSize int,
	maxPages int,
	onPage func(ctx context.Context, offset int, page *rows.ResultPage),
) *resultPageIterator {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &resultPageIterator{
		ctx:      ctx,
		fetcher:  fetcher,
		queryId:  queryId,
		pageSize: pageSize,
		maxPages: maxPages,
		onPage:   onPage,
		logger:   logger.WithContext(queryctx.CorrelationIdFromContext(ctx), queryId),
	}
}

type resultPageIterator struct {
	ctx     context.Context
	fetcher PageFetcher
	queryId string

	// max number of rows to fetch in a page
	pageSize int

	// max number of pages to fetch before giving up on reaching rowCount
	maxPages int

	onPage func(ctx context.Context, offset int, page *rows.ResultPage)
	logger *logger.SpiceLogger

	// page zero, used to check that every later page describes the same result
	first *rows.ResultPage

	// rows received so far, also the offset of the next page
	offset int
	pages  int

	isFinished bool

	// fetched ahead of Next() by HasNext()
	nextResultPage *rows.ResultPage

	// Hold on to errors so they can be returned by Next()
	err error
}

var _ rows.PageIterator = (*resultPageIterator)(nil)

// Returns true if there are more pages in the result set.
func (rpi *resultPageIterator) HasNext() bool {
	if rpi.isFinished && rpi.nextResultPage == nil {
		// There are no more pages to load and there isn't an already fetched
		// page waiting to retrieved by Next()
		if rpi.err == nil {
			rpi.err = io.EOF
		}
		return false
	}

	// If there isn't an already fetched result page try to fetch one now
	if rpi.nextResultPage == nil {
		nrp, err := rpi.getNextPage()
		if err != nil {
			rpi.isFinished = true
			rpi.err = err
			return false
		}

		rpi.nextResultPage = nrp
	}

	return rpi.nextResultPage != nil
}

// Returns the next page of the result set. io.EOF will be returned if there are
// no more pages.
func (rpi *resultPageIterator) Next() (*rows.ResultPage, error) {
	if !rpi.HasNext() && rpi.nextResultPage == nil {
		return nil, rpi.err
	}

	nrp := rpi.nextResultPage
	rpi.nextResultPage = nil
	return nrp, nil
}

func (rpi *resultPageIterator) Close() {
	rpi.isFinished = true
	rpi.nextResultPage = nil
}

func (rpi *resultPageIterator) getNextPage() (*rows.ResultPage, error) {
	if rpi.isFinished {
		// no more result pages to fetch
		return nil, io.EOF
	}

	if rpi.pages >= rpi.maxPages {
		rpi.logger.Warn().Msgf("spice: stopped after %d pages with %d of %d rows", rpi.pages, rpi.offset, rpi.first.RowCount)
		return nil, spiceerrint.NewProtocolError(rpi.ctx,
			fmt.Sprintf("%s: %d pages, %d of %d rows", spiceerrint.ErrPageLimitExceeded, rpi.pages, rpi.offset, rpi.first.RowCount), nil)
	}

	rpi.logger.Debug().Msgf("spice: fetching result page at offset %d", rpi.offset)

	query := url.Values{}
	query.Set("offset", strconv.Itoa(rpi.offset))
	query.Set("limit", strconv.Itoa(rpi.pageSize))

	page, err := rpi.fetcher.GetQueryResults(rpi.ctx, rpi.queryId, query)
	if err != nil {
		rpi.logger.Err(err).Msg("spice: failed to retrieve result page")
		return nil, err
	}
	rpi.pages++

	if rpi.first == nil {
		rpi.first = page
	} else if err := rpi.checkConsistent(page); err != nil {
		return nil, err
	}

	if rpi.onPage != nil {
		rpi.onPage(rpi.ctx, rpi.offset, page)
	}

	rpi.offset += len(page.Rows)
	if int64(rpi.offset) >= rpi.first.RowCount {
		rpi.isFinished = true
	}

	return page, nil
}

// every page of a query carries the same row count and schema
func (rpi *resultPageIterator) checkConsistent(page *rows.ResultPage) error {
	if page.RowCount != rpi.first.RowCount {
		return spiceerrint.NewProtocolError(rpi.ctx,
			fmt.Sprintf("%s: %d then %d", spiceerrint.ErrRowCountMismatch, rpi.first.RowCount, page.RowCount), nil)
	}
	if diff := cmp.Diff(rpi.first.Schema, page.Schema); diff != "" {
		return spiceerrint.NewProtocolError(rpi.ctx, fmt.Sprintf("%s (-first +page):\n%s", spiceerrint.ErrSchemaMismatch, diff), nil)
	}
	return nil
}
