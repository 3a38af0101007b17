package asyncquery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	spiceerr "github.com/spiceai/spice-sql-go/errors"
	"github.com/spiceai/spice-sql-go/internal/client"
	"github.com/spiceai/spice-sql-go/internal/config"
	"github.com/spiceai/spice-sql-go/queryctx"
	"github.com/spiceai/spice-sql-go/rows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = []rows.ColumnSchema{
	{Name: "n", Type: rows.ColumnType{Name: "Int64"}},
	{Name: "label", Type: rows.ColumnType{Name: "Utf8"}},
}

type recordedRequest struct {
	method string
	path   string
	query  map[string]string
	body   string
}

type fakeService struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  http.HandlerFunc
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{method: r.Method, path: r.URL.Path, query: q, body: string(body)})
	f.mu.Unlock()
	f.handler(w, r)
}

func (f *fakeService) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeService) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

// pagedResults serves total rows, honoring offset and limit.
func pagedResults(total int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit := 500
		if l := r.URL.Query().Get("limit"); l != "" {
			limit, _ = strconv.Atoi(l)
		}
		writePage(w, total, testSchema, offset, limit)
	}
}

func writePage(w http.ResponseWriter, rowCount int, schema []rows.ColumnSchema, offset, limit int) {
	page := rows.ResultPage{RowCount: int64(rowCount), Schema: schema, Rows: []map[string]interface{}{}}
	for i := offset; i < offset+limit && i < rowCount; i++ {
		page.Rows = append(page.Rows, map[string]interface{}{"n": i, "label": fmt.Sprintf("row-%d", i)})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(page)
}

func newTestCorrelator(t *testing.T, handler http.HandlerFunc, modify ...func(*config.Config)) (*Correlator, *fakeService) {
	svc := &fakeService{handler: handler}
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	cfg := config.WithDefaults()
	cfg.HTTPURL = srv.URL
	cfg.HTTPRetryWaitMin = time.Millisecond
	cfg.HTTPRetryWaitMax = 5 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	for _, m := range modify {
		m(cfg)
	}

	rest, err := client.NewRestClient(cfg, nil)
	require.NoError(t, err)
	return NewCorrelator(rest, cfg), svc
}

func TestGetAllPages(t *testing.T) {
	cases := []struct {
		rowCount  int
		wantPages int
	}{
		{rowCount: 0, wantPages: 1},
		{rowCount: 1, wantPages: 1},
		{rowCount: 500, wantPages: 1},
		{rowCount: 501, wantPages: 2},
		{rowCount: 1250, wantPages: 3},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d rows", tc.rowCount), func(t *testing.T) {
			c, svc := newTestCorrelator(t, pagedResults(tc.rowCount))

			var offsets []int
			c.OnPage = func(ctx context.Context, offset int, page *rows.ResultPage) {
				offsets = append(offsets, offset)
			}

			page, err := c.GetAllPages(context.Background(), uuid.NewString())
			require.NoError(t, err)

			assert.Equal(t, tc.wantPages, svc.count())
			assert.Equal(t, int64(tc.rowCount), page.RowCount)
			assert.Equal(t, testSchema, page.Schema)
			require.Len(t, page.Rows, tc.rowCount)
			for i, row := range page.Rows {
				assert.Equal(t, strconv.Itoa(i), fmt.Sprint(row["n"]))
			}

			for i, req := range svc.recorded() {
				assert.Equal(t, http.MethodGet, req.method)
				assert.Equal(t, "500", req.query["limit"])
				assert.Equal(t, strconv.Itoa(i*500), req.query["offset"])
			}
			assert.Len(t, offsets, tc.wantPages)
		})
	}
}

func TestGetAllPagesProtocolErrors(t *testing.T) {
	t.Run("row count changes between pages", func(t *testing.T) {
		c, _ := newTestCorrelator(t, func(w http.ResponseWriter, r *http.Request) {
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			rowCount := 1000
			if offset > 0 {
				rowCount = 900
			}
			writePage(w, rowCount, testSchema, offset, 500)
		})

		_, err := c.GetAllPages(context.Background(), uuid.NewString())
		require.Error(t, err)
		assert.True(t, errors.Is(err, spiceerr.ProtocolError))
		assert.Contains(t, err.Error(), "row count differs")
	})

	t.Run("schema changes between pages", func(t *testing.T) {
		c, _ := newTestCorrelator(t, func(w http.ResponseWriter, r *http.Request) {
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			schema := testSchema
			if offset > 0 {
				schema = testSchema[:1]
			}
			writePage(w, 1000, schema, offset, 500)
		})

		_, err := c.GetAllPages(context.Background(), uuid.NewString())
		require.Error(t, err)
		assert.True(t, errors.Is(err, spiceerr.ProtocolError))
		assert.Contains(t, err.Error(), "schema differs")
	})

	t.Run("page limit reached", func(t *testing.T) {
		// claims many rows but returns one per page
		c, svc := newTestCorrelator(t, func(w http.ResponseWriter, r *http.Request) {
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			writePage(w, 1_000_000, testSchema, offset, 1)
		}, func(cfg *config.Config) { cfg.MaxPages = 5 })

		_, err := c.GetAllPages(context.Background(), uuid.NewString())
		require.Error(t, err)
		assert.True(t, errors.Is(err, spiceerr.ProtocolError))
		assert.Contains(t, err.Error(), "page limit")
		assert.Equal(t, 5, svc.count())
	})

	t.Run("server error", func(t *testing.T) {
		c, _ := newTestCorrelator(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"no such query"}`))
		})

		_, err := c.GetAllPages(context.Background(), uuid.NewString())
		require.Error(t, err)
		var te spiceerr.SpiceTransportError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, http.StatusBadRequest, te.HTTPStatus())
		assert.Contains(t, err.Error(), "no such query")
	})
}

func TestGetPage(t *testing.T) {
	t.Run("invalid arguments never reach the network", func(t *testing.T) {
		c, svc := newTestCorrelator(t, pagedResults(10))
		id := uuid.NewString()

		invalid := [][]PageOption{
			{WithOffset(-1)},
			{WithLimit(501)},
			{WithLimit(-1)},
			{WithOffset(0), WithLimit(1000)},
		}
		for _, opts := range invalid {
			_, err := c.GetPage(context.Background(), id, opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, spiceerr.ValidationError))
		}

		_, err := c.GetPage(context.Background(), "", WithLimit(1))
		assert.True(t, errors.Is(err, spiceerr.ValidationError))

		assert.Equal(t, 0, svc.count())
	})

	t.Run("offset and limit are sent", func(t *testing.T) {
		c, svc := newTestCorrelator(t, pagedResults(10))
		id := uuid.NewString()

		page, err := c.GetPage(context.Background(), id, WithOffset(4), WithLimit(3))
		require.NoError(t, err)
		assert.Equal(t, int64(10), page.RowCount)
		require.Len(t, page.Rows, 3)
		assert.Equal(t, "4", fmt.Sprint(page.Rows[0]["n"]))

		req := svc.recorded()[0]
		assert.Equal(t, "/v1/sql/"+id, req.path)
		assert.Equal(t, "4", req.query["offset"])
		assert.Equal(t, "3", req.query["limit"])
	})

	t.Run("bounds are valid", func(t *testing.T) {
		c, svc := newTestCorrelator(t, pagedResults(10))

		_, err := c.GetPage(context.Background(), uuid.NewString(), WithOffset(0), WithLimit(0))
		require.NoError(t, err)
		_, err = c.GetPage(context.Background(), uuid.NewString(), WithLimit(500))
		require.NoError(t, err)
		_, err = c.GetPage(context.Background(), uuid.NewString())
		require.NoError(t, err)
		assert.Equal(t, 3, svc.count())
	})
}

func TestFromNotification(t *testing.T) {
	t.Run("short query id", func(t *testing.T) {
		c, svc := newTestCorrelator(t, pagedResults(10))

		_, err := c.FromNotification(context.Background(), []byte(`{"queryId":"short"}`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, spiceerr.ValidationError))
		assert.Equal(t, 0, svc.count())
	})

	t.Run("malformed body", func(t *testing.T) {
		c, svc := newTestCorrelator(t, pagedResults(10))

		_, err := c.FromNotification(context.Background(), []byte(`not json`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, spiceerr.ValidationError))
		assert.Equal(t, 0, svc.count())
	})

	t.Run("fetches every page of the notified query", func(t *testing.T) {
		c, svc := newTestCorrelator(t, pagedResults(1250))
		id := uuid.NewString()

		body := fmt.Sprintf(`{"appId":49,"queryId":%q,"requestTime":"2023-01-01T00:00:00Z","completionTime":"2023-01-01T00:00:02Z","state":"completed","sql":"SELECT 1","rowCount":1250}`, id)
		page, err := c.FromNotification(context.Background(), []byte(body))
		require.NoError(t, err)
		assert.Len(t, page.Rows, 1250)

		reqs := svc.recorded()
		require.Len(t, reqs, 3)
		for _, r := range reqs {
			assert.Equal(t, "/v1/sql/"+id, r.path)
		}
	})
}

func TestParseNotification(t *testing.T) {
	id := uuid.NewString()
	n, err := ParseNotification(context.Background(), []byte(fmt.Sprintf(`{"appId":49,"queryId":%q,"state":"completed","rowCount":3}`, id)))
	require.NoError(t, err)
	assert.Equal(t, id, n.QueryID)
	assert.Equal(t, int64(49), n.AppID)
	assert.Equal(t, "completed", n.State)
	assert.Equal(t, int64(3), n.RowCount)
}

func TestSubmit(t *testing.T) {
	t.Run("missing arguments never reach the network", func(t *testing.T) {
		c, svc := newTestCorrelator(t, pagedResults(0))

		args := [][3]string{
			{"", "SELECT 1", "https://example.com/hook"},
			{"q", "", "https://example.com/hook"},
			{"q", "   ", "https://example.com/hook"},
			{"q", "SELECT 1", ""},
			{"q", "SELECT 1", "not a uri"},
		}
		for _, a := range args {
			_, err := c.Submit(context.Background(), a[0], a[1], a[2])
			require.Error(t, err)
			assert.True(t, errors.Is(err, spiceerr.ValidationError), strings.Join(a[:], "|"))
		}
		assert.Equal(t, 0, svc.count())
	})

	t.Run("registers the webhook", func(t *testing.T) {
		id := uuid.NewString()
		c, svc := newTestCorrelator(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprintf(w, `{"queryId":%q}`, id)
		})

		var submitted string
		ctx := queryctx.NewContextWithSubmittedFunc(context.Background(), func(queryId string) { submitted = queryId })

		handle, err := c.Submit(ctx, "blocks", "SELECT * FROM eth.recent_blocks", "https://example.com/hook")
		require.NoError(t, err)
		assert.Equal(t, id, handle.QueryID)
		assert.Equal(t, id, submitted)
		assert.Equal(t, "SELECT * FROM eth.recent_blocks", handle.SQL)
		assert.Equal(t, rows.Notification{Name: "blocks", Type: "webhook", URI: "https://example.com/hook"}, handle.Webhook)

		reqs := svc.recorded()
		require.Len(t, reqs, 1)
		assert.Equal(t, http.MethodPost, reqs[0].method)
		assert.Equal(t, "/v1/sql", reqs[0].path)
		assert.JSONEq(t, `{"sql":"SELECT * FROM eth.recent_blocks","notifications":[{"name":"blocks","type":"webhook","uri":"https://example.com/hook"}]}`, reqs[0].body)
	})

	t.Run("response without query id", func(t *testing.T) {
		c, _ := newTestCorrelator(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})

		_, err := c.Submit(context.Background(), "q", "SELECT 1", "https://example.com/hook")
		require.Error(t, err)
		assert.True(t, errors.Is(err, spiceerr.ProtocolError))
	})

	t.Run("server errors are not retried", func(t *testing.T) {
		c, svc := newTestCorrelator(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		})

		_, err := c.Submit(context.Background(), "q", "SELECT 1", "https://example.com/hook")
		require.Error(t, err)
		assert.Equal(t, 1, svc.count())

		var te spiceerr.SpiceTransportError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, http.StatusInternalServerError, te.HTTPStatus())
		assert.Equal(t, "boom", te.ResponseBody())
	})
}

func TestWaitForResults(t *testing.T) {
	t.Run("polls until the query completes", func(t *testing.T) {
		var mu sync.Mutex
		polls := 0
		c, _ := newTestCorrelator(t, func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			polls++
			p := polls
			mu.Unlock()
			switch p {
			case 1:
				w.WriteHeader(http.StatusNotFound)
			case 2:
				w.WriteHeader(http.StatusAccepted)
			default:
				pagedResults(700)(w, r)
			}
		})

		page, err := c.WaitForResults(context.Background(), uuid.NewString())
		require.NoError(t, err)
		assert.Len(t, page.Rows, 700)
		// two not ready polls, one ready poll, two pages
		assert.Equal(t, 5, polls)
	})

	t.Run("stops on a permanent error", func(t *testing.T) {
		c, svc := newTestCorrelator(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		_, err := c.WaitForResults(context.Background(), uuid.NewString())
		require.Error(t, err)
		assert.Equal(t, 1, svc.count())
	})

	t.Run("gives up after the poll timeout", func(t *testing.T) {
		c, _ := newTestCorrelator(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, func(cfg *config.Config) { cfg.PollTimeout = 100 * time.Millisecond })

		_, err := c.WaitForResults(context.Background(), uuid.NewString())
		require.Error(t, err)
		assert.True(t, errors.Is(err, spiceerr.TransportError))
	})
}
