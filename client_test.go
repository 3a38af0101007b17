package spice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/flight"
	"github.com/apache/arrow/go/v12/arrow/ipc"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/pkg/errors"
	spiceerr "github.com/spiceai/spice-sql-go/errors"
	"github.com/spiceai/spice-sql-go/internal/testserver"
	"github.com/spiceai/spice-sql-go/queryctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	testAPIKey   = "323337|b42eceab2e7c4a60a04ad57bebea830d"
	recentBlocks = "SELECT number, timestamp, base_fee_per_gas FROM eth.recent_blocks LIMIT 3"
)

type flightFixture struct {
	handler *testserver.FlightHandler
	mem     *memory.CheckedAllocator
	client  *Client
}

func newFlightFixture(t *testing.T, h *testserver.FlightHandler, opts ...ClientOption) *flightFixture {
	srv, err := testserver.NewFlightServer(h)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	opts = append([]ClientOption{
		WithFlightAddress(srv.Addr),
		WithAllocator(mem),
		WithBackoff(time.Millisecond, 5*time.Millisecond, 1.5),
	}, opts...)

	c, err := NewClient(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return &flightFixture{handler: h, mem: mem, client: c}
}

func int64Column(t *testing.T, table arrow.Table, col int) []int64 {
	var out []int64
	for _, chunk := range table.Column(col).Data().Chunks() {
		arr, ok := chunk.(*array.Int64)
		require.True(t, ok)
		out = append(out, arr.Int64Values()...)
	}
	return out
}

func TestQuery(t *testing.T) {
	recs := testserver.BlockRecords(memory.NewGoAllocator(), 17_000_000, 3)
	defer testserver.ReleaseRecords(recs)

	f := newFlightFixture(t, &testserver.FlightHandler{Schema: testserver.BlocksSchema, Records: recs}, WithAPIKey(testAPIKey))

	table, err := f.client.Query(context.Background(), recentBlocks)
	require.NoError(t, err)

	assert.Equal(t, int64(3), table.NumRows())
	assert.Equal(t, int64(3), table.NumCols())
	assert.True(t, table.Schema().Equal(testserver.BlocksSchema))
	assert.Equal(t, []int64{17_000_000, 17_000_001, 17_000_002}, int64Column(t, table, 0))

	table.Release()
	f.mem.AssertSize(t, 0)

	md := f.handler.Metadata()
	require.Len(t, md, 1)
	assert.Equal(t, []string{"Bearer " + testAPIKey}, md[0].Get("authorization"))
	require.Len(t, md[0].Get("x-spice-user-agent"), 1)
	assert.Regexp(t, `^spice-go 1\.0\.0 \(\S+/\S+ \S+\)$`, md[0].Get("x-spice-user-agent")[0])
}

func TestQueryEmptyResult(t *testing.T) {
	f := newFlightFixture(t, &testserver.FlightHandler{Schema: testserver.BlocksSchema})

	table, err := f.client.Query(context.Background(), "SELECT * FROM eth.recent_blocks WHERE 1 = 0")
	require.NoError(t, err)
	defer table.Release()

	assert.Equal(t, int64(0), table.NumRows())
	assert.True(t, table.Schema().Equal(testserver.BlocksSchema))
}

func TestQueryStream(t *testing.T) {
	recs := testserver.BlockRecords(memory.NewGoAllocator(), 0, 2, 0, 1)
	defer testserver.ReleaseRecords(recs)

	f := newFlightFixture(t, &testserver.FlightHandler{Schema: testserver.BlocksSchema, Records: recs})

	var batches []int64
	table, err := f.client.QueryStream(context.Background(), recentBlocks, func(batch arrow.Table) error {
		assert.True(t, batch.Schema().Equal(testserver.BlocksSchema))
		batches = append(batches, batch.NumRows())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 0, 1}, batches)
	assert.Equal(t, int64(3), table.NumRows())
	table.Release()
	f.mem.AssertSize(t, 0)

	_, err = f.client.QueryStream(context.Background(), recentBlocks, nil)
	assert.True(t, errors.Is(err, spiceerr.ValidationError))
}

func TestQueryValidation(t *testing.T) {
	f := newFlightFixture(t, &testserver.FlightHandler{Schema: testserver.BlocksSchema})

	for _, sql := range []string{"", "  \n\t"} {
		_, err := f.client.Query(context.Background(), sql)
		require.Error(t, err)
		assert.True(t, errors.Is(err, spiceerr.ValidationError))
	}

	info, get := f.handler.Calls()
	assert.Equal(t, 0, info)
	assert.Equal(t, 0, get)
}

func TestQueryRetries(t *testing.T) {
	t.Run("transient planning failure is retried", func(t *testing.T) {
		recs := testserver.BlockRecords(memory.NewGoAllocator(), 0, 3)
		defer testserver.ReleaseRecords(recs)

		var mu sync.Mutex
		failures := 2
		h := &testserver.FlightHandler{Schema: testserver.BlocksSchema, Records: recs}
		h.WithGetFlightInfo(func(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
			mu.Lock()
			defer mu.Unlock()
			if failures > 0 {
				failures--
				return nil, status.Error(codes.Unavailable, "runtime is starting")
			}
			return &flight.FlightInfo{Endpoint: []*flight.FlightEndpoint{{Ticket: &flight.Ticket{Ticket: desc.Cmd}}}}, nil
		})
		f := newFlightFixture(t, h)

		table, err := f.client.Query(context.Background(), recentBlocks)
		require.NoError(t, err)
		defer table.Release()
		assert.Equal(t, int64(3), table.NumRows())

		info, get := h.Calls()
		assert.Equal(t, 3, info)
		assert.Equal(t, 1, get)
	})

	t.Run("retries are bounded", func(t *testing.T) {
		h := (&testserver.FlightHandler{}).WithGetFlightInfo(func(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
			return nil, status.Error(codes.Unavailable, "runtime is starting")
		})
		f := newFlightFixture(t, h, WithMaxRetries(2))

		_, err := f.client.Query(context.Background(), recentBlocks)
		require.Error(t, err)

		var te spiceerr.SpiceTransportError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, codes.Unavailable, te.Code())

		info, _ := h.Calls()
		assert.Equal(t, 3, info)
	})

	t.Run("zero retries makes one attempt", func(t *testing.T) {
		h := (&testserver.FlightHandler{}).WithGetFlightInfo(func(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
			return nil, status.Error(codes.Unavailable, "runtime is starting")
		})
		f := newFlightFixture(t, h, WithMaxRetries(0))

		_, err := f.client.Query(context.Background(), recentBlocks)
		require.Error(t, err)

		info, _ := h.Calls()
		assert.Equal(t, 1, info)
	})

	t.Run("permanent failure is not retried", func(t *testing.T) {
		h := (&testserver.FlightHandler{}).WithGetFlightInfo(func(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		})
		f := newFlightFixture(t, h)

		_, err := f.client.Query(context.Background(), recentBlocks)
		require.Error(t, err)
		assert.True(t, errors.Is(err, spiceerr.TransportError))

		info, _ := h.Calls()
		assert.Equal(t, 1, info)
	})

	t.Run("missing endpoints is not retried", func(t *testing.T) {
		h := (&testserver.FlightHandler{}).WithGetFlightInfo(func(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
			return &flight.FlightInfo{}, nil
		})
		f := newFlightFixture(t, h)

		_, err := f.client.Query(context.Background(), recentBlocks)
		require.Error(t, err)
		assert.True(t, errors.Is(err, spiceerr.ProtocolError))

		info, _ := h.Calls()
		assert.Equal(t, 1, info)
	})
}

// failAfterFirstBatch sends the schema and one batch, then fails the stream.
func failAfterFirstBatch(recs []arrow.Record) func(*flight.Ticket, flight.FlightService_DoGetServer) error {
	return func(_ *flight.Ticket, stream flight.FlightService_DoGetServer) error {
		w := flight.NewRecordWriter(stream, ipc.WithSchema(testserver.BlocksSchema))
		if err := w.Write(recs[0]); err != nil {
			return err
		}
		return status.Error(codes.Unavailable, "connection reset")
	}
}

func TestQueryStreamPartialDelivery(t *testing.T) {
	recs := testserver.BlockRecords(memory.NewGoAllocator(), 0, 2, 1)
	defer testserver.ReleaseRecords(recs)

	t.Run("stream failure after a delivered batch", func(t *testing.T) {
		h := (&testserver.FlightHandler{}).WithDoGet(failAfterFirstBatch(recs))
		f := newFlightFixture(t, h)

		delivered := 0
		_, err := f.client.QueryStream(context.Background(), recentBlocks, func(batch arrow.Table) error {
			delivered++
			return nil
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, spiceerr.PartialDeliveryError))
		assert.Equal(t, 1, delivered)

		var pe spiceerr.SpicePartialDeliveryError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, 1, pe.DeliveredBatches())

		// a transient code, but rows already reached the caller
		info, get := h.Calls()
		assert.Equal(t, 1, info)
		assert.Equal(t, 1, get)
	})

	t.Run("the same failure without a callback is retried", func(t *testing.T) {
		h := (&testserver.FlightHandler{}).WithDoGet(failAfterFirstBatch(recs))
		f := newFlightFixture(t, h, WithMaxRetries(1))

		_, err := f.client.Query(context.Background(), recentBlocks)
		require.Error(t, err)
		assert.False(t, errors.Is(err, spiceerr.PartialDeliveryError))
		assert.True(t, errors.Is(err, spiceerr.TransportError))

		_, get := h.Calls()
		assert.Equal(t, 2, get)
	})

	t.Run("callback error", func(t *testing.T) {
		h := &testserver.FlightHandler{Schema: testserver.BlocksSchema, Records: recs}
		f := newFlightFixture(t, h)

		stop := errors.New("enough rows")
		_, err := f.client.QueryStream(context.Background(), recentBlocks, func(batch arrow.Table) error {
			return stop
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, spiceerr.PartialDeliveryError))
		assert.True(t, errors.Is(err, stop))

		_, get := h.Calls()
		assert.Equal(t, 1, get)
		f.mem.AssertSize(t, 0)
	})
}

func TestQueryCancelled(t *testing.T) {
	h := (&testserver.FlightHandler{}).WithGetFlightInfo(func(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
		return nil, status.Error(codes.Unavailable, "runtime is starting")
	})
	f := newFlightFixture(t, h, WithBackoff(time.Hour, time.Hour, 2), WithMaxRetries(5))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.client.Query(ctx, recentBlocks)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestQueryTelemetry(t *testing.T) {
	recs := testserver.BlockRecords(memory.NewGoAllocator(), 0, 2, 1)
	defer testserver.ReleaseRecords(recs)

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	f := newFlightFixture(t, &testserver.FlightHandler{Schema: testserver.BlocksSchema, Records: recs}, WithTracerProvider(tp))

	ctx := queryctx.NewContextWithCorrelationId(context.Background(), "corr-42")
	table, err := f.client.QueryStream(ctx, recentBlocks, func(arrow.Table) error { return nil })
	require.NoError(t, err)
	table.Release()

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "spice/query_stream", ended[0].Name())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "corr-42", attrs["spice.correlation_id"].AsString())
	assert.Equal(t, "flight", attrs["spice.transport"].AsString())
	assert.Equal(t, int64(3), attrs["result.row_count"].AsInt64())
	assert.Equal(t, int64(2), attrs["result.batch_count"].AsInt64())
}

func TestNewClientValidation(t *testing.T) {
	cases := map[string][]ClientOption{
		"empty flight address":   {WithFlightAddress("")},
		"negative retries":       {WithMaxRetries(-1)},
		"backoff factor below 1": {WithBackoff(time.Second, time.Minute, 0.5)},
		"relative http url":      {WithHTTPURL("data.spiceai.io")},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewClient(opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, spiceerr.ValidationError))
		})
	}

	c, err := NewClient(WithAPIKey(testAPIKey))
	require.NoError(t, err)
	assert.Equal(t, "flight.spiceai.io:443", c.cfg.FlightAddress)
	assert.Equal(t, "https://data.spiceai.io", c.cfg.HTTPURL)
	assert.True(t, c.cfg.FlightTLSEnabled(context.Background()))

	c, err = NewClient(WithLocalRuntime())
	require.NoError(t, err)
	assert.Equal(t, "localhost:50051", c.cfg.FlightAddress)
	assert.Equal(t, "http://localhost:8090", c.cfg.HTTPURL)
	assert.False(t, c.cfg.FlightTLSEnabled(context.Background()))
}
