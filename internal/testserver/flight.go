// Package testserver runs an in-process Flight server on a loopback port for tests.
package testserver

import (
	"context"
	"sync"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/flight"
	"github.com/apache/arrow/go/v12/arrow/ipc"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"google.golang.org/grpc/metadata"
)

// FlightHandler answers GetFlightInfo and DoGet with the configured functions.
// By default GetFlightInfo returns one endpoint whose ticket is the command
// bytes and DoGet streams Records.
type FlightHandler struct {
	flight.BaseFlightServer

	Schema  *arrow.Schema
	Records []arrow.Record

	getFlightInfo func(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error)
	doGet         func(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error

	mu        sync.Mutex
	metadata  []metadata.MD
	infoCalls int
	getCalls  int
}

func (h *FlightHandler) WithGetFlightInfo(fn func(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error)) *FlightHandler {
	h.getFlightInfo = fn
	return h
}

func (h *FlightHandler) WithDoGet(fn func(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error) *FlightHandler {
	h.doGet = fn
	return h
}

func (h *FlightHandler) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	h.mu.Lock()
	h.infoCalls++
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		h.metadata = append(h.metadata, md)
	}
	h.mu.Unlock()

	if h.getFlightInfo != nil {
		return h.getFlightInfo(ctx, desc)
	}

	return &flight.FlightInfo{
		FlightDescriptor: desc,
		Endpoint: []*flight.FlightEndpoint{
			{Ticket: &flight.Ticket{Ticket: desc.Cmd}},
		},
		TotalRecords: -1,
		TotalBytes:   -1,
	}, nil
}

func (h *FlightHandler) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	h.mu.Lock()
	h.getCalls++
	h.mu.Unlock()

	if h.doGet != nil {
		return h.doGet(ticket, stream)
	}
	return WriteRecords(stream, h.Schema, h.Records...)
}

// Metadata returns the incoming metadata of every GetFlightInfo call.
func (h *FlightHandler) Metadata() []metadata.MD {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]metadata.MD(nil), h.metadata...)
}

// Calls returns the number of GetFlightInfo and DoGet calls served.
func (h *FlightHandler) Calls() (info int, get int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.infoCalls, h.getCalls
}

// WriteRecords sends a schema frame followed by one frame per record.
func WriteRecords(stream flight.DataStreamWriter, schema *arrow.Schema, recs ...arrow.Record) error {
	w := flight.NewRecordWriter(stream, ipc.WithSchema(schema))
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return w.Close()
}

// FlightServer is a running Flight server.
type FlightServer struct {
	server flight.Server
	Addr   string
}

// NewFlightServer starts serving h on a random loopback port.
func NewFlightServer(h *FlightHandler) (*FlightServer, error) {
	s := flight.NewServerWithMiddleware(nil)
	if err := s.Init("localhost:0"); err != nil {
		return nil, err
	}
	s.RegisterFlightService(h)

	go func() {
		_ = s.Serve()
	}()

	return &FlightServer{server: s, Addr: s.Addr().String()}, nil
}

func (s *FlightServer) Close() {
	s.server.Shutdown()
}

// BlocksSchema is the layout of the recent blocks test table.
var BlocksSchema = arrow.NewSchema([]arrow.Field{
	{Name: "number", Type: arrow.PrimitiveTypes.Int64},
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "base_fee_per_gas", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

// BlockRecords builds one record per entry of sizes, numbering rows from start.
func BlockRecords(mem memory.Allocator, start int64, sizes ...int) []arrow.Record {
	b := array.NewRecordBuilder(mem, BlocksSchema)
	defer b.Release()

	recs := make([]arrow.Record, 0, len(sizes))
	n := start
	for _, size := range sizes {
		for i := 0; i < size; i++ {
			b.Field(0).(*array.Int64Builder).Append(n)
			b.Field(1).(*array.Int64Builder).Append(1_700_000_000 + n*12)
			b.Field(2).(*array.Float64Builder).Append(float64(n) * 1.5)
			n++
		}
		recs = append(recs, b.NewRecord())
	}
	return recs
}

// ReleaseRecords releases every record in recs.
func ReleaseRecords(recs []arrow.Record) {
	for _, r := range recs {
		r.Release()
	}
}
