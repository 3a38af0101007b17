package arrowbased

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/flight"
	"github.com/apache/arrow/go/v12/arrow/ipc"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/pkg/errors"
	spiceerrint "github.com/spiceai/spice-sql-go/internal/errors"
	"github.com/spiceai/spice-sql-go/logger"
	"github.com/spiceai/spice-sql-go/queryctx"
	"github.com/spiceai/spice-sql-go/rows"
)

// end of stream marker: continuation token followed by a zero length
var eos = []byte{0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00}

// IPCMessage is one frame re-encoded as an IPC message:
// u32 little endian header length, header bytes, body bytes.
type IPCMessage []byte

// NewIPCMessage builds the wire message for one frame.
func NewIPCMessage(fd *flight.FlightData) IPCMessage {
	msg := make([]byte, 4, 4+len(fd.DataHeader)+len(fd.DataBody))
	binary.LittleEndian.PutUint32(msg, uint32(len(fd.DataHeader)))
	msg = append(msg, fd.DataHeader...)
	msg = append(msg, fd.DataBody...)
	return msg
}

// FrameReceiver yields frames in arrival order and io.EOF after the last one.
type FrameReceiver interface {
	Recv() (*flight.FlightData, error)
}

// StreamAssembler rebuilds a table from the frames of one result stream.
// The first frame is the schema; every later frame is a record batch.
type StreamAssembler struct {
	mem       memory.Allocator
	onData    rows.OnDataFunc
	schema    IPCMessage
	messages  []IPCMessage
	delivered int
}

// NewStreamAssembler creates an assembler. onData may be nil.
func NewStreamAssembler(mem memory.Allocator, onData rows.OnDataFunc) *StreamAssembler {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &StreamAssembler{mem: mem, onData: onData}
}

// Add appends a frame. Record batch frames are passed to onData as a table
// holding only that frame's rows.
func (a *StreamAssembler) Add(ctx context.Context, fd *flight.FlightData) error {
	msg := NewIPCMessage(fd)
	a.messages = append(a.messages, msg)

	if a.schema == nil {
		a.schema = msg
		return nil
	}

	if a.onData == nil {
		return nil
	}

	table, err := decodeTable(a.mem, a.schema, msg)
	if err != nil {
		return spiceerrint.NewProtocolError(ctx, spiceerrint.ErrInvalidIPCStream, err)
	}
	defer table.Release()

	a.delivered++
	if err := a.onData(table); err != nil {
		return spiceerrint.WrapErr(err, "on data callback failed")
	}

	return nil
}

// Delivered returns the number of tables handed to onData.
func (a *StreamAssembler) Delivered() int {
	return a.delivered
}

// Frames returns the number of frames added, schema included.
func (a *StreamAssembler) Frames() int {
	return len(a.messages)
}

// Table decodes every message added so far as one table. A stream with only
// a schema frame gives a table with zero rows.
func (a *StreamAssembler) Table(ctx context.Context) (arrow.Table, error) {
	if a.schema == nil {
		return nil, spiceerrint.NewProtocolError(ctx, spiceerrint.ErrInvalidIPCStream, errors.New("stream ended before the schema frame"))
	}

	table, err := decodeTable(a.mem, a.messages...)
	if err != nil {
		return nil, spiceerrint.NewProtocolError(ctx, spiceerrint.ErrInvalidIPCStream, err)
	}
	return table, nil
}

// Assemble drains stream into a table. When onData is set it is called once
// per record batch frame. Errors raised after onData was called are reported
// as partial delivery errors.
func Assemble(ctx context.Context, stream FrameReceiver, mem memory.Allocator, onData rows.OnDataFunc) (arrow.Table, error) {
	log := logger.WithContext(queryctx.CorrelationIdFromContext(ctx), queryctx.QueryIdFromContext(ctx))
	msg, start := log.Track("assemble result stream")
	defer log.Duration(msg, start)

	a := NewStreamAssembler(mem, onData)

	fail := func(err error) (arrow.Table, error) {
		if a.Delivered() > 0 {
			return nil, spiceerrint.NewPartialDeliveryError(ctx, a.Delivered(), err)
		}
		return nil, err
	}

	for {
		fd, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(spiceerrint.NewTransportError(ctx, spiceerrint.ErrReadStream, err))
		}

		if err := a.Add(ctx, fd); err != nil {
			return fail(err)
		}
		log.Trace().Msgf("spice: frame %d: header %d bytes, body %d bytes", a.Frames(), len(fd.DataHeader), len(fd.DataBody))
	}

	table, err := a.Table(ctx)
	if err != nil {
		return fail(err)
	}

	log.Debug().Msgf("spice: assembled %d rows from %d frames", table.NumRows(), a.Frames())
	return table, nil
}

// decodeTable reads msgs as one IPC stream, schema message first.
func decodeTable(mem memory.Allocator, msgs ...IPCMessage) (arrow.Table, error) {
	readers := make([]io.Reader, 0, len(msgs)+1)
	for _, m := range msgs {
		readers = append(readers, bytes.NewReader(m))
	}
	readers = append(readers, bytes.NewReader(eos))

	rdr, err := ipc.NewReader(io.MultiReader(readers...), ipc.WithAllocator(mem))
	if err != nil {
		return nil, err
	}
	defer rdr.Release()

	var recs []arrow.Record
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()

	for rdr.Next() {
		r := rdr.Record()
		r.Retain()
		recs = append(recs, r)
	}
	if err := rdr.Err(); err != nil {
		return nil, err
	}

	return array.NewTableFromRecords(rdr.Schema(), recs), nil
}
