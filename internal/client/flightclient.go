package client

import (
	"context"
	"crypto/tls"

	"github.com/apache/arrow/go/v12/arrow/flight"
	"github.com/spiceai/spice-sql-go/auth/tokenprovider"
	"github.com/spiceai/spice-sql-go/internal/agent"
	"github.com/spiceai/spice-sql-go/internal/config"
	spiceerrint "github.com/spiceai/spice-sql-go/internal/errors"
	"github.com/spiceai/spice-sql-go/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// maximum size of a single FlightData message accepted from the server
const maxRecvMsgSize = 256 << 20

// FrameStream yields the frames of one fetch call in server send order.
// Recv returns io.EOF after the last frame.
type FrameStream interface {
	Recv() (*flight.FlightData, error)
}

// FlightClient is the subset of the Flight service used to run a query.
type FlightClient interface {
	GetInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error)
	Fetch(ctx context.Context, ticket *flight.Ticket) (FrameStream, error)
	Close() error
}

type flightClient struct {
	client flight.Client
}

var _ FlightClient = (*flightClient)(nil)

func (c *flightClient) GetInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	return c.client.GetFlightInfo(ctx, desc)
}

func (c *flightClient) Fetch(ctx context.Context, ticket *flight.Ticket) (FrameStream, error) {
	return c.client.DoGet(ctx, ticket)
}

func (c *flightClient) Close() error {
	return c.client.Close()
}

// NewFlightChannel opens a channel to cfg.FlightAddress. Every call on the channel
// carries the bearer token, when an api key is configured, and the client
// identification string. Loopback addresses use plaintext unless configured otherwise.
func NewFlightChannel(ctx context.Context, cfg *config.Config) (FlightClient, error) {
	if cfg.FlightAddress == "" {
		return nil, spiceerrint.NewValidationError(ctx, spiceerrint.ErrEmptyFlightAddress, nil)
	}

	secure := cfg.FlightTLSEnabled(ctx)

	var transportCreds credentials.TransportCredentials
	if secure {
		tlsConfig := cfg.TLSConfig.Clone()
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		transportCreds = credentials.NewTLS(tlsConfig)
	} else {
		transportCreds = insecure.NewCredentials()
	}

	var provider tokenprovider.TokenProvider
	if cfg.APIKey != "" {
		provider = tokenprovider.NewAPIKeyProvider(cfg.APIKey)
	}
	userAgent := agent.UserAgent(cfg.ClientName, cfg.ClientVersion, cfg.UserAgentEntry)

	logger.Debug().Msgf("spice: opening flight channel to %s (tls: %t)", cfg.FlightAddress, secure)

	c, err := flight.NewClientWithMiddleware(
		cfg.FlightAddress,
		nil,
		nil,
		grpc.WithTransportCredentials(transportCreds),
		grpc.WithPerRPCCredentials(tokenprovider.NewPerRPCCredentials(provider, userAgent, secure)),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvMsgSize)),
	)
	if err != nil {
		return nil, spiceerrint.NewTransportError(ctx, spiceerrint.ErrCreateChannel, err)
	}

	return &flightClient{client: c}, nil
}

// ChannelFactory opens a new FlightClient for one query attempt.
type ChannelFactory func(ctx context.Context) (FlightClient, error)

// FlightQueryExecutor turns a sql string into a stream of result frames.
type FlightQueryExecutor struct {
	newChannel ChannelFactory
}

func NewFlightQueryExecutor(cfg *config.Config) *FlightQueryExecutor {
	cfg = cfg.DeepCopy()
	return &FlightQueryExecutor{
		newChannel: func(ctx context.Context) (FlightClient, error) {
			return NewFlightChannel(ctx, cfg)
		},
	}
}

// NewFlightQueryExecutorWithFactory uses f to open channels.
func NewFlightQueryExecutorWithFactory(f ChannelFactory) *FlightQueryExecutor {
	return &FlightQueryExecutor{newChannel: f}
}

// GetResultStream plans sql and opens the fetch stream for its first endpoint.
// The returned client owns the stream and must be closed by the caller. On
// error the client has already been closed.
func (e *FlightQueryExecutor) GetResultStream(ctx context.Context, sql string) (FrameStream, FlightClient, error) {
	fc, err := e.newChannel(ctx)
	if err != nil {
		return nil, nil, err
	}

	stream, err := e.getResultStream(ctx, fc, sql)
	if err != nil {
		if closeErr := fc.Close(); closeErr != nil {
			logger.Debug().Err(closeErr).Msg(spiceerrint.ErrCloseChannel)
		}
		return nil, nil, err
	}

	return stream, fc, nil
}

func (e *FlightQueryExecutor) getResultStream(ctx context.Context, fc FlightClient, sql string) (FrameStream, error) {
	desc := &flight.FlightDescriptor{
		Type: flight.DescriptorCMD,
		Cmd:  []byte(sql),
	}

	info, err := fc.GetInfo(ctx, desc)
	if err != nil {
		return nil, spiceerrint.NewTransportError(ctx, spiceerrint.ErrGetFlightInfo, err)
	}

	if len(info.Endpoint) == 0 {
		return nil, spiceerrint.NewProtocolError(ctx, spiceerrint.ErrNoEndpoints, nil)
	}
	if len(info.Endpoint) > 1 {
		logger.Debug().Msgf("spice: flight info has %d endpoints, using the first", len(info.Endpoint))
	}
	ticket := info.Endpoint[0].Ticket
	if ticket == nil {
		return nil, spiceerrint.NewProtocolError(ctx, spiceerrint.ErrNoTicket, nil)
	}

	stream, err := fc.Fetch(ctx, ticket)
	if err != nil {
		return nil, spiceerrint.NewTransportError(ctx, spiceerrint.ErrDoGet, err)
	}

	return stream, nil
}
