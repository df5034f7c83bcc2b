// Package grpcstore carries storage.Backend calls over gRPC: a Server that
// exposes any backend and a Client that is itself a backend.
package grpcstore

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/memhub/storage"
)

// Client implements storage.Backend over the Backend gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client BackendClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ storage.Backend = (*Client)(nil)

type DialOptions struct {
	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra is appended to the default options (insecure transport).
	Extra []grpc.DialOption
}

// Dial creates a client for target. The connection is established lazily
// on the first call.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.Extra...)

	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewBackendClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Write(ctx context.Context, key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, KeyMetadata, key)

	_, err := c.client.Write(ctx, wrapperspb.Bytes(value))
	return mapRPC(err)
}

func (c *Client) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, false, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Read(ctx, wrapperspb.String(key))
	if err != nil {
		err = mapRPC(err)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	b := reply.GetValue()
	if b == nil {
		b = []byte{}
	}
	return b, true, nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
