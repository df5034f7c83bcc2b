package grpcstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/memhub/cancellation"
	"xdao.co/memhub/gate"
	"xdao.co/memhub/policy"
	"xdao.co/memhub/storage"
)

// ServerOptions configures a Server. Nil or zero fields disable the feature.
type ServerOptions struct {
	Gate   *gate.Gate
	Policy policy.Engine
	Logger *zap.Logger
	// Token aborts admitted and waiting calls once cancelled; the daemon
	// cancels it on shutdown.
	Token cancellation.Token
}

// Server exposes a storage.Backend (typically a hub) over the Backend service.
type Server struct {
	UnimplementedBackendServer

	backend storage.Backend
	gate    *gate.Gate
	policy  policy.Engine
	token   cancellation.Token
	log     *zap.Logger
}

func NewServer(b storage.Backend, opts ServerOptions) *Server {
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{
		backend: b,
		gate:    opts.Gate,
		policy:  policy.Resolve(opts.Policy),
		token:   opts.Token,
		log:     l,
	}
}

func (s *Server) Write(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	if s == nil || s.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	key, err := writeKey(ctx)
	if err != nil {
		return nil, err
	}
	if !s.policy.Allow(policy.ActionHubWrite, map[string]any{"key": key}) {
		return nil, status.Error(codes.PermissionDenied, ErrPermissionDenied.Error())
	}
	err = s.admit(ctx, func(ctx context.Context) error {
		return s.backend.Write(ctx, key, in.GetValue())
	})
	if err != nil {
		s.log.Warn("Write failed", zap.String("key", key), zap.Error(err))
		return nil, mapErr(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Read(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	key := in.GetValue()
	if !s.policy.Allow(policy.ActionHubRead, map[string]any{"key": key}) {
		return nil, status.Error(codes.PermissionDenied, ErrPermissionDenied.Error())
	}
	var (
		value []byte
		found bool
	)
	err := s.admit(ctx, func(ctx context.Context) error {
		var err error
		value, found, err = s.backend.Read(ctx, key)
		return err
	})
	if err != nil {
		s.log.Warn("Read failed", zap.String("key", key), zap.Error(err))
		return nil, mapErr(err)
	}
	if !found {
		return nil, status.Error(codes.NotFound, storage.ErrNotFound.Error())
	}
	return wrapperspb.Bytes(value), nil
}

func (s *Server) admit(ctx context.Context, fn func(context.Context) error) error {
	if s.token.Done() != nil {
		var cancel context.CancelFunc
		ctx, cancel = s.token.Context(ctx)
		defer cancel()
	}
	var err error
	if s.gate == nil {
		err = fn(ctx)
	} else {
		err = s.gate.Do(ctx, fn)
	}
	if err != nil && errors.Is(context.Cause(ctx), cancellation.ErrCancelled) {
		return fmt.Errorf("%w: %w", cancellation.ErrCancelled, err)
	}
	return err
}

func writeKey(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(KeyMetadata)
	if len(vals) != 1 {
		return "", status.Error(codes.InvalidArgument, "missing "+KeyMetadata+" metadata")
	}
	return vals[0], nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrInvalidKey):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, cancellation.ErrCancelled):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
