package grpcstore

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/memhub/storage"
)

// ErrPermissionDenied is returned when the server's policy rejects a call.
var ErrPermissionDenied = errors.New("grpcstore: permission denied")

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		return storage.ErrInvalidKey
	case codes.PermissionDenied:
		return ErrPermissionDenied
	default:
		return storage.IOError("rpc", err)
	}
}
