package grpcstore

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// KeyMetadata carries the key of a Write call. Binary metadata keeps
// arbitrary key bytes intact.
const KeyMetadata = "memhub-key-bin"

const serviceName = "memhub.storage.v1.Backend"

// BackendServer is the server API for the Backend gRPC service.
//
// Well-known wrapper types stand in for generated messages:
//
//	rpc Write(google.protobuf.BytesValue) returns (google.protobuf.Empty); // key in memhub-key-bin
//	rpc Read(google.protobuf.StringValue) returns (google.protobuf.BytesValue);
type BackendServer interface {
	Write(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	Read(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedBackendServer can be embedded to have forward compatible implementations.
type UnimplementedBackendServer struct{}

func (UnimplementedBackendServer) Write(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method Write not implemented")
}
func (UnimplementedBackendServer) Read(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Read not implemented")
}

// RegisterBackendServer registers the Backend service on a gRPC server.
func RegisterBackendServer(s grpc.ServiceRegistrar, srv BackendServer) {
	s.RegisterService(&Backend_ServiceDesc, srv)
}

// BackendClient is the client API for the Backend gRPC service.
type BackendClient interface {
	Write(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Read(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type backendClient struct{ cc grpc.ClientConnInterface }

func NewBackendClient(cc grpc.ClientConnInterface) BackendClient { return &backendClient{cc: cc} }

func (c *backendClient) Write(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Write", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backendClient) Read(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Read", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Backend_Write_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BackendServer).Write(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Write"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BackendServer).Write(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Backend_Read_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BackendServer).Read(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Read"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BackendServer).Read(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Backend_ServiceDesc is the grpc.ServiceDesc for the Backend service.
var Backend_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BackendServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Write", Handler: _Backend_Write_Handler},
		{MethodName: "Read", Handler: _Backend_Read_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "memhub/storage/v1/backend.proto",
}
