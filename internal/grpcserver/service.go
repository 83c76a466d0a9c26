package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// DiscoveryAdminServer is the server API for the DiscoveryAdmin service.
// Requests and responses are google.protobuf.Struct values shaped like the
// HTTP API bodies.
type DiscoveryAdminServer interface {
	TriggerIngestion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TriggerRetentionSweep(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMatches(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MoveApplication(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterDiscoveryAdminServer registers srv on s.
func RegisterDiscoveryAdminServer(s grpc.ServiceRegistrar, srv DiscoveryAdminServer) {
	s.RegisterService(&discoveryAdminDesc, srv)
}

type unaryMethod func(DiscoveryAdminServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DiscoveryAdminServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(DiscoveryAdminServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var discoveryAdminDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DiscoveryAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("TriggerIngestion", DiscoveryAdminServer.TriggerIngestion),
		unaryHandler("TriggerRetentionSweep", DiscoveryAdminServer.TriggerRetentionSweep),
		unaryHandler("GetStatus", DiscoveryAdminServer.GetStatus),
		unaryHandler("GetMatches", DiscoveryAdminServer.GetMatches),
		unaryHandler("MoveApplication", DiscoveryAdminServer.MoveApplication),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "discovery/v1/admin.proto",
}

// Client calls the DiscoveryAdmin service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TriggerIngestion(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "TriggerIngestion", in, opts...)
}

func (c *Client) TriggerRetentionSweep(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "TriggerRetentionSweep", in, opts...)
}

func (c *Client) GetStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetStatus", in, opts...)
}

func (c *Client) GetMatches(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetMatches", in, opts...)
}

func (c *Client) MoveApplication(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "MoveApplication", in, opts...)
}
