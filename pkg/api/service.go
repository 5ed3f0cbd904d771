package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "terminus.storage.v1.VolumeAgent"

	HelloMethod   = "/" + ServiceName + "/Hello"
	CreateMethod  = "/" + ServiceName + "/Create"
	RemoveMethod  = "/" + ServiceName + "/Remove"
	ResolveMethod = "/" + ServiceName + "/Resolve"
)

// VolumeAgentServer is the server side of the volume RPC service.
type VolumeAgentServer interface {
	Hello(context.Context, *HelloRequest) (*HelloResponse, error)
	Create(context.Context, *CreateRequest) (*CreateResponse, error)
	Remove(context.Context, *RemoveRequest) (*RemoveResponse, error)
	Resolve(context.Context, *ResolveRequest) (*ResolveResponse, error)
}

var VolumeAgentServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VolumeAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Hello", Handler: unaryHandler(HelloMethod, VolumeAgentServer.Hello)},
		{MethodName: "Create", Handler: unaryHandler(CreateMethod, VolumeAgentServer.Create)},
		{MethodName: "Remove", Handler: unaryHandler(RemoveMethod, VolumeAgentServer.Remove)},
		{MethodName: "Resolve", Handler: unaryHandler(ResolveMethod, VolumeAgentServer.Resolve)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "terminus/storage/v1/volume_agent",
}

func RegisterVolumeAgentServer(s grpc.ServiceRegistrar, srv VolumeAgentServer) {
	s.RegisterService(&VolumeAgentServiceDesc, srv)
}

// unaryHandler decodes Req and dispatches through the interceptor chain.
func unaryHandler[Req, Resp any](fullMethod string, call func(VolumeAgentServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VolumeAgentServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(VolumeAgentServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
