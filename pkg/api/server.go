package api

import (
	"context"
	"net"

	"github.com/terminus-io/storage-agent/pkg/volume"
	"google.golang.org/grpc"
	"k8s.io/klog/v2"
)

// Server is the RPC front end of a volume backend. It adds no semantics:
// backend errors are logged with their request context and returned as is.
type Server struct {
	backend volume.Backend
	grpc    *grpc.Server
}

func NewServer(backend volume.Backend, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryInterceptor())}, opts...)
	s := &Server{
		backend: backend,
		grpc:    grpc.NewServer(opts...),
	}
	RegisterVolumeAgentServer(s.grpc, s)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	klog.InfoS("Volume RPC server listening", "address", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Run serves lis until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		klog.Info("Shutting down volume RPC server...")
		s.Stop()
	}()
	return s.Serve(lis)
}

func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

func (s *Server) Hello(ctx context.Context, req *HelloRequest) (*HelloResponse, error) {
	klog.FromContext(ctx).V(4).Info("rpc::hello", "caller", req.CallerID)
	return &HelloResponse{Message: HelloReply}, nil
}

func (s *Server) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	logger := klog.FromContext(ctx).WithValues("volume", req.VolumeID, "size", req.SizeLimit)
	logger.V(4).Info("rpc::create")

	// 调用方断开时不中断已开始的操作，命令超时仍由 runner 控制
	path, err := s.backend.Create(context.WithoutCancel(ctx), req.VolumeID, req.SizeLimit)
	if err != nil {
		return nil, s.handleRPCError(ctx, err, "create", "volume", req.VolumeID, "size", req.SizeLimit)
	}
	return &CreateResponse{Path: path}, nil
}

func (s *Server) Remove(ctx context.Context, req *RemoveRequest) (*RemoveResponse, error) {
	klog.FromContext(ctx).V(4).Info("rpc::remove", "volume", req.VolumeID)

	if err := s.backend.Remove(context.WithoutCancel(ctx), req.VolumeID); err != nil {
		return nil, s.handleRPCError(ctx, err, "remove", "volume", req.VolumeID)
	}
	return &RemoveResponse{}, nil
}

func (s *Server) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	klog.FromContext(ctx).V(4).Info("rpc::resolve", "volume", req.VolumeID)
	return &ResolveResponse{Path: s.backend.Resolve(req.VolumeID)}, nil
}

// handleRPCError logs err with the request arguments and hands it back
// unchanged.
func (s *Server) handleRPCError(ctx context.Context, err error, op string, keysAndValues ...any) error {
	klog.FromContext(ctx).Error(err, "Volume operation failed", append([]any{"op", op}, keysAndValues...)...)
	return err
}
