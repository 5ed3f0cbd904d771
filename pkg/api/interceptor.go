package api

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/terminus-io/storage-agent/pkg/exporter"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

// UnaryInterceptor tags every request with an id, converts handler errors to
// gRPC statuses and records the RPC metrics.
func UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		reqID := uuid.NewString()
		method := methodName(info.FullMethod)
		logger := klog.FromContext(ctx).WithValues("requestID", reqID, "method", method)
		ctx = klog.NewContext(ctx, logger)

		logger.V(4).Info("RPC request received")
		resp, err := handler(ctx, req)

		code := codes.OK
		if err != nil {
			err = ToStatus(err)
			code = status.Code(err)
		}
		elapsed := time.Since(start)
		exporter.ObserveRPC(method, code.String(), elapsed)
		logger.V(4).Info("RPC request finished", "code", code.String(), "duration", elapsed)
		return resp, err
	}
}

// methodName strips the service prefix: "/pkg.Service/Create" -> "Create".
func methodName(fullMethod string) string {
	if i := strings.LastIndex(fullMethod, "/"); i >= 0 {
		return fullMethod[i+1:]
	}
	return fullMethod
}
