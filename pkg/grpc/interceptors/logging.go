package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/goclaw/intersection/pkg/logger"
)

// LoggingUnaryInterceptor logs one line per RPC.
func LoggingUnaryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logRPC(ctx, log, info.FullMethod, err, time.Since(start), "unary")
		return resp, err
	}
}

// LoggingStreamInterceptor logs one line when a stream ends.
func LoggingStreamInterceptor(log logger.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logRPC(ss.Context(), log, info.FullMethod, err, time.Since(start), "stream")
		return err
	}
}

func logRPC(ctx context.Context, log logger.Logger, method string, err error, d time.Duration, kind string) {
	code := status.Code(err)
	args := []any{
		"method", method,
		"kind", kind,
		"code", code.String(),
		"duration_ms", d.Milliseconds(),
		"request_id", requestIDOrUnknown(ctx),
	}

	switch code {
	case codes.OK, codes.Canceled:
		if method == healthCheckMethod || method == healthWatchMethod {
			log.DebugContext(ctx, "gRPC request", args...)
			return
		}
		log.InfoContext(ctx, "gRPC request", args...)
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		log.ErrorContext(ctx, "gRPC request failed", append(args, "error", err)...)
	default:
		log.WarnContext(ctx, "gRPC request rejected", append(args, "error", err)...)
	}
}
