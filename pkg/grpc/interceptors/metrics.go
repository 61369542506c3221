package interceptors

import (
	"context"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// MetricsRecorder receives RPC measurements.
type MetricsRecorder interface {
	RecordGRPCRequest(method, code string, duration time.Duration)
	IncGRPCInFlight(method string)
	DecGRPCInFlight(method string)
	RecordGRPCStreamMessages(method string, sent, received int64)
}

// MetricsUnaryInterceptor records latency, result code and in-flight count.
func MetricsUnaryInterceptor(m MetricsRecorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		m.IncGRPCInFlight(info.FullMethod)
		defer m.DecGRPCInFlight(info.FullMethod)

		resp, err := handler(ctx, req)
		m.RecordGRPCRequest(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

// MetricsStreamInterceptor also counts the messages a stream carried.
func MetricsStreamInterceptor(m MetricsRecorder) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		m.IncGRPCInFlight(info.FullMethod)
		defer m.DecGRPCInFlight(info.FullMethod)

		wrapped := &countingStream{ServerStream: ss}
		err := handler(srv, wrapped)

		m.RecordGRPCRequest(info.FullMethod, status.Code(err).String(), time.Since(start))
		m.RecordGRPCStreamMessages(info.FullMethod, wrapped.sent.Load(), wrapped.recv.Load())
		return err
	}
}

type countingStream struct {
	grpc.ServerStream
	sent atomic.Int64
	recv atomic.Int64
}

func (s *countingStream) RecvMsg(m interface{}) error {
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return err
	}
	s.recv.Add(1)
	return nil
}

func (s *countingStream) SendMsg(m interface{}) error {
	if err := s.ServerStream.SendMsg(m); err != nil {
		return err
	}
	s.sent.Add(1)
	return nil
}
