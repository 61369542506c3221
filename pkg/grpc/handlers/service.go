package handlers

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "intersection.v1.IntersectionService"

// Full method names, as seen by interceptors and clients.
const (
	MethodGetStatus    = "/" + ServiceName + "/GetStatus"
	MethodGetFrame     = "/" + ServiceName + "/GetFrame"
	MethodStart        = "/" + ServiceName + "/Start"
	MethodStop         = "/" + ServiceName + "/Stop"
	MethodReset        = "/" + ServiceName + "/Reset"
	MethodGetConfig    = "/" + ServiceName + "/GetConfig"
	MethodUpdateConfig = "/" + ServiceName + "/UpdateConfig"
	MethodListImages   = "/" + ServiceName + "/ListImages"
	MethodUploadImage  = "/" + ServiceName + "/UploadImage"
	MethodDeleteImage  = "/" + ServiceName + "/DeleteImage"
	MethodWatchFrames  = "/" + ServiceName + "/WatchFrames"
)

// IntersectionServiceServer is the server API of the intersection service.
// Messages use the well-known protobuf types; structured payloads travel as
// google.protobuf.Struct with the same field names as the HTTP API.
type IntersectionServiceServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetFrame(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Start(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stop(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Reset(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetConfig(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	UpdateConfig(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListImages(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	UploadImage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteImage(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	WatchFrames(*structpb.Struct, grpc.ServerStream) error
}

// ServiceDesc describes the intersection service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IntersectionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: unary(MethodGetStatus, IntersectionServiceServer.GetStatus)},
		{MethodName: "GetFrame", Handler: unary(MethodGetFrame, IntersectionServiceServer.GetFrame)},
		{MethodName: "Start", Handler: unary(MethodStart, IntersectionServiceServer.Start)},
		{MethodName: "Stop", Handler: unary(MethodStop, IntersectionServiceServer.Stop)},
		{MethodName: "Reset", Handler: unary(MethodReset, IntersectionServiceServer.Reset)},
		{MethodName: "GetConfig", Handler: unary(MethodGetConfig, IntersectionServiceServer.GetConfig)},
		{MethodName: "UpdateConfig", Handler: unary(MethodUpdateConfig, IntersectionServiceServer.UpdateConfig)},
		{MethodName: "ListImages", Handler: unary(MethodListImages, IntersectionServiceServer.ListImages)},
		{MethodName: "UploadImage", Handler: unary(MethodUploadImage, IntersectionServiceServer.UploadImage)},
		{MethodName: "DeleteImage", Handler: unary(MethodDeleteImage, IntersectionServiceServer.DeleteImage)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchFrames",
			Handler:       watchFramesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "intersection/v1/intersection.proto",
}

// RegisterIntersectionServiceServer registers srv on r.
func RegisterIntersectionServiceServer(r grpc.ServiceRegistrar, srv IntersectionServiceServer) {
	r.RegisterService(&ServiceDesc, srv)
}

// unary adapts a typed method into a grpc.MethodHandler.
func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](fullMethod string, call func(IntersectionServiceServer, context.Context, PReq) (Resp, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(IntersectionServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(server, ctx, req.(PReq))
		})
	}
}

func watchFramesHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(IntersectionServiceServer).WatchFrames(in, stream)
}
