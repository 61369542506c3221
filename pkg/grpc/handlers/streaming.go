package handlers

import (
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/goclaw/intersection/pkg/framebus"
)

// WatchFrames streams frame bus events until the client goes away or the bus
// closes. An optional "events" list in the request restricts the stream to
// the named event types.
func (s *IntersectionServer) WatchFrames(in *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()

	filter, err := eventFilter(in)
	if err != nil {
		return err
	}

	bus := s.ctrl.Bus()
	id := "grpc-" + uuid.NewString()
	events, err := bus.Subscribe(ctx, id)
	if err != nil {
		return status.Errorf(codes.Unavailable, "subscribe to frame bus: %v", err)
	}
	defer func() { _ = bus.Unsubscribe(id) }()

	s.log.DebugContext(ctx, "gRPC frame watcher connected", "subscriber", id)
	defer s.log.DebugContext(ctx, "gRPC frame watcher disconnected", "subscriber", id)

	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case event, ok := <-events:
			if !ok {
				return status.Error(codes.Unavailable, "frame bus closed")
			}
			if len(filter) > 0 {
				if _, want := filter[event.Type]; !want {
					continue
				}
			}
			msg, err := toStruct(event)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func eventFilter(in *structpb.Struct) (map[framebus.EventType]struct{}, error) {
	list := in.GetFields()["events"].GetListValue()
	if list == nil {
		return nil, nil
	}
	filter := make(map[framebus.EventType]struct{}, len(list.GetValues()))
	for _, v := range list.GetValues() {
		t := framebus.EventType(v.GetStringValue())
		switch t {
		case framebus.EventFrame, framebus.EventLifecycle:
			filter[t] = struct{}{}
		default:
			return nil, status.Errorf(codes.InvalidArgument, "unknown event type %q", v.GetStringValue())
		}
	}
	return filter, nil
}
