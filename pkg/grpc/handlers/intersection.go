// Package handlers implements the intersection gRPC service on top of the
// controller.
package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/goclaw/intersection/config"
	"github.com/goclaw/intersection/pkg/api/models"
	"github.com/goclaw/intersection/pkg/controller"
	"github.com/goclaw/intersection/pkg/intersection"
	"github.com/goclaw/intersection/pkg/logger"
	"github.com/goclaw/intersection/pkg/storage"
)

// DefaultMaxUploadBytes caps a decoded image when no limit is configured.
const DefaultMaxUploadBytes = 10 << 20

var acceptedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// IntersectionServer serves the intersection service for one controller.
type IntersectionServer struct {
	ctrl      *controller.Controller
	log       logger.Logger
	maxUpload int64
}

var _ IntersectionServiceServer = (*IntersectionServer)(nil)

// NewIntersectionServer creates the service for ctrl. A non-positive
// maxUpload uses DefaultMaxUploadBytes.
func NewIntersectionServer(ctrl *controller.Controller, log logger.Logger, maxUpload int64) *IntersectionServer {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	if log == nil {
		log = logger.Global()
	}
	return &IntersectionServer{ctrl: ctrl, log: log, maxUpload: maxUpload}
}

// GetStatus returns the controller snapshot.
func (s *IntersectionServer) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.ctrl.Status(ctx))
}

// GetFrame returns the current signal frame.
func (s *IntersectionServer) GetFrame(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.ctrl.Status(ctx)
	return toStruct(models.FrameResponse{
		Intersection: st.Intersection,
		Lifecycle:    st.Lifecycle,
		Tick:         st.Tick,
		Frame:        st.Frame,
	})
}

// Start starts a session from idle or resumes a stopped one.
func (s *IntersectionServer) Start(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	changed, err := s.ctrl.Start(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.command(ctx, changed)
}

// Stop freezes the running session.
func (s *IntersectionServer) Stop(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return s.command(ctx, s.ctrl.Stop(ctx))
}

// Reset returns to idle all-red and discards uploaded images.
func (s *IntersectionServer) Reset(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.ctrl.Reset(ctx)
	return s.command(ctx, true)
}

func (s *IntersectionServer) command(ctx context.Context, changed bool) (*structpb.Struct, error) {
	return toStruct(models.CommandResponse{Changed: changed, Status: s.ctrl.Status(ctx)})
}

// GetConfig returns the active signal plan.
func (s *IntersectionServer) GetConfig(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(controller.SettingsOf(s.ctrl.Config()))
}

// UpdateConfig replaces the signal plan and resets the intersection. The
// request carries roads, green_seconds and yellow_seconds.
func (s *IntersectionServer) UpdateConfig(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.ConfigRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if err := config.ValidateStruct(&req); err != nil {
		s.log.WarnContext(ctx, "Rejected intersection configuration", "error", err)
		return nil, toStatus(err)
	}

	cfg, err := req.Build()
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.ctrl.Reconfigure(ctx, cfg); err != nil {
		s.log.ErrorContext(ctx, "Failed to reconfigure intersection", "error", err)
		return nil, toStatus(err)
	}
	return toStruct(controller.SettingsOf(s.ctrl.Config()))
}

// ListImages lists the stored road images.
func (s *IntersectionServer) ListImages(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	images, err := s.ctrl.Images(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to list road images", "error", err)
		return nil, toStatus(err)
	}
	return toStruct(models.ImageListResponse{Images: images, Total: len(images)})
}

// UploadImage stores a road image. The request carries road, an optional
// filename and the base64-encoded JPEG or PNG as data.
func (s *IntersectionServer) UploadImage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	road := strings.TrimSpace(fields["road"].GetStringValue())
	if road == "" {
		return nil, status.Error(codes.InvalidArgument, "road is required")
	}

	encoded := fields["data"].GetStringValue()
	if int64(base64.StdEncoding.DecodedLen(len(encoded))) > s.maxUpload+2 {
		return nil, status.Errorf(codes.ResourceExhausted, "image exceeds %d bytes", s.maxUpload)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "data is not valid base64: %v", err)
	}
	if len(data) == 0 {
		return nil, status.Error(codes.InvalidArgument, "image data is empty")
	}
	if int64(len(data)) > s.maxUpload {
		return nil, status.Errorf(codes.ResourceExhausted, "image exceeds %d bytes", s.maxUpload)
	}

	contentType := http.DetectContentType(data)
	if _, ok := acceptedImageTypes[contentType]; !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unsupported image type %s, expected image/jpeg or image/png", contentType)
	}

	img := &storage.RoadImage{
		Road:        intersection.Road(road),
		Filename:    fields["filename"].GetStringValue(),
		ContentType: contentType,
		Data:        data,
		UploadedAt:  time.Now().UTC(),
	}
	if err := s.ctrl.UploadImage(ctx, img); err != nil {
		return nil, toStatus(err)
	}
	return toStruct(controller.ImageInfo{
		Road:        img.Road,
		Filename:    img.Filename,
		ContentType: img.ContentType,
		Size:        img.Size(),
		UploadedAt:  img.UploadedAt,
	})
}

// DeleteImage removes the image of a road.
func (s *IntersectionServer) DeleteImage(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	road := strings.TrimSpace(in.GetValue())
	if road == "" {
		return nil, status.Error(codes.InvalidArgument, "road is required")
	}
	if err := s.ctrl.DeleteImage(ctx, intersection.Road(road)); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return st, nil
}

// fromStruct decodes in into v, rejecting unknown fields.
func fromStruct(in *structpb.Struct, v any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// toStatus maps a domain error to a gRPC status.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var (
		validation   config.ValidationErrors
		invalidImage *storage.InvalidImageError
		notFound     *storage.NotFoundError
		unavailable  *storage.StorageUnavailableError
	)
	switch {
	case errors.As(err, &validation):
		st := status.New(codes.InvalidArgument, "configuration validation failed")
		violations := make([]*errdetails.BadRequest_FieldViolation, 0, len(validation))
		for _, fe := range validation {
			violations = append(violations, &errdetails.BadRequest_FieldViolation{
				Field:       fe.Field,
				Description: fe.Message,
			})
		}
		if detailed, derr := st.WithDetails(&errdetails.BadRequest{FieldViolations: violations}); derr == nil {
			return detailed.Err()
		}
		return st.Err()
	case errors.Is(err, controller.ErrUnknownRoad), errors.As(err, &notFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, intersection.ErrInvalidConfiguration), errors.As(err, &invalidImage):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, controller.ErrClosed), errors.As(err, &unavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
	}
}
