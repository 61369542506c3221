// Package client is a Go client for the intersection gRPC service.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/goclaw/intersection/pkg/api/models"
	"github.com/goclaw/intersection/pkg/controller"
	"github.com/goclaw/intersection/pkg/framebus"
	"github.com/goclaw/intersection/pkg/grpc/handlers"
	"github.com/goclaw/intersection/pkg/intersection"
)

// retryServiceConfig retries the read-only methods on transient failures.
const retryServiceConfig = `{
  "methodConfig": [{
    "name": [
      {"service": "intersection.v1.IntersectionService", "method": "GetStatus"},
      {"service": "intersection.v1.IntersectionService", "method": "GetFrame"},
      {"service": "intersection.v1.IntersectionService", "method": "GetConfig"},
      {"service": "intersection.v1.IntersectionService", "method": "ListImages"}
    ],
    "retryPolicy": {
      "maxAttempts": 3,
      "initialBackoff": "0.1s",
      "maxBackoff": "2s",
      "backoffMultiplier": 2.0,
      "retryableStatusCodes": ["UNAVAILABLE", "RESOURCE_EXHAUSTED"]
    }
  }]
}`

// Client talks to one intersection controller.
type Client struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
}

// Options contains client configuration.
type Options struct {
	// Address is the server address (host:port).
	Address string

	TLSEnabled bool
	CAFile     string
	ServerName string

	MaxRecvMsgSize int
	KeepAlive      time.Duration

	// DisableRetry turns off automatic retries of read-only calls.
	DisableRetry bool

	// DialOptions are appended after the options derived above.
	DialOptions []grpc.DialOption
}

// DefaultOptions returns default client options for address.
func DefaultOptions(address string) *Options {
	return &Options{
		Address:        address,
		MaxRecvMsgSize: 4 << 20,
		KeepAlive:      30 * time.Second,
	}
}

// New creates a client. The connection is established lazily.
func New(opts *Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("options cannot be nil")
	}
	if opts.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	var dialOpts []grpc.DialOption
	if opts.MaxRecvMsgSize > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(opts.MaxRecvMsgSize)))
	}
	if opts.KeepAlive > 0 {
		dialOpts = append(dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                opts.KeepAlive,
			PermitWithoutStream: true,
		}))
	}
	if !opts.DisableRetry {
		dialOpts = append(dialOpts, grpc.WithDefaultServiceConfig(retryServiceConfig))
	}

	if opts.TLSEnabled {
		creds, err := loadTLSCredentials(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(creds))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", opts.Address, err)
	}
	return &Client{conn: conn, health: grpc_health_v1.NewHealthClient(conn)}, nil
}

func loadTLSCredentials(opts *Options) (credentials.TransportCredentials, error) {
	cfg := &tls.Config{ServerName: opts.ServerName, MinVersion: tls.VersionTLS12}
	if opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to append CA certificate")
		}
		cfg.RootCAs = pool
	}
	return credentials.NewTLS(cfg), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Healthy reports whether the server reports SERVING for the intersection
// service.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: handlers.ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING, nil
}

// Status returns the controller snapshot.
func (c *Client) Status(ctx context.Context) (*controller.Status, error) {
	return invoke[controller.Status](ctx, c, handlers.MethodGetStatus, &emptypb.Empty{})
}

// Frame returns the current frame.
func (c *Client) Frame(ctx context.Context) (*models.FrameResponse, error) {
	return invoke[models.FrameResponse](ctx, c, handlers.MethodGetFrame, &emptypb.Empty{})
}

// Start starts or resumes the signal cycle.
func (c *Client) Start(ctx context.Context) (*models.CommandResponse, error) {
	return invoke[models.CommandResponse](ctx, c, handlers.MethodStart, &emptypb.Empty{})
}

// Stop freezes the signal cycle.
func (c *Client) Stop(ctx context.Context) (*models.CommandResponse, error) {
	return invoke[models.CommandResponse](ctx, c, handlers.MethodStop, &emptypb.Empty{})
}

// Reset returns the intersection to idle.
func (c *Client) Reset(ctx context.Context) (*models.CommandResponse, error) {
	return invoke[models.CommandResponse](ctx, c, handlers.MethodReset, &emptypb.Empty{})
}

// Config returns the active signal plan.
func (c *Client) Config(ctx context.Context) (*controller.Settings, error) {
	return invoke[controller.Settings](ctx, c, handlers.MethodGetConfig, &emptypb.Empty{})
}

// UpdateConfig replaces the signal plan.
func (c *Client) UpdateConfig(ctx context.Context, req models.ConfigRequest) (*controller.Settings, error) {
	in, err := encode(req)
	if err != nil {
		return nil, err
	}
	return invoke[controller.Settings](ctx, c, handlers.MethodUpdateConfig, in)
}

// Images lists the stored road images.
func (c *Client) Images(ctx context.Context) (*models.ImageListResponse, error) {
	return invoke[models.ImageListResponse](ctx, c, handlers.MethodListImages, &emptypb.Empty{})
}

// UploadImage stores the camera image of road.
func (c *Client) UploadImage(ctx context.Context, road intersection.Road, filename string, data []byte) (*controller.ImageInfo, error) {
	in, err := structpb.NewStruct(map[string]any{
		"road":     string(road),
		"filename": filename,
		"data":     base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, err
	}
	return invoke[controller.ImageInfo](ctx, c, handlers.MethodUploadImage, in)
}

// DeleteImage removes the image of road.
func (c *Client) DeleteImage(ctx context.Context, road intersection.Road) error {
	return c.conn.Invoke(ctx, handlers.MethodDeleteImage, wrapperspb.String(string(road)), &emptypb.Empty{})
}

// FrameWatcher receives events from a WatchFrames stream.
type FrameWatcher struct {
	stream grpc.ClientStream
}

// WatchFrames opens a stream of frame bus events, restricted to types when
// any are given. Cancel ctx to end the stream.
func (c *Client) WatchFrames(ctx context.Context, types ...framebus.EventType) (*FrameWatcher, error) {
	names := make([]any, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	fields := map[string]any{}
	if len(names) > 0 {
		fields["events"] = names
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}

	desc := &handlers.ServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, handlers.MethodWatchFrames)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &FrameWatcher{stream: stream}, nil
}

// Recv blocks for the next event.
func (w *FrameWatcher) Recv() (*framebus.Event, error) {
	msg := new(structpb.Struct)
	if err := w.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	var event framebus.Event
	if err := decode(msg, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// invoke calls a unary method answering a Struct and decodes it into T.
func invoke[T any](ctx context.Context, c *Client, method string, in any) (*T, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, resp); err != nil {
		return nil, err
	}
	out := new(T)
	if err := decode(resp, out); err != nil {
		return nil, err
	}
	return out, nil
}

func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func decode(in *structpb.Struct, out any) error {
	raw, err := in.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
