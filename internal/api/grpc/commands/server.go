package commands

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/events"
	"github.com/oshokin/appshell/internal/logger"
	"github.com/oshokin/appshell/internal/service/shell"
	"github.com/oshokin/appshell/internal/service/updater"
)

// Metadata keys identifying the calling user, set by the command client.
const (
	HostnameMetadataKey = "appshell-hostname"
	UsernameMetadataKey = "appshell-username"
)

// Service abstracts the commands the transport layer depends on.
type Service interface {
	CheckForUpdates(ctx context.Context) (update.Info, error)
	DownloadAndInstallUpdate(ctx context.Context, extra events.Emitter) error
	GetAppVersion(ctx context.Context) string
	GetAppEnvironment(ctx context.Context) string
	Greet(ctx context.Context, name string) string
}

// Server implements CommandServer.
type Server struct {
	// service provides the command implementations.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// CheckForUpdates asks the release feed for a newer version.
func (s *Server) CheckForUpdates(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ctx = withCaller(ctx)

	info, err := s.service.CheckForUpdates(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	response, err := EncodeInfo(info)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return response, nil
}

// DownloadAndInstallUpdate installs the pending update and streams its events.
// The install is not aborted when the caller goes away.
func (s *Server) DownloadAndInstallUpdate(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := withCaller(stream.Context())

	forward := events.EmitterFunc(func(_ context.Context, event events.Event) error {
		message, err := EncodeEvent(event)
		if err != nil {
			return err
		}

		return stream.Send(message)
	})

	if err := s.service.DownloadAndInstallUpdate(context.WithoutCancel(ctx), forward); err != nil {
		return toStatus(err)
	}

	return nil
}

// GetAppVersion returns the backend build version.
func (s *Server) GetAppVersion(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(s.service.GetAppVersion(withCaller(ctx))), nil
}

// GetAppEnvironment returns the environment the backend runs in.
func (s *Server) GetAppEnvironment(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(s.service.GetAppEnvironment(withCaller(ctx))), nil
}

// Greet returns the greeting for the requested name.
func (s *Server) Greet(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	return wrapperspb.String(s.service.Greet(withCaller(ctx), req.GetValue())), nil
}

// toStatus maps command errors to gRPC status codes carrying the UI message.
func toStatus(err error) error {
	code := codes.Internal

	switch {
	case errors.Is(err, updater.ErrNotSupported):
		code = codes.Unimplemented
	case errors.Is(err, updater.ErrNoPendingUpdate):
		code = codes.FailedPrecondition
	case errors.Is(err, updater.ErrCheckFailed):
		code = codes.Unavailable
	}

	return status.Error(code, shell.UserMessage(err))
}

// withCaller adds the caller identity from request metadata to the log context.
func withCaller(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}

	hostname := first(md.Get(HostnameMetadataKey))
	username := first(md.Get(UsernameMetadataKey))

	if hostname == "" && username == "" {
		return ctx
	}

	return logger.WithKV(ctx, "caller_host", hostname, "caller_user", username)
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}

	return values[0]
}
