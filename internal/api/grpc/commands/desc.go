package commands

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "appshell.v1.CommandService"

// Full method names of the service.
const (
	CheckForUpdatesMethod          = "/" + ServiceName + "/CheckForUpdates"
	DownloadAndInstallUpdateMethod = "/" + ServiceName + "/DownloadAndInstallUpdate"
	GetAppVersionMethod            = "/" + ServiceName + "/GetAppVersion"
	GetAppEnvironmentMethod        = "/" + ServiceName + "/GetAppEnvironment"
	GreetMethod                    = "/" + ServiceName + "/Greet"
)

// CommandServer is the server API of the command service.
type CommandServer interface {
	CheckForUpdates(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	DownloadAndInstallUpdate(req *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error
	GetAppVersion(ctx context.Context, req *emptypb.Empty) (*wrapperspb.StringValue, error)
	GetAppEnvironment(ctx context.Context, req *emptypb.Empty) (*wrapperspb.StringValue, error)
	Greet(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// ServiceDesc describes the command service for grpc.Server.RegisterService
// and for client streams.
//
//nolint:gochecknoglobals // Descriptor shared by server registration and client streams.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommandServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CheckForUpdates",
			Handler:    unaryHandler(CheckForUpdatesMethod, CommandServer.CheckForUpdates),
		},
		{
			MethodName: "GetAppVersion",
			Handler:    unaryHandler(GetAppVersionMethod, CommandServer.GetAppVersion),
		},
		{
			MethodName: "GetAppEnvironment",
			Handler:    unaryHandler(GetAppEnvironmentMethod, CommandServer.GetAppEnvironment),
		},
		{
			MethodName: "Greet",
			Handler:    unaryHandler(GreetMethod, CommandServer.Greet),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "DownloadAndInstallUpdate",
			Handler:       downloadAndInstallUpdateHandler,
			ServerStreams: true,
		},
	},
	Metadata: "appshell/v1/commands.proto",
}

// RegisterCommandServer registers srv on the gRPC service registrar.
func RegisterCommandServer(registrar grpc.ServiceRegistrar, srv CommandServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// unaryHandler adapts a CommandServer method to a grpc.MethodHandler.
func unaryHandler[Req, Res any](
	fullMethod string,
	call func(CommandServer, context.Context, *Req) (*Res, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(CommandServer)

		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			typed, _ := req.(*Req)
			return call(server, ctx, typed)
		}

		return interceptor(ctx, in, info, handler)
	}
}

func downloadAndInstallUpdateHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	server, _ := srv.(CommandServer)

	return server.DownloadAndInstallUpdate(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}
