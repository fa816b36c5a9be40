package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/oshokin/appshell/internal/api/grpc/commands"
	"github.com/oshokin/appshell/internal/api/http/bridge"
	"github.com/oshokin/appshell/internal/config"
	"github.com/oshokin/appshell/internal/logger"
	"github.com/oshokin/appshell/internal/platform"
	"github.com/oshokin/appshell/internal/service/checker"
)

// Options controls the backend process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// BridgeAddress provides an optional listen address override for the HTTP bridge.
	BridgeAddress string
}

const (
	// shutdownTimeout bounds the graceful stop of the HTTP bridge.
	shutdownTimeout = 5 * time.Second
	// readHeaderTimeout bounds reading request headers on the bridge.
	readHeaderTimeout = 10 * time.Second
)

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the backend and blocks until ctx is canceled or a server fails.
func Run(ctx context.Context, opts *Options) error {
	// Load configuration first to get server settings.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// The global logger is replaced here, so the named logger is taken afterwards.
	if err = logger.Configure(settings.LogLevel, settings.LogFile); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "appshell-backend")

	listenAddress, err := resolveListenAddress(settings.ListenAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	bridgeAddress := settings.BridgeAddress
	if opts.BridgeAddress != "" {
		bridgeAddress = opts.BridgeAddress
	}

	app, err := newApplication(ctx, settings, platform.Detect())
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)

	if err = serveGRPC(groupCtx, group, listenAddress, app); err != nil {
		return err
	}

	if bridgeAddress != "" {
		if err = serveBridge(groupCtx, group, bridgeAddress, settings.AllowedOrigins, app); err != nil {
			cancel()
			_ = group.Wait()

			return err
		}
	}

	if settings.CheckInterval > 0 && app.updater.Supported() {
		group.Go(func() error {
			return checker.Run(groupCtx, app.updater, app.broker, &checker.Options{
				Interval: settings.CheckInterval,
			})
		})
	}

	err = group.Wait()

	logger.Info(ctx, "Backend stopped")

	return err
}

// serveGRPC starts the command service and stops it gracefully when ctx ends.
func serveGRPC(ctx context.Context, group *errgroup.Group, address string, app *application) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	grpcServer := grpc.NewServer()
	commands.RegisterCommandServer(grpcServer, commands.NewServer(app.commands))

	logger.InfoKV(ctx, "Command server listening", "listen_address", lis.Addr().String())

	group.Go(func() error {
		if serveErr := grpcServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", serveErr)
		}

		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()

		return nil
	})

	return nil
}

// serveBridge starts the webview bridge and shuts it down when ctx ends.
func serveBridge(
	ctx context.Context,
	group *errgroup.Group,
	address string,
	allowedOrigins []string,
	app *application,
) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	httpServer := &http.Server{
		Handler:           bridge.NewHandler(app.commands, app.broker, allowedOrigins),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	logger.InfoKV(ctx, "Bridge listening", "bridge_address", lis.Addr().String())

	group.Go(func() error {
		if serveErr := httpServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve bridge: %w", serveErr)
		}

		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down bridge")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	return nil
}

// resolveListenAddress returns the override when given, the configured address otherwise.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	if _, _, err := net.SplitHostPort(configAddr); err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	return configAddr, nil
}
