//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/appshell/internal/api/grpc/commands"
	"github.com/oshokin/appshell/internal/config"
	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/events"
)

// Client wraps the gRPC command service with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the backend.
	conn *grpc.ClientConn
	// actor is sent with every call, nil to stay anonymous.
	actor *Actor

	// callTimeout is the default timeout for individual unary calls.
	callTimeout time.Duration
	// dialOptions are appended to the defaults when connecting.
	dialOptions []grpc.DialOption
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for unary calls. Installs are not bounded by it.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithActor sends the actor identity with every call.
func WithActor(actor *Actor) Option {
	return func(c *Client) {
		c.actor = actor
	}
}

// WithDialOptions adds gRPC dial options, e.g. a custom dialer.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial establishes a gRPC connection to the backend.
// Note: this uses insecure transport credentials; the backend is meant to
// listen on a loopback address.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &Client{
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, client.dialOptions...)

	// Use the non-context NewClient API recommended by grpc-go
	// (DialContext is deprecated as of grpc-go v1.60+).
	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial backend: %w", err)
	}

	client.conn = conn

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// CheckForUpdates asks the backend to check the release feed.
func (c *Client) CheckForUpdates(ctx context.Context) (update.Info, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response := new(structpb.Struct)
	if err := c.conn.Invoke(callCtx, commands.CheckForUpdatesMethod, new(emptypb.Empty), response); err != nil {
		return update.Info{}, fmt.Errorf("check for updates: %w", err)
	}

	return commands.DecodeInfo(response)
}

// DownloadAndInstallUpdate asks the backend to install the pending update and
// calls onEvent for every streamed event until the install ends.
func (c *Client) DownloadAndInstallUpdate(ctx context.Context, onEvent func(events.Event)) error {
	ctx = c.actor.outgoing(ctx)

	stream, err := c.conn.NewStream(ctx, &commands.ServiceDesc.Streams[0], commands.DownloadAndInstallUpdateMethod)
	if err != nil {
		return fmt.Errorf("open install stream: %w", err)
	}

	if err = stream.SendMsg(new(emptypb.Empty)); err != nil {
		return fmt.Errorf("send install request: %w", err)
	}

	if err = stream.CloseSend(); err != nil {
		return fmt.Errorf("close install request: %w", err)
	}

	for {
		message := new(structpb.Struct)

		err = stream.RecvMsg(message)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("download and install update: %w", err)
		}

		event, decodeErr := commands.DecodeEvent(message)
		if decodeErr != nil {
			return decodeErr
		}

		if onEvent != nil {
			onEvent(event)
		}
	}
}

// GetAppVersion returns the backend build version.
func (c *Client) GetAppVersion(ctx context.Context) (string, error) {
	return c.invokeString(ctx, commands.GetAppVersionMethod, new(emptypb.Empty))
}

// GetAppEnvironment returns the backend environment.
func (c *Client) GetAppEnvironment(ctx context.Context) (string, error) {
	return c.invokeString(ctx, commands.GetAppEnvironmentMethod, new(emptypb.Empty))
}

// Greet asks the backend to greet name.
func (c *Client) Greet(ctx context.Context, name string) (string, error) {
	return c.invokeString(ctx, commands.GreetMethod, wrapperspb.String(name))
}

// invokeString calls a unary method answering a StringValue.
func (c *Client) invokeString(ctx context.Context, method string, request any) (string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(callCtx, method, request, response); err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}

	return response.GetValue(), nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = c.actor.outgoing(ctx)

	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

// StatusMessage returns the message of the gRPC status wrapped in err, or
// err.Error() when err carries no status.
func StatusMessage(err error) string {
	if err == nil {
		return ""
	}

	var withStatus interface{ GRPCStatus() *status.Status }
	if errors.As(err, &withStatus) {
		return withStatus.GRPCStatus().Message()
	}

	return err.Error()
}
