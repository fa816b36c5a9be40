//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oshokin/appshell/internal/api/grpc/commands"
	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/events"
	"github.com/oshokin/appshell/internal/service/updater"
)

const bufferSize = 1 << 20

// fakeService is an in-memory command implementation.
type fakeService struct {
	mu         sync.Mutex
	info       update.Info
	checkErr   error
	installErr error
	callers    []string
}

func (f *fakeService) record(ctx context.Context) {
	md, _ := metadata.FromIncomingContext(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.callers = append(f.callers, md.Get(commands.UsernameMetadataKey)...)
}

func (f *fakeService) CheckForUpdates(ctx context.Context) (update.Info, error) {
	f.record(ctx)
	return f.info, f.checkErr
}

func (f *fakeService) DownloadAndInstallUpdate(ctx context.Context, extra events.Emitter) error {
	if f.installErr != nil {
		return f.installErr
	}

	total := uint64(8)

	for _, chunk := range []uint64{5, 3} {
		_ = extra.Emit(ctx, events.Event{
			Name:    events.ProgressEvent,
			Payload: update.Progress{ChunkLength: chunk, ContentLength: &total, Downloaded: 0},
		})
	}

	return extra.Emit(ctx, events.Event{Name: events.FinishedEvent})
}

func (f *fakeService) GetAppVersion(context.Context) string { return "1.0.0" }

func (f *fakeService) GetAppEnvironment(context.Context) string { return "development" }

func (f *fakeService) Greet(_ context.Context, name string) string { return "Hello, " + name }

// startServer serves the fake over an in-memory listener and returns a connected client.
func startServer(t *testing.T, svc commands.Service, opts ...Option) *Client {
	t.Helper()

	listener := bufconn.Listen(bufferSize)
	server := grpc.NewServer()
	commands.RegisterCommandServer(server, commands.NewServer(svc))

	go func() {
		_ = server.Serve(listener)
	}()

	t.Cleanup(server.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	})

	client, err := Dial(context.Background(), "passthrough:///bufnet", append(opts, WithDialOptions(dialer))...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestClient_Commands exercises every unary command over the wire.
func TestClient_Commands(t *testing.T) {
	t.Parallel()

	info := update.Info{Version: "1.2.0", Notes: "bugfix", Date: "Unknown", Available: true}
	svc := &fakeService{info: info}
	client := startServer(t, svc, WithActor(&Actor{Hostname: "workstation", Username: "ada"}))
	ctx := context.Background()

	got, err := client.CheckForUpdates(ctx)
	require.NoError(t, err)
	require.Equal(t, info, got)

	v, err := client.GetAppVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, "1.0.0", v)

	env, err := client.GetAppEnvironment(ctx)
	require.NoError(t, err)
	require.Equal(t, "development", env)

	greeting, err := client.Greet(ctx, "Ada")
	require.NoError(t, err)
	require.Equal(t, "Hello, Ada", greeting)

	svc.mu.Lock()
	require.Equal(t, []string{"ada"}, svc.callers)
	svc.mu.Unlock()
}

// TestClient_CheckForUpdates_Errors maps updater errors to status codes and UI messages.
func TestClient_CheckForUpdates_Errors(t *testing.T) {
	t.Parallel()

	client := startServer(t, &fakeService{checkErr: updater.ErrNotSupported})

	_, err := client.CheckForUpdates(context.Background())
	require.Equal(t, codes.Unimplemented, status.Code(err))

	require.Equal(t, "Updates not supported on this platform", StatusMessage(err))
}

// TestClient_DownloadAndInstallUpdate streams decoded events in order.
func TestClient_DownloadAndInstallUpdate(t *testing.T) {
	t.Parallel()

	client := startServer(t, &fakeService{})

	var received []events.Event

	err := client.DownloadAndInstallUpdate(context.Background(), func(e events.Event) {
		received = append(received, e)
	})
	require.NoError(t, err)
	require.Len(t, received, 3)

	total := uint64(8)
	require.Equal(t, events.Event{
		Name:    events.ProgressEvent,
		Payload: update.Progress{ChunkLength: 5, ContentLength: &total},
	}, received[0])
	require.Equal(t, events.Event{Name: events.FinishedEvent}, received[2])

	failing := startServer(t, &fakeService{installErr: updater.ErrNoPendingUpdate})

	err = failing.DownloadAndInstallUpdate(context.Background(), nil)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	require.ErrorContains(t, err, "No pending update found")
}
