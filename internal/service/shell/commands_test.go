package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/events"
	"github.com/oshokin/appshell/internal/service/updater"
	"github.com/oshokin/appshell/internal/version"
)

// stubUpdater emits a fixed event sequence on install.
type stubUpdater struct {
	info       update.Info
	checkErr   error
	installErr error
	canceled   bool
}

func (s *stubUpdater) CheckForUpdates(context.Context) (update.Info, error) {
	return s.info, s.checkErr
}

func (s *stubUpdater) DownloadAndInstallUpdate(ctx context.Context, emitter events.Emitter) error {
	s.canceled = ctx.Err() != nil

	if s.installErr != nil {
		return s.installErr
	}

	_ = emitter.Emit(ctx, events.Event{Name: events.ProgressEvent, Payload: update.Progress{ChunkLength: 1, Downloaded: 1}})
	_ = emitter.Emit(ctx, events.Event{Name: events.FinishedEvent})

	return nil
}

// TestCommands_Invoke covers every command of the table.
func TestCommands_Invoke(t *testing.T) {
	t.Parallel()

	info := update.Info{Version: "1.2.0", Notes: "bugfix", Date: "Unknown", Available: true}
	commands := New(&stubUpdater{info: info}, nil)
	commands.environment = func() string { return "staging" }

	result, err := commands.Invoke(context.Background(), CheckForUpdatesCommand, nil)
	require.NoError(t, err)
	require.Equal(t, info, result)

	result, err = commands.Invoke(context.Background(), GetAppVersionCommand, json.RawMessage("{}"))
	require.NoError(t, err)
	require.Equal(t, version.Short(), result)

	result, err = commands.Invoke(context.Background(), GetAppEnvironmentCommand, nil)
	require.NoError(t, err)
	require.Equal(t, "staging", result)

	result, err = commands.Invoke(context.Background(), GreetCommand, json.RawMessage(`{"name":"Ada"}`))
	require.NoError(t, err)
	require.Equal(t, "Hello, Ada! You've been greeted from Go!", result)

	result, err = commands.Invoke(context.Background(), GreetCommand, nil)
	require.NoError(t, err)
	require.Equal(t, "Hello, ! You've been greeted from Go!", result)

	_, err = commands.Invoke(context.Background(), GreetCommand, json.RawMessage(`{"name":`))
	require.ErrorIs(t, err, ErrInvalidArguments)

	_, err = commands.Invoke(context.Background(), "open_window", nil)
	require.ErrorIs(t, err, ErrUnknownCommand)
}

// TestCommands_DownloadAndInstallUpdate fans events out and detaches from cancellation.
func TestCommands_DownloadAndInstallUpdate(t *testing.T) {
	t.Parallel()

	broker := events.NewBroker(4)
	sub := broker.Subscribe()

	defer sub.Close()

	stub := &stubUpdater{}
	commands := New(stub, broker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := commands.Invoke(ctx, DownloadAndInstallUpdateCommand, nil)
	require.NoError(t, err)
	require.Nil(t, result)
	require.False(t, stub.canceled)

	require.Equal(t, events.ProgressEvent, (<-sub.Events()).Name)
	require.Equal(t, events.FinishedEvent, (<-sub.Events()).Name)

	var extra []string

	err = commands.DownloadAndInstallUpdate(context.Background(), events.EmitterFunc(
		func(_ context.Context, e events.Event) error {
			extra = append(extra, e.Name)
			return nil
		}))
	require.NoError(t, err)
	require.Equal(t, []string{events.ProgressEvent, events.FinishedEvent}, extra)
}

// TestUserMessage renders the exact UI strings.
func TestUserMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: updater.ErrNotSupported, want: "Updates not supported on this platform"},
		{err: updater.ErrNoPendingUpdate, want: "No pending update found"},
		{
			err:  fmt.Errorf("%w: %w", updater.ErrCheckFailed, errors.New("timeout")),
			want: "Failed to check for updates: timeout",
		},
		{
			err:  fmt.Errorf("%w: %w", updater.ErrInstallFailed, errors.New("disk full")),
			want: "Failed to download and install update: disk full",
		},
		{err: nil, want: ""},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, UserMessage(tt.err))
	}
}
