package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/events"
	"github.com/oshokin/appshell/internal/logger"
	"github.com/oshokin/appshell/internal/version"
)

// Invoke names of the commands.
const (
	CheckForUpdatesCommand          = "check_for_updates"
	DownloadAndInstallUpdateCommand = "download_and_install_update"
	GetAppVersionCommand            = "get_app_version"
	GetAppEnvironmentCommand        = "get_app_environment"
	GreetCommand                    = "greet"

	greetingFormat = "Hello, %s! You've been greeted from Go!"
)

var (
	// ErrUnknownCommand is returned by Invoke for names outside the command table.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidArguments is returned by Invoke when arguments cannot be decoded.
	ErrInvalidArguments = errors.New("invalid command arguments")
)

// Updater is the update flow the commands expose.
type Updater interface {
	CheckForUpdates(ctx context.Context) (update.Info, error)
	DownloadAndInstallUpdate(ctx context.Context, emitter events.Emitter) error
}

// GreetArgs are the arguments of the greet command.
type GreetArgs struct {
	// Name is who to greet.
	Name string `json:"name"`
}

// Commands dispatches front-end commands.
type Commands struct {
	// updater runs update checks and installs.
	updater Updater
	// broker receives every event produced by a command.
	broker events.Emitter
	// environment resolves the reported environment.
	environment func() string
}

// New creates the command table. broker may be nil.
func New(updater Updater, broker events.Emitter) *Commands {
	return &Commands{
		updater:     updater,
		broker:      broker,
		environment: version.Environment,
	}
}

// CheckForUpdates asks the release feed for a newer version.
func (c *Commands) CheckForUpdates(ctx context.Context) (update.Info, error) {
	return c.updater.CheckForUpdates(ctx)
}

// DownloadAndInstallUpdate installs the pending update. Events go to the broker
// and, when given, to extra as well.
func (c *Commands) DownloadAndInstallUpdate(ctx context.Context, extra events.Emitter) error {
	return c.updater.DownloadAndInstallUpdate(ctx, events.Multi(c.broker, extra))
}

// GetAppVersion returns the build version.
func (c *Commands) GetAppVersion(context.Context) string {
	return version.Short()
}

// GetAppEnvironment returns the environment the application runs in.
func (c *Commands) GetAppEnvironment(context.Context) string {
	return c.environment()
}

// Greet returns the greeting for name.
func (c *Commands) Greet(ctx context.Context, name string) string {
	logger.DebugKV(ctx, "Greeting", "name", name)
	return fmt.Sprintf(greetingFormat, name)
}

// Invoke runs the command with JSON arguments and returns its JSON-serializable result.
func (c *Commands) Invoke(ctx context.Context, command string, args json.RawMessage) (any, error) {
	ctx = logger.WithKV(ctx, "command", command)

	switch command {
	case CheckForUpdatesCommand:
		return c.CheckForUpdates(ctx)
	case DownloadAndInstallUpdateCommand:
		// The install outlives the caller: a closed UI connection must not abort it.
		return nil, c.DownloadAndInstallUpdate(context.WithoutCancel(ctx), nil)
	case GetAppVersionCommand:
		return c.GetAppVersion(ctx), nil
	case GetAppEnvironmentCommand:
		return c.GetAppEnvironment(ctx), nil
	case GreetCommand:
		var greet GreetArgs
		if err := decodeArgs(args, &greet); err != nil {
			return nil, err
		}

		return c.Greet(ctx, greet.Name), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// decodeArgs decodes optional JSON arguments. An empty body decodes to the zero value.
func decodeArgs(args json.RawMessage, dst any) error {
	trimmed := strings.TrimSpace(string(args))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	if err := json.Unmarshal([]byte(trimmed), dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	return nil
}

// UserMessage renders an error the way the UI shows it: the message with its
// first letter capitalized.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	message := err.Error()

	first, size := utf8.DecodeRuneInString(message)
	if first == utf8.RuneError {
		return message
	}

	return string(unicode.ToUpper(first)) + message[size:]
}
