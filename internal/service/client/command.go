package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oshokin/appshell/internal/config"
	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/events"
	"github.com/oshokin/appshell/internal/logger"
	"github.com/oshokin/appshell/internal/service/common"
)

// Actions understood by Run.
const (
	ActionCheck       = "check"
	ActionInstall     = "install"
	ActionVersion     = "version"
	ActionEnvironment = "environment"
	ActionGreet       = "greet"
)

// Options configures a single backend invocation.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides the backend address from config when specified.
	ServerAddress string
	// Action is the command to invoke.
	Action string
	// Name is the greet argument.
	Name string
	// Output receives the printed results, stdout when nil.
	Output io.Writer
}

var errUnknownAction = errors.New("unknown action")

// Run connects to the backend and performs the requested action.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "appshell-ctl")

	serverAddress, timeout, err := resolveConnection(opts)
	if err != nil {
		return err
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	clientOptions := []common.Option{common.WithCallTimeout(timeout)}

	// Identify current user and hostname for the backend audit log.
	if actor, actorErr := common.DetectActor(); actorErr == nil {
		clientOptions = append(clientOptions, common.WithActor(actor))
	} else {
		logger.DebugKV(ctx, "Could not detect actor", "error", actorErr)
	}

	client, err := common.Dial(ctx, serverAddress, clientOptions...)
	if err != nil {
		return err
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	logger.DebugKV(ctx, "Invoking backend", "server_address", serverAddress, "action", opts.Action)

	if err = invoke(ctx, client, opts, out); err != nil {
		return errors.New(common.StatusMessage(err))
	}

	return nil
}

// resolveConnection returns the backend address and call timeout. A missing
// settings file is tolerated when the address is given explicitly.
func resolveConnection(opts *Options) (string, time.Duration, error) {
	cfg, err := config.Load(opts.ConfigPath)

	var (
		address   string
		timeout   = config.DefaultTimeout
		endpoints int
	)

	switch {
	case err == nil:
		address, timeout, endpoints = cfg.ListenAddress, cfg.Timeout, len(cfg.Endpoints)
	case opts.ServerAddress == "":
		return "", 0, err
	}

	if opts.ServerAddress != "" {
		address = opts.ServerAddress
	}

	if opts.Action == ActionCheck {
		timeout = checkTimeout(timeout, endpoints)
	}

	return address, timeout, nil
}

// checkTimeout outlasts a backend check that waits the feed timeout on every
// endpoint in turn. Without settings at least one endpoint is assumed.
func checkTimeout(timeout time.Duration, endpoints int) time.Duration {
	return timeout * time.Duration(max(endpoints, 1)+1)
}

func invoke(ctx context.Context, client *common.Client, opts *Options, out io.Writer) error {
	switch opts.Action {
	case ActionCheck:
		info, err := client.CheckForUpdates(ctx)
		if err != nil {
			return err
		}

		printInfo(out, info)
	case ActionInstall:
		err := client.DownloadAndInstallUpdate(ctx, func(event events.Event) {
			printEvent(out, event)
		})
		if err != nil {
			return err
		}
	case ActionVersion:
		value, err := client.GetAppVersion(ctx)
		return printString(out, value, err)
	case ActionEnvironment:
		value, err := client.GetAppEnvironment(ctx)
		return printString(out, value, err)
	case ActionGreet:
		value, err := client.Greet(ctx, opts.Name)
		return printString(out, value, err)
	default:
		return fmt.Errorf("%w: %q", errUnknownAction, opts.Action)
	}

	return nil
}

func printInfo(out io.Writer, info update.Info) {
	if !info.Available {
		_, _ = fmt.Fprintln(out, info.Notes)
		return
	}

	_, _ = fmt.Fprintf(out, "Update available: %s (released %s)\n", info.Version, info.Date)

	if info.Notes != "" {
		_, _ = fmt.Fprintln(out, info.Notes)
	}
}

func printEvent(out io.Writer, event events.Event) {
	switch event.Name {
	case events.ProgressEvent:
		progress, ok := event.Payload.(update.Progress)
		if !ok {
			return
		}

		if progress.ContentLength != nil {
			_, _ = fmt.Fprintf(out, "Downloaded %d of %d bytes\n", progress.Downloaded, *progress.ContentLength)
		} else {
			_, _ = fmt.Fprintf(out, "Downloaded %d bytes\n", progress.Downloaded)
		}
	case events.FinishedEvent:
		_, _ = fmt.Fprintln(out, "Update installed")
	}
}

func printString(out io.Writer, value string, err error) error {
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, value)

	return err
}
