package checker

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/events"
	"github.com/oshokin/appshell/internal/logger"
	"github.com/oshokin/appshell/internal/service/updater"
)

// Checker runs a single update check.
type Checker interface {
	CheckForUpdates(ctx context.Context) (update.Info, error)
}

// Options controls the polling behavior.
type Options struct {
	// Interval defines the time between update checks.
	Interval time.Duration
}

// Run polls the checker until ctx is canceled. Found updates are published as
// AvailableEvent. Failed checks are logged and polling continues.
func Run(ctx context.Context, checker Checker, emitter events.Emitter, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "update-checker")

	if opts.Interval <= 0 {
		logger.Info(ctx, "Background update checks disabled")
		return nil
	}

	if emitter == nil {
		emitter = events.Discard
	}

	logger.InfoKV(ctx, "Polling for updates", "interval", opts.Interval.String())

	if stop := poll(ctx, checker, emitter); stop {
		return nil
	}

	// Setup polling ticker with fixed interval.
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")
			return nil
		case <-ticker.C:
			if stop := poll(ctx, checker, emitter); stop {
				return nil
			}
		}
	}
}

// poll runs one check and reports whether polling should stop.
func poll(ctx context.Context, checker Checker, emitter events.Emitter) bool {
	info, err := checker.CheckForUpdates(ctx)

	switch {
	case errors.Is(err, updater.ErrNotSupported):
		logger.Warn(ctx, "Updates are not supported on this platform, polling stopped")
		return true
	case err != nil:
		logger.ErrorKV(ctx, "Check for updates failed", "error", err)
		return false
	case !info.Available:
		return false
	}

	logger.InfoKV(ctx, "New version available", "version", info.Version, "date", info.Date)

	if err = emitter.Emit(ctx, events.Event{Name: events.AvailableEvent, Payload: info}); err != nil {
		logger.WarnKV(ctx, "Could not announce update", "error", err)
	}

	return false
}
