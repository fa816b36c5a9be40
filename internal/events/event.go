package events

import (
	"context"
	"errors"
)

const (
	// ProgressEvent is emitted for every downloaded chunk.
	ProgressEvent = "updater-progress"
	// FinishedEvent is emitted once the update is installed. It has no payload.
	FinishedEvent = "updater-finished"
	// AvailableEvent is emitted by background polling when an update is found.
	AvailableEvent = "updater-available"
)

// Event is a named notification with an optional JSON-serializable payload.
type Event struct {
	// Name is one of the *Event constants.
	Name string `json:"event"`
	// Payload is the event body, nil for events without one.
	Payload any `json:"payload"`
}

// Emitter delivers events to an observer.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, event Event) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Discard drops every event.
//
//nolint:gochecknoglobals // Stateless emitter.
var Discard Emitter = EmitterFunc(func(context.Context, Event) error { return nil })

type multiEmitter []Emitter

// Multi returns an emitter that delivers every event to all non-nil emitters in order.
func Multi(emitters ...Emitter) Emitter {
	targets := make(multiEmitter, 0, len(emitters))

	for _, e := range emitters {
		if e != nil {
			targets = append(targets, e)
		}
	}

	return targets
}

// Emit delivers the event to every emitter and joins their errors.
func (m multiEmitter) Emit(ctx context.Context, event Event) error {
	var errs []error

	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
