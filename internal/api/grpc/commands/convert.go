package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/events"
)

var errMissingEventName = errors.New("event message has no name")

// toStruct converts a JSON-serializable value into a protobuf Struct.
func toStruct(value any) (*structpb.Struct, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	message := new(structpb.Struct)
	if err = protojson.Unmarshal(data, message); err != nil {
		return nil, fmt.Errorf("convert message: %w", err)
	}

	return message, nil
}

// fromStruct decodes a protobuf Struct into dst through its JSON form.
func fromStruct(message *structpb.Struct, dst any) error {
	data, err := protojson.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	if err = json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	return nil
}

// EncodeEvent converts an updater event into its stream message.
func EncodeEvent(event events.Event) (*structpb.Struct, error) {
	return toStruct(event)
}

// DecodeEvent converts a stream message back into an event with a typed payload:
// update.Progress for progress events, update.Info for available events and
// nil for the rest.
func DecodeEvent(message *structpb.Struct) (events.Event, error) {
	var raw struct {
		Name    string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := fromStruct(message, &raw); err != nil {
		return events.Event{}, err
	}

	if raw.Name == "" {
		return events.Event{}, errMissingEventName
	}

	event := events.Event{Name: raw.Name}

	switch raw.Name {
	case events.ProgressEvent:
		var progress update.Progress
		if err := json.Unmarshal(raw.Payload, &progress); err != nil {
			return events.Event{}, fmt.Errorf("decode progress: %w", err)
		}

		event.Payload = progress
	case events.AvailableEvent:
		var info update.Info
		if err := json.Unmarshal(raw.Payload, &info); err != nil {
			return events.Event{}, fmt.Errorf("decode update info: %w", err)
		}

		event.Payload = info
	}

	return event, nil
}

// EncodeInfo converts an update check result into its response message.
func EncodeInfo(info update.Info) (*structpb.Struct, error) {
	return toStruct(info)
}

// DecodeInfo converts a response message back into an update check result.
func DecodeInfo(message *structpb.Struct) (update.Info, error) {
	var info update.Info
	if err := fromStruct(message, &info); err != nil {
		return update.Info{}, err
	}

	return info, nil
}
