package playersync

import "context"

// StatusSource fetches the current device snapshot list. Implementations
// must return the full list on every call; the controller reconciles.
type StatusSource interface {
	Snapshots(ctx context.Context) ([]DeviceSnapshot, error)
}

// Command is a control action sent to a device.
type Command struct {
	Action string `json:"action"` // play, pause, stop, volume
	Volume *int   `json:"volume,omitempty"`
}

// CommandSink delivers control commands to the backend.
type CommandSink interface {
	Send(ctx context.Context, deviceID string, cmd Command) error
}

// CardRenderer is the UI boundary. The controller calls it with already
// gate-filtered data, so implementations render what they are given without
// further merging. All calls happen from the controller's goroutine (or the
// caller's, for direct Reconcile/SubmitCommand calls), never concurrently.
type CardRenderer interface {
	// RebuildList replaces the whole card list, in the given order.
	RebuildList(snapshots []DeviceSnapshot)

	// ApplyFields updates the changed fields of one existing card. A nil
	// value means "no data"; render a placeholder.
	ApplyFields(deviceID string, fields map[Field]interface{})

	// Notify surfaces a user-visible message for one device, e.g. a failed
	// control command.
	Notify(deviceID string, message string)
}
