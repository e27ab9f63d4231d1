package session

import "github.com/nerrad567/buttrest/internal/buttplug"

// EventKind classifies inbound events.
type EventKind int

const (
	// EventResponse is a reply tagged with the id of a client message
	// (Ok, Error, DeviceList, SensorReading, ServerInfo).
	EventResponse EventKind = iota + 1

	// EventDeviceAdded carries a *buttplug.DeviceAdded.
	EventDeviceAdded

	// EventDeviceRemoved carries a *buttplug.DeviceRemoved.
	EventDeviceRemoved

	// EventScanningFinished carries a *buttplug.ScanningFinished.
	EventScanningFinished

	// EventServerError is an Error message with the system id, not tied to
	// any command.
	EventServerError

	// EventConnectionLost is synthesised once per connection when the
	// transport goes down. Message is nil and Err holds the cause.
	EventConnectionLost
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventResponse:
		return "response"
	case EventDeviceAdded:
		return "device_added"
	case EventDeviceRemoved:
		return "device_removed"
	case EventScanningFinished:
		return "scanning_finished"
	case EventServerError:
		return "server_error"
	case EventConnectionLost:
		return "connection_lost"
	default:
		return "unknown"
	}
}

// Event is one item of the inbound stream.
type Event struct {
	Kind    EventKind
	Message buttplug.Message
	Err     error

	// Generation is the number of the connection the event came from,
	// matching Session.Generation while that connection is current.
	Generation uint64
}

// classify maps a decoded message to its event kind.
func classify(m buttplug.Message) EventKind {
	switch m.(type) {
	case *buttplug.DeviceAdded:
		return EventDeviceAdded
	case *buttplug.DeviceRemoved:
		return EventDeviceRemoved
	case *buttplug.ScanningFinished:
		return EventScanningFinished
	}
	if m.MessageID() == buttplug.SystemID {
		return EventServerError
	}
	return EventResponse
}
