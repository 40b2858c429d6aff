package zencontrol

import (
	"time"

	"github.com/google/uuid"
)

// Domain event types raised for collaborator consumption.
const (
	// EventDeviceAdded is emitted for each device registered during discovery.
	EventDeviceAdded = "device_added"

	// EventButtonAction carries a switch button transition
	// {button, action, state}.
	EventButtonAction = "button_action"

	// EventMotion and EventOccupancy carry sensor transitions {active}.
	EventMotion    = "motion"
	EventOccupancy = "occupancy"

	// EventLightStateChanged mirrors a light's state after any change.
	EventLightStateChanged = "light_state_changed"

	// EventDiscoveryComplete and EventDiscoveryError terminate a discovery
	// run. Exactly one of the two is emitted per run.
	EventDiscoveryComplete = "discovery_complete"
	EventDiscoveryError    = "discovery_error"

	// EventControllerReady and EventControllerRemoved surface registry
	// transitions.
	EventControllerReady   = "controller_ready"
	EventControllerRemoved = "controller_removed"
)

// Event is a domain event raised by the hub, devices, or discovery.
type Event struct {
	// ID is a unique identifier for correlation and deduplication.
	ID string `json:"id"`

	// Type is one of the Event* constants.
	Type string `json:"type"`

	// DeviceID identifies the originating device, if any.
	DeviceID string `json:"device_id,omitempty"`

	// ControllerID identifies the originating controller, if any.
	ControllerID string `json:"controller_id,omitempty"`

	// Data carries type-specific fields.
	Data map[string]any `json:"data,omitempty"`

	// Timestamp is when the event was raised.
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an Event with a fresh ID and the current time.
func NewEvent(eventType string, data map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// EventSink receives domain events. Implementations must be safe for
// concurrent use and must not block for extended periods.
type EventSink interface {
	Publish(event Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(event Event)

// Publish calls the underlying function.
func (f EventSinkFunc) Publish(event Event) { f(event) }

// MultiSink fans an event out to multiple sinks. A panic in one sink is
// recovered so the remaining sinks still receive the event.
type MultiSink struct {
	sinks  []EventSink
	logger Logger
}

// NewMultiSink creates a MultiSink over the given sinks. Nil sinks are
// skipped.
func NewMultiSink(logger Logger, sinks ...EventSink) *MultiSink {
	var kept []EventSink
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{sinks: kept, logger: orNoop(logger)}
}

// Publish delivers the event to every sink.
func (m *MultiSink) Publish(event Event) {
	for _, s := range m.sinks {
		m.publishOne(s, event)
	}
}

func (m *MultiSink) publishOne(sink EventSink, event Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event sink panic recovered",
				"event_type", event.Type,
				"panic", r,
			)
		}
	}()
	sink.Publish(event)
}

// noopSink discards events. Used when no sink is provided.
type noopSink struct{}

func (noopSink) Publish(Event) {}

// orNoopSink returns the given sink, or a no-op sink if nil.
func orNoopSink(s EventSink) EventSink {
	if s == nil {
		return noopSink{}
	}
	return s
}
