package mqtt

import "fmt"

// Topic prefixes for the ZenBridge MQTT surface.
//
// All topics use the flat scheme: zenbridge/{category}/...
const (
	// TopicPrefix is the base for all ZenBridge topics.
	TopicPrefix = "zenbridge"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "zenbridge/system"
)

// Topics provides builders for ZenBridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("light-zc-0001-12")
//	// Returns: "zenbridge/device/light-zc-0001-12/state"
type Topics struct{}

// DeviceState returns the retained state topic for a device.
//
// Example: zenbridge/device/light-zc-0001-12/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// Event returns the topic for a domain event type.
//
// Example: zenbridge/event/device_added
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// ControllerStatus returns the retained status topic for a controller.
//
// Example: zenbridge/controller/zc-0001/status
func (Topics) ControllerStatus(uid string) string {
	return fmt.Sprintf("%s/controller/%s/status", TopicPrefix, uid)
}

// SystemStatus returns the system status topic (online/offline + LWT).
//
// Example: zenbridge/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStates returns a pattern matching all device state topics.
//
// Pattern: zenbridge/device/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/device/+/state", TopicPrefix)
}

// AllEvents returns a pattern matching all domain events.
//
// Pattern: zenbridge/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefix)
}

// AllControllerStatuses returns a pattern matching all controller statuses.
//
// Pattern: zenbridge/controller/+/status
func (Topics) AllControllerStatuses() string {
	return fmt.Sprintf("%s/controller/+/status", TopicPrefix)
}

// AllTopics returns a pattern matching all ZenBridge topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: zenbridge/#
func (Topics) AllTopics() string {
	return "zenbridge/#"
}
