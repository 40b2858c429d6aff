package zencontrol

import (
	"time"
)

// Sensor kinds.
const (
	SensorTypeMotion    = "motion"
	SensorTypeOccupancy = "occupancy"
)

// Sensor state keys.
const (
	stateKeyActive        = "active"
	stateKeyLastTriggered = "last_triggered"
)

// Sensor is a binary motion or occupancy detector. It tracks whether it is
// currently active and when it last became active.
type Sensor struct {
	baseDevice

	sensorType string

	// now is injectable for last_triggered tests.
	now func() time.Time
}

// NewSensor creates a sensor of the given kind. Kinds other than occupancy
// fall back to motion.
func NewSensor(id, name string, controller *Controller, sensorType string, events EventSink, logger Logger) *Sensor {
	if sensorType != SensorTypeOccupancy {
		sensorType = SensorTypeMotion
	}

	s := &Sensor{
		baseDevice: newBaseDevice(id, name, DeviceTypeSensor, controller.UID(), events, logger),
		sensorType: sensorType,
		now:        time.Now,
	}
	s.state[stateKeyActive] = false
	s.state[stateKeyLastTriggered] = nil
	return s
}

// SensorType returns the sensor kind.
func (s *Sensor) SensorType() string { return s.sensorType }

// IsActive reports whether the sensor currently detects presence.
func (s *Sensor) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active, _ := s.state[stateKeyActive].(bool)
	return active
}

// HandleMotion applies a motion event. On an occupancy sensor the event is
// logged and ignored.
func (s *Sensor) HandleMotion(active bool) {
	if s.sensorType != SensorTypeMotion {
		s.logger.Warn("motion event on non-motion sensor ignored",
			"device_id", s.id, "sensor_type", s.sensorType)
		return
	}
	s.applyActivity(EventMotion, active)
}

// HandleOccupancy applies an occupancy event. On a motion sensor the event
// is logged and ignored.
func (s *Sensor) HandleOccupancy(active bool) {
	if s.sensorType != SensorTypeOccupancy {
		s.logger.Warn("occupancy event on non-occupancy sensor ignored",
			"device_id", s.id, "sensor_type", s.sensorType)
		return
	}
	s.applyActivity(EventOccupancy, active)
}

// applyActivity records an activity transition. last_triggered holds the
// activation time while the sensor is active and is cleared on the
// transition back to inactive.
func (s *Sensor) applyActivity(eventType string, active bool) {
	update := map[string]any{stateKeyActive: active}
	if active {
		update[stateKeyLastTriggered] = s.now().UTC().Format(time.RFC3339)
	} else {
		update[stateKeyLastTriggered] = nil
	}

	if s.UpdateState(update) {
		s.fireEvent(eventType, map[string]any{"active": active})
	}
}
