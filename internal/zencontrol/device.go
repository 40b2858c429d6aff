package zencontrol

import (
	"sync"
)

// Device type discriminators.
const (
	DeviceTypeLight  = "light"
	DeviceTypeSwitch = "switch"
	DeviceTypeSensor = "sensor"
)

// Device is the common surface of every addressable device on a controller.
//
// State is a key-value map. UpdateState applies a partial update and
// notifies callbacks only when at least one value actually changed, so
// repeated identical events are absorbed silently.
type Device interface {
	// ID returns the globally unique device identifier.
	ID() string

	// Name returns the human-readable device name.
	Name() string

	// Type returns one of the DeviceType* constants.
	Type() string

	// ControllerUID returns the uid of the owning controller.
	ControllerUID() string

	// State returns an independent copy of the current state map.
	State() map[string]any

	// UpdateState merges a partial state update. Returns true when at
	// least one key changed value; callbacks fire only in that case.
	UpdateState(partial map[string]any) bool

	// RegisterCallback adds a state-change callback and returns an id
	// for removal.
	RegisterCallback(fn func()) int

	// RemoveCallback unregisters a callback. Unknown ids are no-ops.
	RemoveCallback(id int)
}

// stateListener observes every effective state change with the changed keys
// and the resulting full state. The hub installs one to mirror state to
// MQTT, persistence, and telemetry.
type stateListener func(deviceID string, changed, full map[string]any)

// baseDevice carries the identity, state map, and callback machinery shared
// by all device kinds.
type baseDevice struct {
	id            string
	name          string
	deviceType    string
	controllerUID string

	mu        sync.RWMutex
	state     map[string]any
	callbacks map[int]func()
	nextCB    int

	onChange stateListener

	events EventSink
	logger Logger
}

func newBaseDevice(id, name, deviceType, controllerUID string, events EventSink, logger Logger) baseDevice {
	return baseDevice{
		id:            id,
		name:          name,
		deviceType:    deviceType,
		controllerUID: controllerUID,
		state:         make(map[string]any),
		callbacks:     make(map[int]func()),
		events:        orNoopSink(events),
		logger:        orNoop(logger),
	}
}

func (d *baseDevice) ID() string            { return d.id }
func (d *baseDevice) Name() string          { return d.name }
func (d *baseDevice) Type() string          { return d.deviceType }
func (d *baseDevice) ControllerUID() string { return d.controllerUID }

// State returns an independent copy of the current state map.
func (d *baseDevice) State() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyState(d.state)
}

// UpdateState merges a partial update into the state map. Keys whose values
// already match are ignored; callbacks fire only when something changed.
func (d *baseDevice) UpdateState(partial map[string]any) bool {
	d.mu.Lock()

	changed := make(map[string]any)
	for key, value := range partial {
		if !stateValueEqual(d.state[key], value) {
			d.state[key] = value
			changed[key] = value
		}
	}

	if len(changed) == 0 {
		d.mu.Unlock()
		return false
	}

	full := copyState(d.state)
	callbacks := make([]func(), 0, len(d.callbacks))
	for _, cb := range d.callbacks {
		callbacks = append(callbacks, cb)
	}
	onChange := d.onChange
	d.mu.Unlock()

	for _, cb := range callbacks {
		d.invokeCallback(cb)
	}
	if onChange != nil {
		onChange(d.id, changed, full)
	}
	return true
}

// RegisterCallback adds a state-change callback.
func (d *baseDevice) RegisterCallback(fn func()) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextCB++
	d.callbacks[d.nextCB] = fn
	return d.nextCB
}

// RemoveCallback unregisters a callback.
func (d *baseDevice) RemoveCallback(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.callbacks, id)
}

// setStateListener installs the hub's change observer. Called once during
// device registration, before the device receives events.
func (d *baseDevice) setStateListener(fn stateListener) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// invokeCallback runs one callback with panic isolation so a faulty
// subscriber cannot break state propagation to the rest.
func (d *baseDevice) invokeCallback(cb func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("device callback panic recovered", "device_id", d.id, "panic", r)
		}
	}()
	cb()
}

// fireEvent publishes a domain event tagged with this device's identity.
func (d *baseDevice) fireEvent(eventType string, data map[string]any) {
	event := NewEvent(eventType, data)
	event.DeviceID = d.id
	event.ControllerID = d.controllerUID
	d.events.Publish(event)
}

// copyState shallow-copies a state map.
func copyState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

// stateValueEqual compares two state values, treating slices element-wise
// so rgb_color and supported_features compare by content.
func stateValueEqual(a, b any) bool {
	as, aok := a.([]int)
	bs, bok := b.([]int)
	if aok && bok {
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if as[i] != bs[i] {
				return false
			}
		}
		return true
	}
	astr, aok := a.([]string)
	bstr, bok := b.([]string)
	if aok && bok {
		if len(astr) != len(bstr) {
			return false
		}
		for i := range astr {
			if astr[i] != bstr[i] {
				return false
			}
		}
		return true
	}
	ab, aok := a.([]bool)
	bb, bok := b.([]bool)
	if aok && bok {
		if len(ab) != len(bb) {
			return false
		}
		for i := range ab {
			if ab[i] != bb[i] {
				return false
			}
		}
		return true
	}
	return a == b
}
