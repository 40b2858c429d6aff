package zencontrol

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Multicast event discriminators.
const (
	eventTypeControllerStatus = "controller_status"
	eventTypeDeviceEvent      = "device_event"

	statusStartupComplete = "startup_complete"
	statusShutdown        = "shutdown"

	subtypeButton     = "button"
	subtypeMotion     = "motion"
	subtypeOccupancy  = "occupancy"
	subtypeLightState = "light_state"
)

// watchdogInterval is the fixed cadence of the controller liveness check.
const watchdogInterval = 60 * time.Second

// ControllerSeed declares a controller known from configuration, registered
// before any network traffic has been seen from it.
type ControllerSeed struct {
	UID              string
	IPAddress        string
	Name             string
	DiscoveryEnabled bool
}

// HubConfig carries the network endpoints and tunables the hub needs.
type HubConfig struct {
	MulticastGroup string
	MulticastPort  int
	UDPPort        int

	CommandTimeout time.Duration
	StaleTimeout   time.Duration

	Controllers []ControllerSeed
}

// StateObserver observes every effective device state change with the
// changed keys and the resulting full state. Used to mirror state to
// persistence, MQTT, and telemetry.
type StateObserver func(device Device, changed, full map[string]any)

// Hub is the process-wide composition root: it owns the UDP transport, the
// multicast listener, the controller registry, and the flat device index,
// and routes every multicast event to the right place.
//
// A device is reachable both through the flat index and through its owning
// controller; both indices reference the same object.
type Hub struct {
	config HubConfig
	logger Logger
	events EventSink

	transport *Transport
	multicast *MulticastListener
	registry  *Registry

	mu      sync.RWMutex
	devices map[string]Device

	observer StateObserver

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHub creates a hub for one multicast group / UDP port endpoint. Events
// raised by the hub and its devices go to the given sink.
func NewHub(config HubConfig, events EventSink, logger Logger) *Hub {
	logger = orNoop(logger)
	transport := NewTransport(config.UDPPort, logger)

	return &Hub{
		config:    config,
		logger:    logger,
		events:    orNoopSink(events),
		transport: transport,
		multicast: NewMulticastListener(config.MulticastGroup, config.MulticastPort, logger),
		registry:  NewRegistry(transport, config.CommandTimeout, logger),
		devices:   make(map[string]Device),
		done:      make(chan struct{}),
	}
}

// Registry returns the controller registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Transport returns the UDP transport.
func (h *Hub) Transport() *Transport { return h.transport }

// SetStateObserver installs the device state mirror. Must be called before
// Start so no change is missed.
func (h *Hub) SetStateObserver(observer StateObserver) {
	h.mu.Lock()
	h.observer = observer
	h.mu.Unlock()
}

// Start opens both sockets, seeds configured controllers, and launches the
// watchdog.
func (h *Hub) Start() error {
	if err := h.transport.Start(); err != nil {
		return fmt.Errorf("starting udp transport: %w", err)
	}

	if err := h.multicast.Start(); err != nil {
		h.transport.Stop()
		return fmt.Errorf("starting multicast listener: %w", err)
	}
	h.multicast.AddListener(h.HandleMulticastEvent)

	for _, seed := range h.config.Controllers {
		controller := h.registry.AddController(seed.UID, seed.IPAddress, seed.Name)
		controller.SetDiscoveryEnabled(seed.DiscoveryEnabled)
	}

	h.wg.Add(1)
	go h.controllerWatchdog()

	h.logger.Info("hub started",
		"multicast", fmt.Sprintf("%s:%d", h.config.MulticastGroup, h.config.MulticastPort),
		"udp_port", h.config.UDPPort,
		"controllers", len(h.config.Controllers),
	)
	return nil
}

// Stop closes both sockets and terminates the watchdog. Safe to call
// multiple times.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.multicast.Stop()
		h.transport.Stop()
		h.wg.Wait()
		h.logger.Info("hub stopped")
	})
}

// HandleMulticastEvent routes one decoded multicast event. Unrecognized
// types are logged and dropped.
func (h *Hub) HandleMulticastEvent(event map[string]any) {
	eventType, _ := event["type"].(string)
	switch eventType {
	case eventTypeControllerStatus:
		h.handleControllerStatus(event)
	case eventTypeDeviceEvent:
		h.handleDeviceEvent(event)
	default:
		h.logger.Warn("unrecognized multicast event type dropped", "type", eventType)
	}
}

// handleControllerStatus registers/refreshes a controller and applies its
// announced status. Events missing controller_id or ip_address are dropped.
func (h *Hub) handleControllerStatus(event map[string]any) {
	uid, _ := event["controller_id"].(string)
	ip, _ := event["ip_address"].(string)
	if uid == "" || ip == "" {
		h.logger.Warn("controller_status event missing controller_id or ip_address")
		return
	}

	name, _ := event["name"].(string)
	controller := h.registry.AddController(uid, ip, name)
	controller.UpdateHeartbeat(time.Now())

	status, _ := event["status"].(string)
	switch status {
	case statusStartupComplete:
		if controller.MarkReady() {
			h.publishControllerReady(controller)
		}
	case statusShutdown:
		controller.MarkNotReady()
		h.logger.Info("controller announced shutdown", "uid", uid)
	default:
		h.logger.Debug("controller status ignored", "uid", uid, "status", status)
	}
}

// handleDeviceEvent resolves the device and dispatches by subtype. Events
// for unknown devices are dropped at debug level; discovery has simply not
// seen them yet.
func (h *Hub) handleDeviceEvent(event map[string]any) {
	deviceID, _ := event["device_id"].(string)
	if deviceID == "" {
		h.logger.Warn("device_event missing device_id")
		return
	}

	device := h.GetDevice(deviceID)
	if device == nil {
		h.logger.Debug("event for unknown device dropped", "device_id", deviceID)
		return
	}

	if controller := h.registry.GetController(device.ControllerUID()); controller != nil {
		controller.UpdateHeartbeat(time.Now())
	}

	subtype, _ := event["subtype"].(string)
	switch subtype {
	case subtypeButton:
		h.routeButtonEvent(device, event)
	case subtypeMotion:
		h.routeSensorEvent(device, event, subtypeMotion)
	case subtypeOccupancy:
		h.routeSensorEvent(device, event, subtypeOccupancy)
	case subtypeLightState:
		h.routeLightStateEvent(device, event)
	default:
		h.logger.Warn("unknown device_event subtype dropped",
			"device_id", deviceID, "subtype", subtype)
	}
}

// routeButtonEvent validates and delivers a button event to a switch.
func (h *Hub) routeButtonEvent(device Device, event map[string]any) {
	sw, ok := device.(*Switch)
	if !ok {
		h.logger.Warn("button event for non-switch device dropped",
			"device_id", device.ID(), "device_type", device.Type())
		return
	}

	button, haveButton := intParam(event, "button")
	action, _ := event["action"].(string)
	if !haveButton || action == "" {
		h.logger.Warn("button event missing button or action", "device_id", device.ID())
		return
	}

	sw.HandleButtonEvent(context.Background(), button, action)
}

// routeSensorEvent validates and delivers a motion or occupancy event.
func (h *Hub) routeSensorEvent(device Device, event map[string]any, subtype string) {
	sensor, ok := device.(*Sensor)
	if !ok {
		h.logger.Warn("sensor event for non-sensor device dropped",
			"device_id", device.ID(), "device_type", device.Type())
		return
	}

	active, ok := event["active"].(bool)
	if !ok {
		h.logger.Warn("sensor event missing active flag", "device_id", device.ID())
		return
	}

	if subtype == subtypeMotion {
		sensor.HandleMotion(active)
	} else {
		sensor.HandleOccupancy(active)
	}
}

// routeLightStateEvent validates and delivers an authoritative light state.
func (h *Hub) routeLightStateEvent(device Device, event map[string]any) {
	light, ok := device.(*Light)
	if !ok {
		h.logger.Warn("light_state event for non-light device dropped",
			"device_id", device.ID(), "device_type", device.Type())
		return
	}

	state, ok := event["state"].(map[string]any)
	if !ok {
		h.logger.Warn("light_state event missing state object", "device_id", device.ID())
		return
	}

	light.HandleStateEvent(state)
}

// RegisterDevice indexes a device in the hub and its controller, installs
// the state observer, and emits a device_added event.
func (h *Hub) RegisterDevice(device Device, controller *Controller) {
	h.mu.Lock()
	h.devices[device.ID()] = device
	observer := h.observer
	h.mu.Unlock()

	controller.AddDevice(device)

	if observer != nil {
		if base := baseOf(device); base != nil {
			base.setStateListener(func(deviceID string, changed, full map[string]any) {
				observer(device, changed, full)
			})
		}
	}

	h.logger.Info("device registered",
		"device_id", device.ID(), "type", device.Type(), "controller", controller.UID())

	event := NewEvent(EventDeviceAdded, map[string]any{
		"device_type": device.Type(),
		"name":        device.Name(),
	})
	event.DeviceID = device.ID()
	event.ControllerID = controller.UID()
	h.events.Publish(event)
}

// GetDevice returns a device by id, or nil.
func (h *Hub) GetDevice(deviceID string) Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.devices[deviceID]
}

// Devices returns a snapshot of all devices.
func (h *Hub) Devices() []Device {
	h.mu.RLock()
	defer h.mu.RUnlock()

	devices := make([]Device, 0, len(h.devices))
	for _, d := range h.devices {
		devices = append(devices, d)
	}
	return devices
}

// DeviceCount returns the number of registered devices.
func (h *Hub) DeviceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

// ClearDevices empties the flat device index and every controller's device
// map. Called by user-initiated discovery before re-enumeration.
func (h *Hub) ClearDevices() {
	h.mu.Lock()
	count := len(h.devices)
	h.devices = make(map[string]Device)
	h.mu.Unlock()

	for _, controller := range h.registry.Controllers() {
		controller.mu.Lock()
		controller.devices = make(map[string]Device)
		controller.mu.Unlock()
	}

	h.logger.Info("device index cleared", "removed", count)
}

// DeviceCommand dispatches a named command with parameters to a device.
// This is the service surface collaborators call with user intent.
func (h *Hub) DeviceCommand(ctx context.Context, deviceID, command string, params map[string]any) error {
	device := h.GetDevice(deviceID)
	if device == nil {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	switch target := device.(type) {
	case *Light:
		return h.lightCommand(ctx, target, command, params)
	case *Switch:
		return h.switchCommand(ctx, target, command, params)
	default:
		return fmt.Errorf("%w: %q for %s device", ErrUnknownCommand, command, device.Type())
	}
}

func (h *Hub) lightCommand(ctx context.Context, light *Light, command string, params map[string]any) error {
	switch command {
	case "turn_on":
		return light.TurnOn(ctx, params)
	case "turn_off":
		return light.TurnOff(ctx)
	case "set_brightness":
		brightness, ok := intParam(params, "brightness")
		if !ok {
			return fmt.Errorf("set_brightness requires a brightness parameter")
		}
		return light.SetBrightness(ctx, brightness)
	case "set_rgb_color":
		rgb, ok := rgbParam(params, "rgb_color")
		if !ok {
			return fmt.Errorf("set_rgb_color requires an rgb_color triple")
		}
		return light.SetRGBColor(ctx, rgb)
	case "set_color_temp":
		temp, ok := intParam(params, "color_temp")
		if !ok {
			return fmt.Errorf("set_color_temp requires a color_temp parameter")
		}
		return light.SetColorTemp(ctx, temp)
	default:
		return fmt.Errorf("%w: %q for light", ErrUnknownCommand, command)
	}
}

func (h *Hub) switchCommand(ctx context.Context, sw *Switch, command string, params map[string]any) error {
	switch command {
	case "press_button":
		button, ok := intParam(params, "button")
		if !ok {
			return fmt.Errorf("press_button requires a button parameter")
		}
		action, _ := params["action"].(string)
		if action == "" {
			action = ButtonActionPress
		}
		return sw.PressButton(ctx, button, action)
	default:
		return fmt.Errorf("%w: %q for switch", ErrUnknownCommand, command)
	}
}

// AssignScene binds a scene to a switch button. Non-switch devices are
// rejected with ErrNotASwitch.
func (h *Hub) AssignScene(deviceID string, button int, sceneID string) error {
	device := h.GetDevice(deviceID)
	if device == nil {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	sw, ok := device.(*Switch)
	if !ok {
		return fmt.Errorf("%w: %s is a %s", ErrNotASwitch, deviceID, device.Type())
	}
	return sw.AssignScene(button, sceneID)
}

// controllerWatchdog expires stale controllers on a fixed cadence. A panic
// or error inside one cycle is contained so the watchdog never dies;
// cancellation through Stop terminates the loop cleanly.
func (h *Hub) controllerWatchdog() {
	defer h.wg.Done()

	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			h.logger.Debug("controller watchdog stopped")
			return
		case <-ticker.C:
			h.watchdogCycle()
		}
	}
}

// watchdogCycle runs one liveness sweep with panic containment.
func (h *Hub) watchdogCycle() {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("watchdog cycle panic recovered", "panic", r)
		}
	}()

	removed := h.registry.RemoveStaleControllers(h.config.StaleTimeout)
	for _, uid := range removed {
		event := NewEvent(EventControllerRemoved, nil)
		event.ControllerID = uid
		h.events.Publish(event)
	}

	for _, controller := range h.registry.Controllers() {
		h.logger.Debug("controller status",
			"uid", controller.UID(),
			"ip", controller.IP(),
			"ready", controller.IsReady(),
			"last_seen", controller.LastSeen(),
		)
	}
}

// publishEvent forwards an event to the sink.
func (h *Hub) publishEvent(event Event) {
	h.events.Publish(event)
}

// publishControllerReady emits a controller_ready event.
func (h *Hub) publishControllerReady(controller *Controller) {
	event := NewEvent(EventControllerReady, map[string]any{
		"ip_address": controller.IP(),
		"name":       controller.Name(),
	})
	event.ControllerID = controller.UID()
	h.events.Publish(event)
}

// baseOf exposes the embedded baseDevice of a concrete device.
func baseOf(device Device) *baseDevice {
	switch d := device.(type) {
	case *Light:
		return &d.baseDevice
	case *Switch:
		return &d.baseDevice
	case *Sensor:
		return &d.baseDevice
	default:
		return nil
	}
}
