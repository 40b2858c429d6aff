package zencontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Discovery commands understood by the controller firmware.
const (
	commandQueryStatus  = "QUERY_STATUS"
	commandQueryDevices = "QUERY_DEVICES"
)

// discoveredDevice is one entry in a controller's QUERY_DEVICES response.
type discoveredDevice struct {
	DeviceID   string `json:"device_id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	IsColor    bool   `json:"is_color"`
	NumButtons int    `json:"num_buttons"`
	Mode       string `json:"mode"`
	SensorType string `json:"sensor_type"`
}

// queryDevicesResponse is the JSON body of a QUERY_DEVICES response.
type queryDevicesResponse struct {
	Devices []discoveredDevice `json:"devices"`
}

// Discovery enumerates controllers and their devices, populating the hub.
//
// At most one run executes at a time. A second Run while one is in flight
// is a silent no-op; in particular it does not clear the device index a
// second time.
type Discovery struct {
	hub     *Hub
	timeout time.Duration
	logger  Logger

	running atomic.Bool
}

// NewDiscovery creates a discovery manager over the hub. timeout bounds
// one whole run.
func NewDiscovery(hub *Hub, timeout time.Duration, logger Logger) *Discovery {
	return &Discovery{
		hub:     hub,
		timeout: timeout,
		logger:  orNoop(logger),
	}
}

// Running reports whether a discovery run is in flight.
func (d *Discovery) Running() bool { return d.running.Load() }

// Run executes one discovery pass. userInitiated clears the hub's device
// index before re-enumerating, so stale devices disappear; background runs
// only add.
//
// Any failure inside the run is converted into a discovery_error event
// rather than returned, and the running guard is always cleared so future
// runs are never blocked. Returns false when a run was already in flight.
func (d *Discovery) Run(ctx context.Context, userInitiated bool) bool {
	if !d.running.CompareAndSwap(false, true) {
		d.logger.Debug("discovery already running, request ignored")
		return false
	}
	defer d.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	d.logger.Info("discovery started", "user_initiated", userInitiated)

	if userInitiated {
		d.hub.ClearDevices()
	}

	if err := d.discover(ctx); err != nil {
		d.logger.Error("discovery failed", "error", err)
		d.hub.publishEvent(NewEvent(EventDiscoveryError, map[string]any{
			"error": err.Error(),
		}))
		return true
	}

	d.logger.Info("discovery complete", "devices", d.hub.DeviceCount())
	d.hub.publishEvent(NewEvent(EventDiscoveryComplete, map[string]any{
		"device_count": d.hub.DeviceCount(),
	}))
	return true
}

// discover refreshes controller readiness then enumerates devices from
// every ready controller with discovery enabled.
func (d *Discovery) discover(ctx context.Context) error {
	d.refreshControllers(ctx)

	ready := d.hub.Registry().GetReadyControllers()
	if len(ready) == 0 {
		return fmt.Errorf("no ready controllers")
	}

	for _, controller := range ready {
		if !controller.DiscoveryEnabled() {
			d.logger.Debug("controller excluded from discovery", "uid", controller.UID())
			continue
		}
		if err := d.queryDevices(ctx, controller); err != nil {
			return fmt.Errorf("querying devices from %s: %w", controller.UID(), err)
		}
	}
	return nil
}

// refreshControllers probes every known controller with QUERY_STATUS. A
// response proves liveness and readiness; an unresponsive controller is
// left for the watchdog to expire.
func (d *Discovery) refreshControllers(ctx context.Context) {
	for _, controller := range d.hub.Registry().Controllers() {
		payload := map[string]any{"command": commandQueryStatus}
		if _, err := controller.SendCommand(ctx, payload); err != nil {
			d.logger.Warn("controller status query failed",
				"uid", controller.UID(), "ip", controller.IP(), "error", err)
			continue
		}

		controller.UpdateHeartbeat(time.Now())
		if controller.MarkReady() {
			d.hub.publishControllerReady(controller)
		}
	}
}

// queryDevices enumerates one controller's devices and registers each with
// the hub, emitting a device_added event per device.
func (d *Discovery) queryDevices(ctx context.Context, controller *Controller) error {
	payload := map[string]any{"command": commandQueryDevices}
	response, err := controller.SendCommand(ctx, payload)
	if err != nil {
		return err
	}

	var body queryDevicesResponse
	if err := json.Unmarshal(response, &body); err != nil {
		return fmt.Errorf("decoding device list: %w", err)
	}

	for _, entry := range body.Devices {
		if entry.DeviceID == "" {
			d.logger.Warn("device entry without id skipped", "controller", controller.UID())
			continue
		}
		device := d.buildDevice(entry, controller)
		if device == nil {
			d.logger.Warn("device entry with unknown type skipped",
				"controller", controller.UID(), "device_id", entry.DeviceID, "type", entry.Type)
			continue
		}
		d.hub.RegisterDevice(device, controller)
	}
	return nil
}

// buildDevice constructs the concrete device for a discovery entry.
func (d *Discovery) buildDevice(entry discoveredDevice, controller *Controller) Device {
	name := entry.Name
	if name == "" {
		name = entry.DeviceID
	}

	switch entry.Type {
	case DeviceTypeLight:
		return NewLight(entry.DeviceID, name, controller, entry.IsColor, d.hub.events, d.logger)
	case DeviceTypeSwitch:
		return NewSwitch(entry.DeviceID, name, controller, entry.NumButtons, entry.Mode, d.hub.events, d.logger)
	case DeviceTypeSensor:
		return NewSensor(entry.DeviceID, name, controller, entry.SensorType, d.hub.events, d.logger)
	default:
		return nil
	}
}
