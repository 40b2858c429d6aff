package zencontrol

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestHub(t *testing.T) (*Hub, *sinkCollector) {
	t.Helper()

	sink := &sinkCollector{}
	hub := NewHub(HubConfig{
		MulticastGroup: "239.255.90.67",
		MulticastPort:  5110,
		UDPPort:        5108,
		CommandTimeout: time.Second,
		StaleTimeout:   120 * time.Second,
	}, sink, nil)
	return hub, sink
}

// registerTestDevice wires a device into the hub the way discovery does,
// without any network traffic.
func registerTestDevice(hub *Hub, device Device, controller *Controller) {
	hub.RegisterDevice(device, controller)
}

func TestHub_ControllerStatusRouting(t *testing.T) {
	hub, _ := newTestHub(t)

	hub.HandleMulticastEvent(map[string]any{
		"type":          "controller_status",
		"controller_id": "zc-1",
		"ip_address":    "10.0.0.5",
		"status":        "startup_complete",
	})

	controller := hub.Registry().GetController("zc-1")
	if controller == nil {
		t.Fatal("controller not registered from status event")
	}
	if !controller.IsReady() {
		t.Error("controller not ready after startup_complete")
	}

	hub.HandleMulticastEvent(map[string]any{
		"type":          "controller_status",
		"controller_id": "zc-1",
		"ip_address":    "10.0.0.5",
		"status":        "shutdown",
	})
	if controller.IsReady() {
		t.Error("controller still ready after shutdown")
	}
	if hub.Registry().GetController("zc-1") == nil {
		t.Error("shutdown removed the controller; it must only clear readiness")
	}

	// Any other status only refreshes the heartbeat.
	hub.HandleMulticastEvent(map[string]any{
		"type":          "controller_status",
		"controller_id": "zc-1",
		"ip_address":    "10.0.0.5",
		"status":        "rebalancing",
	})
	if controller.IsReady() {
		t.Error("unknown status changed readiness")
	}
}

func TestHub_ControllerStatusMissingFields(t *testing.T) {
	hub, _ := newTestHub(t)

	hub.HandleMulticastEvent(map[string]any{
		"type":   "controller_status",
		"status": "startup_complete",
	})
	hub.HandleMulticastEvent(map[string]any{
		"type":          "controller_status",
		"controller_id": "zc-1",
		"status":        "startup_complete",
	})

	if got := hub.Registry().Count(); got != 0 {
		t.Errorf("controllers registered from incomplete events = %d, want 0", got)
	}
}

func TestHub_DeviceEventRouting(t *testing.T) {
	hub, sink := newTestHub(t)
	controller := hub.Registry().AddController("zc-1", "10.0.0.5", "")

	light := NewLight("light-1", "Light", controller, false, sink, nil)
	sw := NewSwitch("switch-1", "Switch", controller, 4, SwitchModeToggle, sink, nil)
	sensor := NewSensor("sensor-1", "Sensor", controller, SensorTypeMotion, sink, nil)
	registerTestDevice(hub, light, controller)
	registerTestDevice(hub, sw, controller)
	registerTestDevice(hub, sensor, controller)

	hub.HandleMulticastEvent(map[string]any{
		"type":      "device_event",
		"device_id": "switch-1",
		"subtype":   "button",
		"button":    float64(0),
		"action":    "press",
	})
	if !sw.ButtonStates()[0] {
		t.Error("button event not routed to switch")
	}

	hub.HandleMulticastEvent(map[string]any{
		"type":      "device_event",
		"device_id": "sensor-1",
		"subtype":   "motion",
		"active":    true,
	})
	if !sensor.IsActive() {
		t.Error("motion event not routed to sensor")
	}

	hub.HandleMulticastEvent(map[string]any{
		"type":      "device_event",
		"device_id": "light-1",
		"subtype":   "light_state",
		"state":     map[string]any{"state": "on", "brightness": float64(90)},
	})
	if !light.IsOn() {
		t.Error("light_state event not routed to light")
	}
}

func TestHub_DeviceEventDropCases(t *testing.T) {
	hub, _ := newTestHub(t)
	controller := hub.Registry().AddController("zc-1", "10.0.0.5", "")
	sw := NewSwitch("switch-1", "Switch", controller, 4, SwitchModeToggle, nil, nil)
	registerTestDevice(hub, sw, controller)

	tests := []struct {
		name  string
		event map[string]any
	}{
		{"unknown device id", map[string]any{
			"type": "device_event", "device_id": "ghost", "subtype": "button",
			"button": float64(0), "action": "press",
		}},
		{"missing device id", map[string]any{
			"type": "device_event", "subtype": "button",
		}},
		{"unknown subtype", map[string]any{
			"type": "device_event", "device_id": "switch-1", "subtype": "vibration",
		}},
		{"button event missing action", map[string]any{
			"type": "device_event", "device_id": "switch-1", "subtype": "button",
			"button": float64(0),
		}},
		{"button event missing button", map[string]any{
			"type": "device_event", "device_id": "switch-1", "subtype": "button",
			"action": "press",
		}},
		{"sensor event on a switch", map[string]any{
			"type": "device_event", "device_id": "switch-1", "subtype": "motion",
			"active": true,
		}},
		{"unrecognized top-level type", map[string]any{
			"type": "firmware_update",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub.HandleMulticastEvent(tt.event)
			if sw.ButtonStates()[0] {
				t.Error("dropped event mutated device state")
			}
		})
	}
}

func TestHub_DeviceEventRefreshesHeartbeat(t *testing.T) {
	hub, _ := newTestHub(t)
	controller := hub.Registry().AddController("zc-1", "10.0.0.5", "")
	sensor := NewSensor("sensor-1", "Sensor", controller, SensorTypeMotion, nil, nil)
	registerTestDevice(hub, sensor, controller)

	stale := time.Now().Add(-time.Hour)
	controller.UpdateHeartbeat(stale)

	hub.HandleMulticastEvent(map[string]any{
		"type":      "device_event",
		"device_id": "sensor-1",
		"subtype":   "motion",
		"active":    true,
	})

	if !controller.LastSeen().After(stale) {
		t.Error("device event did not refresh the controller heartbeat")
	}
}

func TestHub_RegisterDeviceEmitsDeviceAdded(t *testing.T) {
	hub, sink := newTestHub(t)
	controller := hub.Registry().AddController("zc-1", "10.0.0.5", "")

	light := NewLight("light-1", "Hall Light", controller, false, sink, nil)
	registerTestDevice(hub, light, controller)

	added := sink.ofType(EventDeviceAdded)
	if len(added) != 1 {
		t.Fatalf("device_added events = %d, want 1", len(added))
	}
	if added[0].DeviceID != "light-1" || added[0].ControllerID != "zc-1" {
		t.Errorf("device_added identity = %s/%s, want light-1/zc-1",
			added[0].DeviceID, added[0].ControllerID)
	}

	if controller.GetDevice("light-1") == nil {
		t.Error("device not reachable through its controller")
	}
	if hub.GetDevice("light-1") != controller.GetDevice("light-1") {
		t.Error("hub and controller index different device instances")
	}
}

func TestHub_StateObserver(t *testing.T) {
	hub, _ := newTestHub(t)
	controller := hub.Registry().AddController("zc-1", "10.0.0.5", "")

	var observedID string
	var observedChanged map[string]any
	hub.SetStateObserver(func(device Device, changed, full map[string]any) {
		observedID = device.ID()
		observedChanged = changed
	})

	sensor := NewSensor("sensor-1", "Sensor", controller, SensorTypeMotion, nil, nil)
	registerTestDevice(hub, sensor, controller)

	sensor.HandleMotion(true)

	if observedID != "sensor-1" {
		t.Fatalf("observer saw device %q, want sensor-1", observedID)
	}
	if observedChanged["active"] != true {
		t.Errorf("observer changed set = %v, want active true", observedChanged)
	}
}

func TestHub_ClearDevices(t *testing.T) {
	hub, _ := newTestHub(t)
	controller := hub.Registry().AddController("zc-1", "10.0.0.5", "")
	registerTestDevice(hub, NewLight("light-1", "Light", controller, false, nil, nil), controller)

	hub.ClearDevices()

	if got := hub.DeviceCount(); got != 0 {
		t.Errorf("DeviceCount() after clear = %d, want 0", got)
	}
	if controller.GetDevice("light-1") != nil {
		t.Error("controller index still holds device after clear")
	}
	if hub.Registry().GetController("zc-1") == nil {
		t.Error("clearing devices removed the controller")
	}
}

func TestHub_DeviceCommand(t *testing.T) {
	hub, _ := newTestHub(t)
	controller := hub.Registry().AddController("zc-1", "10.0.0.5", "")
	sw := NewSwitch("switch-1", "Switch", controller, 4, SwitchModeToggle, nil, nil)
	registerTestDevice(hub, sw, controller)

	err := hub.DeviceCommand(context.Background(), "ghost", "turn_on", nil)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("DeviceCommand(ghost) error = %v, want ErrDeviceNotFound", err)
	}

	err = hub.DeviceCommand(context.Background(), "switch-1", "levitate", nil)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("DeviceCommand(levitate) error = %v, want ErrUnknownCommand", err)
	}

	// The transport was never started, so the send fails with
	// ErrTransportClosed; the optimistic transition still applies.
	err = hub.DeviceCommand(context.Background(), "switch-1", "press_button",
		map[string]any{"button": 0})
	if !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("press_button error = %v, want ErrTransportClosed", err)
	}
	if !sw.ButtonStates()[0] {
		t.Error("optimistic button transition not applied")
	}
}

func TestHub_AssignScene(t *testing.T) {
	hub, _ := newTestHub(t)
	controller := hub.Registry().AddController("zc-1", "10.0.0.5", "")
	registerTestDevice(hub, NewLight("light-1", "Light", controller, false, nil, nil), controller)
	sw := NewSwitch("switch-1", "Switch", controller, 4, SwitchModeToggle, nil, nil)
	registerTestDevice(hub, sw, controller)

	if err := hub.AssignScene("switch-1", 0, "scene-1"); err != nil {
		t.Fatalf("AssignScene() error = %v", err)
	}
	if sceneID, _ := sw.AssignedScene(0); sceneID != "scene-1" {
		t.Errorf("AssignedScene(0) = %q, want scene-1", sceneID)
	}

	if err := hub.AssignScene("light-1", 0, "scene-1"); !errors.Is(err, ErrNotASwitch) {
		t.Fatalf("AssignScene(light) error = %v, want ErrNotASwitch", err)
	}
	if err := hub.AssignScene("ghost", 0, "scene-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("AssignScene(ghost) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestHub_WatchdogCycle(t *testing.T) {
	hub, sink := newTestHub(t)
	registry := hub.Registry()

	base := time.Now()
	registry.now = func() time.Time { return base }
	controller := registry.AddController("zc-1", "10.0.0.5", "")
	controller.UpdateHeartbeat(base)

	registry.now = func() time.Time { return base.Add(121 * time.Second) }
	hub.watchdogCycle()

	if registry.GetController("zc-1") != nil {
		t.Error("stale controller survived a watchdog cycle")
	}
	removed := sink.ofType(EventControllerRemoved)
	if len(removed) != 1 || removed[0].ControllerID != "zc-1" {
		t.Errorf("controller_removed events = %v, want one for zc-1", removed)
	}
}
