package zencontrol

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

const testDeviceList = `{
	"devices": [
		{"device_id": "light-1", "type": "light", "name": "Hall Light", "is_color": true},
		{"device_id": "switch-1", "type": "switch", "name": "Wall Panel", "num_buttons": 4, "mode": "toggle"},
		{"device_id": "sensor-1", "type": "sensor", "name": "Hall Motion", "sensor_type": "motion"},
		{"device_id": "mystery-1", "type": "thermostat", "name": "Unsupported"},
		{"type": "light", "name": "No Id"}
	]
}`

// controllerResponder answers discovery commands the way controller
// firmware does. delay throttles every response.
func controllerResponder(delay time.Duration) func(frame []byte) []byte {
	return echoResponder(func(request []byte) []byte {
		if delay > 0 {
			time.Sleep(delay)
		}

		var command map[string]any
		if err := json.Unmarshal(request, &command); err != nil {
			return []byte(`{}`)
		}
		switch command["command"] {
		case commandQueryStatus:
			return []byte(`{"status":"ok"}`)
		case commandQueryDevices:
			return []byte(testDeviceList)
		default:
			return []byte(`{}`)
		}
	})
}

func newDiscoveryFixture(t *testing.T, delay time.Duration) (*Hub, *Discovery, *sinkCollector) {
	t.Helper()

	port := startFakeController(t, controllerResponder(delay))

	sink := &sinkCollector{}
	hub := NewHub(HubConfig{
		MulticastGroup: "239.255.90.67",
		MulticastPort:  5110,
		UDPPort:        port,
		CommandTimeout: 2 * time.Second,
		StaleTimeout:   120 * time.Second,
	}, sink, nil)

	if err := hub.Transport().Start(); err != nil {
		t.Fatalf("starting transport: %v", err)
	}
	t.Cleanup(hub.Transport().Stop)

	hub.Registry().AddController("zc-1", "127.0.0.1", "")
	return hub, NewDiscovery(hub, 5*time.Second, nil), sink
}

func TestDiscovery_Run(t *testing.T) {
	hub, discovery, sink := newDiscoveryFixture(t, 0)

	if !discovery.Run(context.Background(), true) {
		t.Fatal("Run() = false, want a run to execute")
	}

	// The status probe marked the controller ready.
	controller := hub.Registry().GetController("zc-1")
	if !controller.IsReady() {
		t.Fatal("controller not ready after discovery")
	}

	// Supported devices registered; the unknown type and the entry
	// without an id were skipped.
	if got := hub.DeviceCount(); got != 3 {
		t.Fatalf("DeviceCount() = %d, want 3", got)
	}
	if _, ok := hub.GetDevice("light-1").(*Light); !ok {
		t.Error("light-1 not registered as a Light")
	}
	if _, ok := hub.GetDevice("switch-1").(*Switch); !ok {
		t.Error("switch-1 not registered as a Switch")
	}
	if _, ok := hub.GetDevice("sensor-1").(*Sensor); !ok {
		t.Error("sensor-1 not registered as a Sensor")
	}

	if got := len(sink.ofType(EventDeviceAdded)); got != 3 {
		t.Errorf("device_added events = %d, want 3", got)
	}
	if got := len(sink.ofType(EventDiscoveryComplete)); got != 1 {
		t.Errorf("discovery_complete events = %d, want 1", got)
	}
	if got := len(sink.ofType(EventDiscoveryError)); got != 0 {
		t.Errorf("discovery_error events = %d, want 0", got)
	}
	if discovery.Running() {
		t.Error("running guard still set after completion")
	}
}

func TestDiscovery_SecondRunWhileRunningIsNoOp(t *testing.T) {
	hub, discovery, _ := newDiscoveryFixture(t, 100*time.Millisecond)

	// Seed a device so a second user-initiated run clearing the index
	// would be observable.
	controller := hub.Registry().GetController("zc-1")
	registerTestDevice(hub, NewLight("seed-1", "Seed", controller, false, nil, nil), controller)

	started := make(chan struct{})
	finished := make(chan bool, 1)
	go func() {
		close(started)
		finished <- discovery.Run(context.Background(), false)
	}()
	<-started

	// Wait for the guard to engage, then issue the overlapping request.
	deadline := time.Now().Add(time.Second)
	for !discovery.Running() {
		if time.Now().After(deadline) {
			t.Fatal("first run never engaged the running guard")
		}
		time.Sleep(time.Millisecond)
	}

	if discovery.Run(context.Background(), true) {
		t.Error("overlapping Run() = true, want silent no-op")
	}
	if hub.GetDevice("seed-1") == nil {
		t.Error("overlapping user-initiated run cleared the device index")
	}

	if ran := <-finished; !ran {
		t.Error("first Run() = false, want true")
	}
}

func TestDiscovery_UserInitiatedClearsDevices(t *testing.T) {
	hub, discovery, _ := newDiscoveryFixture(t, 0)

	controller := hub.Registry().GetController("zc-1")
	registerTestDevice(hub, NewLight("stale-1", "Stale", controller, false, nil, nil), controller)

	if !discovery.Run(context.Background(), true) {
		t.Fatal("Run() = false, want a run to execute")
	}

	if hub.GetDevice("stale-1") != nil {
		t.Error("user-initiated run kept a stale device")
	}
	if got := hub.DeviceCount(); got != 3 {
		t.Errorf("DeviceCount() = %d, want the 3 rediscovered devices", got)
	}
}

func TestDiscovery_NoReadyControllers(t *testing.T) {
	// A hub with no controllers at all cannot discover anything; the
	// failure becomes a discovery_error event, not a panic or a hang,
	// and the guard clears for the next attempt.
	sink := &sinkCollector{}
	hub := NewHub(HubConfig{
		MulticastGroup: "239.255.90.67",
		MulticastPort:  5110,
		UDPPort:        5108,
		CommandTimeout: 50 * time.Millisecond,
		StaleTimeout:   120 * time.Second,
	}, sink, nil)
	discovery := NewDiscovery(hub, time.Second, nil)

	if !discovery.Run(context.Background(), false) {
		t.Fatal("Run() = false, want a run to execute")
	}

	errs := sink.ofType(EventDiscoveryError)
	if len(errs) != 1 {
		t.Fatalf("discovery_error events = %d, want 1", len(errs))
	}
	if errs[0].Data["error"] == "" {
		t.Error("discovery_error carries no error text")
	}
	if discovery.Running() {
		t.Error("running guard still set after failed run")
	}
}
