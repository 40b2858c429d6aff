package zencontrol

import (
	"context"
	"errors"
	"testing"
)

func newTestLight(t *testing.T, isColor bool) (*Light, *stubSender, *sinkCollector) {
	t.Helper()

	registry, sender := newTestRegistry()
	controller := registry.AddController("zc-1", "10.0.0.5", "")
	sink := &sinkCollector{}
	return NewLight("light-1", "Test Light", controller, isColor, sink, nil), sender, sink
}

func TestLight_InitialState(t *testing.T) {
	t.Run("white light", func(t *testing.T) {
		light, _, _ := newTestLight(t, false)
		state := light.State()

		if state["state"] != "off" {
			t.Errorf("state = %v, want off", state["state"])
		}
		features, _ := state["supported_features"].([]string)
		if len(features) != 1 || features[0] != FeatureBrightness {
			t.Errorf("supported_features = %v, want [BRIGHTNESS]", features)
		}
		if _, ok := state["rgb_color"]; ok {
			t.Error("white light seeded with rgb_color")
		}
	})

	t.Run("color light", func(t *testing.T) {
		light, _, _ := newTestLight(t, true)
		state := light.State()

		rgb, _ := state["rgb_color"].([]int)
		if len(rgb) != 3 || rgb[0] != 255 || rgb[1] != 255 || rgb[2] != 255 {
			t.Errorf("rgb_color = %v, want [255 255 255]", rgb)
		}
		features, _ := state["supported_features"].([]string)
		if len(features) != 3 {
			t.Errorf("supported_features = %v, want brightness, color temp and rgb", features)
		}
	})
}

func TestLight_TurnOnOff(t *testing.T) {
	light, sender, sink := newTestLight(t, false)

	if err := light.TurnOn(context.Background(), map[string]any{"brightness": 200}); err != nil {
		t.Fatalf("TurnOn() error = %v", err)
	}
	if got := sender.lastCommand()["command"]; got != "LIGHT_ON" {
		t.Errorf("sent command = %v, want LIGHT_ON", got)
	}
	if !light.IsOn() {
		t.Error("light not on after TurnOn")
	}
	if got := light.State()["brightness"]; got != 200 {
		t.Errorf("brightness = %v, want 200", got)
	}

	if err := light.TurnOff(context.Background()); err != nil {
		t.Fatalf("TurnOff() error = %v", err)
	}
	if light.IsOn() {
		t.Error("light still on after TurnOff")
	}
	if got := light.State()["brightness"]; got != 0 {
		t.Errorf("brightness after TurnOff = %v, want 0", got)
	}

	if got := len(sink.ofType(EventLightStateChanged)); got != 2 {
		t.Errorf("light_state_changed events = %d, want 2", got)
	}
}

func TestLight_OptimisticUpdateOnSendFailure(t *testing.T) {
	// The expected state is applied even when the command send fails;
	// local state diverges until the next authoritative event.
	light, sender, _ := newTestLight(t, false)
	sendErr := errors.New("controller unreachable")
	sender.err = sendErr

	err := light.TurnOn(context.Background(), nil)
	if !errors.Is(err, sendErr) {
		t.Fatalf("TurnOn() error = %v, want the send failure", err)
	}
	if !light.IsOn() {
		t.Error("optimistic state not applied after send failure")
	}
}

func TestLight_SetBrightness(t *testing.T) {
	light, sender, _ := newTestLight(t, false)

	if err := light.SetBrightness(context.Background(), 300); err != nil {
		t.Fatalf("SetBrightness() error = %v", err)
	}
	if got := light.State()["brightness"]; got != 255 {
		t.Errorf("brightness = %v, want clamped 255", got)
	}

	// Zero brightness turns the light off.
	if err := light.SetBrightness(context.Background(), 0); err != nil {
		t.Fatalf("SetBrightness(0) error = %v", err)
	}
	if light.IsOn() {
		t.Error("light still on after SetBrightness(0)")
	}
	if got := sender.lastCommand()["command"]; got != "LIGHT_OFF" {
		t.Errorf("sent command = %v, want LIGHT_OFF", got)
	}
}

func TestLight_ColorCommandsOnWhiteLight(t *testing.T) {
	// Color operations on a non-color light are logged no-ops: no command,
	// no state change, no error.
	light, sender, _ := newTestLight(t, false)

	if err := light.SetRGBColor(context.Background(), []int{255, 0, 0}); err != nil {
		t.Fatalf("SetRGBColor() error = %v, want nil no-op", err)
	}
	if err := light.SetColorTemp(context.Background(), 3000); err != nil {
		t.Fatalf("SetColorTemp() error = %v, want nil no-op", err)
	}
	if got := sender.sentCount(); got != 0 {
		t.Errorf("commands sent = %d, want 0", got)
	}
	if _, ok := light.State()["rgb_color"]; ok {
		t.Error("rgb_color appeared on white light")
	}
}

func TestLight_ColorCommands(t *testing.T) {
	light, sender, _ := newTestLight(t, true)

	if err := light.SetRGBColor(context.Background(), []int{10, 20, 30}); err != nil {
		t.Fatalf("SetRGBColor() error = %v", err)
	}
	rgb, _ := light.State()["rgb_color"].([]int)
	if len(rgb) != 3 || rgb[0] != 10 || rgb[1] != 20 || rgb[2] != 30 {
		t.Errorf("rgb_color = %v, want [10 20 30]", rgb)
	}

	if err := light.SetColorTemp(context.Background(), 4000); err != nil {
		t.Fatalf("SetColorTemp() error = %v", err)
	}
	if got := light.State()["color_temp"]; got != 4000 {
		t.Errorf("color_temp = %v, want 4000", got)
	}
	if got := sender.sentCount(); got != 2 {
		t.Errorf("commands sent = %d, want 2", got)
	}
}

func TestLight_HandleStateEvent(t *testing.T) {
	light, _, sink := newTestLight(t, true)

	// Decoded JSON carries numbers as float64.
	light.HandleStateEvent(map[string]any{
		"state":      "on",
		"brightness": float64(180),
		"rgb_color":  []any{float64(1), float64(2), float64(3)},
	})

	state := light.State()
	if state["state"] != "on" || state["brightness"] != 180 {
		t.Errorf("state = %v, want on at 180", state)
	}
	rgb, _ := state["rgb_color"].([]int)
	if len(rgb) != 3 || rgb[2] != 3 {
		t.Errorf("rgb_color = %v, want [1 2 3]", rgb)
	}
	if got := len(sink.ofType(EventLightStateChanged)); got != 1 {
		t.Errorf("light_state_changed events = %d, want 1", got)
	}

	// An event with no recognized fields changes nothing.
	light.HandleStateEvent(map[string]any{"unrelated": true})
	if got := len(sink.ofType(EventLightStateChanged)); got != 1 {
		t.Errorf("events after empty update = %d, want still 1", got)
	}
}

func TestLight_CommandTimeoutStillApplies(t *testing.T) {
	light, sender, _ := newTestLight(t, false)
	sender.err = ErrCommandTimeout

	err := light.TurnOff(context.Background())
	if !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("TurnOff() error = %v, want ErrCommandTimeout", err)
	}
	if light.IsOn() {
		t.Error("optimistic off state not applied after timeout")
	}
}
