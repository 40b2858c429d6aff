package zencontrol

import (
	"context"
)

// Light commands understood by the controller firmware.
const (
	commandLightOn  = "LIGHT_ON"
	commandLightOff = "LIGHT_OFF"
)

// Light state keys.
const (
	stateKeyState             = "state"
	stateKeyBrightness        = "brightness"
	stateKeyColorTemp         = "color_temp"
	stateKeyRGBColor          = "rgb_color"
	stateKeySupportedFeatures = "supported_features"
)

// Light capability feature flags surfaced in supported_features.
const (
	FeatureBrightness = "BRIGHTNESS"
	FeatureColorTemp  = "COLOR_TEMP"
	FeatureRGB        = "RGB"
)

// Light is a dimmable DALI luminaire, optionally with color support.
//
// Command methods apply the expected state locally as soon as the command
// is sent, without waiting for the controller to confirm. The local state
// can therefore diverge from the physical fixture until the next
// light_state event arrives; commands whose send fails still apply the
// optimistic state and return the send error.
type Light struct {
	baseDevice

	controller *Controller
	isColor    bool
}

// NewLight creates a light owned by the given controller. Color lights are
// seeded with a default rgb_color and advertise RGB and COLOR_TEMP support;
// white lights advertise BRIGHTNESS only.
func NewLight(id, name string, controller *Controller, isColor bool, events EventSink, logger Logger) *Light {
	l := &Light{
		baseDevice: newBaseDevice(id, name, DeviceTypeLight, controller.UID(), events, logger),
		controller: controller,
		isColor:    isColor,
	}

	l.state[stateKeyState] = "off"
	l.state[stateKeyBrightness] = 0
	if isColor {
		l.state[stateKeyRGBColor] = []int{255, 255, 255}
		l.state[stateKeySupportedFeatures] = []string{FeatureBrightness, FeatureColorTemp, FeatureRGB}
	} else {
		l.state[stateKeySupportedFeatures] = []string{FeatureBrightness}
	}
	return l
}

// IsColor reports whether the light supports color commands.
func (l *Light) IsColor() bool { return l.isColor }

// IsOn reports whether the light is currently on per local state.
func (l *Light) IsOn() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state[stateKeyState] == "on"
}

// TurnOn switches the light on, optionally with brightness (1-255),
// color_temp, or rgb_color params forwarded to the controller.
func (l *Light) TurnOn(ctx context.Context, params map[string]any) error {
	payload := map[string]any{
		"command":   commandLightOn,
		"device_id": l.id,
	}
	update := map[string]any{stateKeyState: "on"}

	if params != nil {
		if brightness, ok := intParam(params, stateKeyBrightness); ok {
			payload[stateKeyBrightness] = brightness
			update[stateKeyBrightness] = brightness
		}
		if temp, ok := intParam(params, stateKeyColorTemp); ok && l.isColor {
			payload[stateKeyColorTemp] = temp
			update[stateKeyColorTemp] = temp
		}
		if rgb, ok := rgbParam(params, stateKeyRGBColor); ok && l.isColor {
			payload[stateKeyRGBColor] = rgb
			update[stateKeyRGBColor] = rgb
		}
	}

	_, err := l.controller.SendCommand(ctx, payload)
	l.applyOptimistic(update)
	return err
}

// TurnOff switches the light off.
func (l *Light) TurnOff(ctx context.Context) error {
	payload := map[string]any{
		"command":   commandLightOff,
		"device_id": l.id,
	}

	_, err := l.controller.SendCommand(ctx, payload)
	l.applyOptimistic(map[string]any{stateKeyState: "off", stateKeyBrightness: 0})
	return err
}

// SetBrightness dims the light to the given level (0 turns it off).
func (l *Light) SetBrightness(ctx context.Context, brightness int) error {
	if brightness <= 0 {
		return l.TurnOff(ctx)
	}
	if brightness > 255 {
		brightness = 255
	}
	return l.TurnOn(ctx, map[string]any{stateKeyBrightness: brightness})
}

// SetRGBColor sets the light's color. On a white light this logs a warning
// and does nothing.
func (l *Light) SetRGBColor(ctx context.Context, rgb []int) error {
	if !l.isColor {
		l.logger.Warn("rgb command ignored on white light", "device_id", l.id)
		return nil
	}
	return l.TurnOn(ctx, map[string]any{stateKeyRGBColor: rgb})
}

// SetColorTemp sets the light's color temperature. On a white light this
// logs a warning and does nothing.
func (l *Light) SetColorTemp(ctx context.Context, temp int) error {
	if !l.isColor {
		l.logger.Warn("color temp command ignored on white light", "device_id", l.id)
		return nil
	}
	return l.TurnOn(ctx, map[string]any{stateKeyColorTemp: temp})
}

// HandleStateEvent applies a light_state event reported by the controller.
// Reported state always wins over any earlier optimistic update.
func (l *Light) HandleStateEvent(event map[string]any) {
	update := make(map[string]any)

	if state, ok := event[stateKeyState].(string); ok {
		update[stateKeyState] = state
	}
	if brightness, ok := intParam(event, stateKeyBrightness); ok {
		update[stateKeyBrightness] = brightness
	}
	if l.isColor {
		if temp, ok := intParam(event, stateKeyColorTemp); ok {
			update[stateKeyColorTemp] = temp
		}
		if rgb, ok := rgbParam(event, stateKeyRGBColor); ok {
			update[stateKeyRGBColor] = rgb
		}
	}

	if len(update) == 0 {
		l.logger.Debug("light_state event carried no state fields", "device_id", l.id)
		return
	}

	if l.UpdateState(update) {
		l.fireEvent(EventLightStateChanged, l.State())
	}
}

// applyOptimistic records the expected result of a command locally.
func (l *Light) applyOptimistic(update map[string]any) {
	if l.UpdateState(update) {
		l.fireEvent(EventLightStateChanged, l.State())
	}
}

// intParam extracts an integer field that may arrive as an int (internal
// callers) or float64 (decoded JSON).
func intParam(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// rgbParam extracts a 3-element color triple as []int or decoded JSON
// []any of numbers.
func rgbParam(m map[string]any, key string) ([]int, bool) {
	switch v := m[key].(type) {
	case []int:
		if len(v) == 3 {
			out := make([]int, 3)
			copy(out, v)
			return out, true
		}
	case []any:
		if len(v) == 3 {
			out := make([]int, 3)
			for i, e := range v {
				f, ok := e.(float64)
				if !ok {
					return nil, false
				}
				out[i] = int(f)
			}
			return out, true
		}
	}
	return nil, false
}
