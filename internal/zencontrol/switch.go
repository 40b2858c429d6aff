package zencontrol

import (
	"context"
	"fmt"
)

// Switch command understood by the controller firmware.
const commandButtonAction = "BUTTON_ACTION"

// Switch operating modes.
const (
	// SwitchModeToggle inverts a button's state on press or double_press;
	// release is a no-op.
	SwitchModeToggle = "toggle"

	// SwitchModeMomentary tracks the physical button: press sets the state
	// true, release sets it false.
	SwitchModeMomentary = "momentary"
)

// Button actions reported by the controller.
const (
	ButtonActionPress       = "press"
	ButtonActionRelease     = "release"
	ButtonActionDoublePress = "double_press"
)

// Switch state key.
const stateKeyButtonStates = "button_states"

// SceneActivator activates a scene by id. Installed by the hub so scene
// assignments resolve against whatever scene store the deployment uses.
type SceneActivator func(ctx context.Context, sceneID string) error

// Switch is a wall panel with one or more buttons. Each button carries a
// boolean state updated per the switch mode, and may have a scene assigned
// that activates on press.
type Switch struct {
	baseDevice

	controller *Controller
	numButtons int
	mode       string

	// scenes maps button index to an assigned scene id.
	scenes map[int]string

	activateScene SceneActivator
}

// NewSwitch creates a switch owned by the given controller. Modes other
// than momentary fall back to toggle.
func NewSwitch(id, name string, controller *Controller, numButtons int, mode string, events EventSink, logger Logger) *Switch {
	if numButtons < 1 {
		numButtons = 1
	}
	if mode != SwitchModeMomentary {
		mode = SwitchModeToggle
	}

	s := &Switch{
		baseDevice: newBaseDevice(id, name, DeviceTypeSwitch, controller.UID(), events, logger),
		controller: controller,
		numButtons: numButtons,
		mode:       mode,
		scenes:     make(map[int]string),
	}
	s.state[stateKeyButtonStates] = make([]bool, numButtons)
	return s
}

// NumButtons returns the button count.
func (s *Switch) NumButtons() int { return s.numButtons }

// Mode returns the switch operating mode.
func (s *Switch) Mode() string { return s.mode }

// ButtonStates returns a copy of all button states.
func (s *Switch) ButtonStates() []bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states, _ := s.state[stateKeyButtonStates].([]bool)
	out := make([]bool, len(states))
	copy(out, states)
	return out
}

// SetSceneActivator installs the scene resolution hook.
func (s *Switch) SetSceneActivator(fn SceneActivator) {
	s.mu.Lock()
	s.activateScene = fn
	s.mu.Unlock()
}

// HandleButtonEvent applies a button event reported by the controller.
//
// An out-of-range button index is logged and ignored. In toggle mode a
// press or double_press inverts the button's state and release does
// nothing; in momentary mode press and release track the physical button.
// Every accepted event fires a button_action domain event, and a press on
// a button with an assigned scene activates that scene.
func (s *Switch) HandleButtonEvent(ctx context.Context, button int, action string) {
	if button < 0 || button >= s.numButtons {
		s.logger.Warn("button event out of range",
			"device_id", s.id, "button", button, "buttons", s.numButtons)
		return
	}

	newState, apply := s.nextButtonState(button, action)
	if apply {
		s.setButtonState(button, newState)
	}

	s.fireEvent(EventButtonAction, map[string]any{
		"button": button,
		"action": action,
		"state":  s.buttonState(button),
	})

	if action == ButtonActionPress {
		s.activateAssignedScene(ctx, button)
	}
}

// PressButton sends a button action to the controller and applies the
// resulting state locally, without waiting for the echoed event.
func (s *Switch) PressButton(ctx context.Context, button int, action string) error {
	if button < 0 || button >= s.numButtons {
		return fmt.Errorf("%w: button %d on %d-button switch", ErrInvalidButton, button, s.numButtons)
	}

	payload := map[string]any{
		"command":   commandButtonAction,
		"device_id": s.id,
		"button":    button,
		"action":    action,
	}

	_, err := s.controller.SendCommand(ctx, payload)

	if newState, apply := s.nextButtonState(button, action); apply {
		s.setButtonState(button, newState)
	}
	return err
}

// AssignScene binds a scene to a button so presses activate it.
func (s *Switch) AssignScene(button int, sceneID string) error {
	if button < 0 || button >= s.numButtons {
		return fmt.Errorf("%w: button %d on %d-button switch", ErrInvalidButton, button, s.numButtons)
	}

	s.mu.Lock()
	s.scenes[button] = sceneID
	s.mu.Unlock()

	s.logger.Info("scene assigned", "device_id", s.id, "button", button, "scene_id", sceneID)
	return nil
}

// AssignedScene returns the scene bound to a button, if any.
func (s *Switch) AssignedScene(button int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sceneID, ok := s.scenes[button]
	return sceneID, ok
}

// nextButtonState resolves the state transition for an action under the
// switch mode. apply is false when the action leaves the state untouched.
func (s *Switch) nextButtonState(button int, action string) (newState, apply bool) {
	switch s.mode {
	case SwitchModeMomentary:
		switch action {
		case ButtonActionPress:
			return true, true
		case ButtonActionRelease:
			return false, true
		}
	default: // toggle
		if action == ButtonActionPress || action == ButtonActionDoublePress {
			return !s.buttonState(button), true
		}
	}
	return false, false
}

// buttonState reads one button's current state.
func (s *Switch) buttonState(button int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states, _ := s.state[stateKeyButtonStates].([]bool)
	if button < 0 || button >= len(states) {
		return false
	}
	return states[button]
}

// setButtonState writes one button's state through UpdateState so
// callbacks observe the change.
func (s *Switch) setButtonState(button int, value bool) {
	s.mu.RLock()
	states, _ := s.state[stateKeyButtonStates].([]bool)
	next := make([]bool, len(states))
	copy(next, states)
	s.mu.RUnlock()

	if button < 0 || button >= len(next) {
		return
	}
	next[button] = value
	s.UpdateState(map[string]any{stateKeyButtonStates: next})
}

// activateAssignedScene activates the scene bound to a button. A press on
// an unassigned button, or without an activator installed, is a logged
// no-op.
func (s *Switch) activateAssignedScene(ctx context.Context, button int) {
	s.mu.RLock()
	sceneID, bound := s.scenes[button]
	activate := s.activateScene
	s.mu.RUnlock()

	if !bound {
		s.logger.Debug("no scene assigned to button", "device_id", s.id, "button", button)
		return
	}
	if activate == nil {
		s.logger.Warn("scene assigned but no activator installed",
			"device_id", s.id, "button", button, "scene_id", sceneID)
		return
	}

	if err := activate(ctx, sceneID); err != nil {
		s.logger.Error("scene activation failed",
			"device_id", s.id, "button", button, "scene_id", sceneID, "error", err)
	}
}
