package zencontrol

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// stubSender records every command and returns a canned response.
type stubSender struct {
	mu       sync.Mutex
	sent     []map[string]any
	response []byte
	err      error
}

func (s *stubSender) SendCommand(_ context.Context, _ string, payload []byte, _ time.Duration) ([]byte, error) {
	var command map[string]any
	if err := json.Unmarshal(payload, &command); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sent = append(s.sent, command)
	s.mu.Unlock()

	return s.response, s.err
}

func (s *stubSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *stubSender) lastCommand() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

func newTestRegistry() (*Registry, *stubSender) {
	sender := &stubSender{response: []byte(`{}`)}
	return NewRegistry(sender, time.Second, nil), sender
}

func TestRegistry_AddController(t *testing.T) {
	registry, _ := newTestRegistry()

	first := registry.AddController("zc-1", "10.0.0.5", "")
	if first.IP() != "10.0.0.5" {
		t.Errorf("IP() = %q, want 10.0.0.5", first.IP())
	}
	if first.Name() != "zc-1" {
		t.Errorf("Name() = %q, want uid fallback zc-1", first.Name())
	}

	// Repeat sight with a new ip updates the same instance in place.
	second := registry.AddController("zc-1", "10.0.0.9", "kitchen")
	if second != first {
		t.Fatal("AddController() created a duplicate instead of updating in place")
	}
	if got := registry.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}
	if first.IP() != "10.0.0.9" {
		t.Errorf("IP() after update = %q, want 10.0.0.9", first.IP())
	}
	if first.Name() != "kitchen" {
		t.Errorf("Name() after update = %q, want kitchen", first.Name())
	}

	// Empty name on repeat sight leaves the existing name alone.
	registry.AddController("zc-1", "10.0.0.9", "")
	if first.Name() != "kitchen" {
		t.Errorf("Name() after empty-name update = %q, want kitchen", first.Name())
	}
}

func TestRegistry_RemoveStaleControllers(t *testing.T) {
	registry, _ := newTestRegistry()

	base := time.Now()
	registry.now = func() time.Time { return base }

	controller := registry.AddController("zc-1", "10.0.0.5", "")
	controller.UpdateHeartbeat(base)

	// 9 seconds old: survives a 10-second threshold.
	registry.now = func() time.Time { return base.Add(9 * time.Second) }
	if removed := registry.RemoveStaleControllers(10 * time.Second); len(removed) != 0 {
		t.Fatalf("RemoveStaleControllers() removed %v at 9s, want none", removed)
	}

	// 11 seconds old: expired.
	registry.now = func() time.Time { return base.Add(11 * time.Second) }
	removed := registry.RemoveStaleControllers(10 * time.Second)
	if len(removed) != 1 || removed[0] != "zc-1" {
		t.Fatalf("RemoveStaleControllers() = %v, want [zc-1]", removed)
	}
	if registry.GetController("zc-1") != nil {
		t.Error("stale controller still resolvable after removal")
	}
}

func TestController_MarkReady(t *testing.T) {
	registry, _ := newTestRegistry()
	controller := registry.AddController("zc-1", "10.0.0.5", "")

	if controller.IsReady() {
		t.Fatal("controller ready before startup_complete")
	}
	if !controller.MarkReady() {
		t.Fatal("first MarkReady() = false, want true")
	}
	if controller.MarkReady() {
		t.Fatal("second MarkReady() = true, want idempotent false")
	}
	if !controller.IsReady() {
		t.Fatal("controller not ready after MarkReady")
	}

	controller.MarkNotReady()
	if controller.IsReady() {
		t.Fatal("controller still ready after MarkNotReady")
	}
}

func TestRegistry_GetReadyControllers(t *testing.T) {
	registry, _ := newTestRegistry()
	registry.AddController("zc-1", "10.0.0.5", "")
	ready := registry.AddController("zc-2", "10.0.0.6", "")
	ready.MarkReady()

	got := registry.GetReadyControllers()
	if len(got) != 1 || got[0].UID() != "zc-2" {
		t.Fatalf("GetReadyControllers() = %d controllers, want exactly zc-2", len(got))
	}
}

func TestController_SendCommand(t *testing.T) {
	registry, sender := newTestRegistry()
	controller := registry.AddController("zc-1", "10.0.0.5", "")

	response, err := controller.SendCommand(context.Background(), map[string]any{
		"command":   "LIGHT_ON",
		"device_id": "light-1",
	})
	if err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if string(response) != `{}` {
		t.Errorf("response = %q, want {}", response)
	}
	if got := sender.lastCommand()["command"]; got != "LIGHT_ON" {
		t.Errorf("sent command = %v, want LIGHT_ON", got)
	}
}
