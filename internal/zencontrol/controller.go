package zencontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// CommandSender sends a framed command to a controller address and waits
// for the correlated response. Satisfied by *Transport; mocked in tests.
type CommandSender interface {
	SendCommand(ctx context.Context, addr string, payload []byte, timeout time.Duration) ([]byte, error)
}

// Controller represents a zencontrol appliance bridging a DALI network,
// addressed by IP. Identity is the uid; ip and name are mutable and updated
// in place so every holder of the controller sees the change.
//
// Thread Safety: All methods are safe for concurrent use.
type Controller struct {
	uid string

	mu               sync.RWMutex
	ip               string
	name             string
	discoveryEnabled bool
	ready            bool
	lastSeen         time.Time

	devices map[string]Device

	sender         CommandSender
	commandTimeout time.Duration
	logger         Logger
}

// UID returns the controller's immutable identity.
func (c *Controller) UID() string { return c.uid }

// IP returns the last-known IP address.
func (c *Controller) IP() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ip
}

// Name returns the controller's friendly name.
func (c *Controller) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// IsReady reports whether the controller has completed startup.
func (c *Controller) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// LastSeen returns the time of the last heartbeat or event.
func (c *Controller) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// DiscoveryEnabled reports whether discovery queries this controller.
func (c *Controller) DiscoveryEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.discoveryEnabled
}

// SetDiscoveryEnabled toggles discovery participation.
func (c *Controller) SetDiscoveryEnabled(enabled bool) {
	c.mu.Lock()
	c.discoveryEnabled = enabled
	c.mu.Unlock()
}

// MarkReady flips the controller ready exactly once.
// Returns true only on the false→true transition; repeat calls are no-ops.
func (c *Controller) MarkReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return false
	}
	c.ready = true
	c.logger.Info("controller ready", "uid", c.uid, "ip", c.ip)
	return true
}

// MarkNotReady flips the controller back to not-ready without removing it.
// Used when a controller announces shutdown.
func (c *Controller) MarkNotReady() {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
}

// UpdateHeartbeat refreshes the liveness timestamp.
func (c *Controller) UpdateHeartbeat(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

// AddDevice indexes a device under this controller.
func (c *Controller) AddDevice(device Device) {
	c.mu.Lock()
	c.devices[device.ID()] = device
	c.mu.Unlock()
}

// GetDevice returns a device owned by this controller, or nil.
func (c *Controller) GetDevice(deviceID string) Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.devices[deviceID]
}

// Devices returns a snapshot of the controller's devices.
func (c *Controller) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	devices := make([]Device, 0, len(c.devices))
	for _, d := range c.devices {
		devices = append(devices, d)
	}
	return devices
}

// SendCommand marshals the payload as JSON and sends it to the controller,
// returning the raw response bytes.
func (c *Controller) SendCommand(ctx context.Context, payload map[string]any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling command: %w", err)
	}

	c.mu.RLock()
	ip := c.ip
	timeout := c.commandTimeout
	c.mu.RUnlock()

	c.logger.Debug("sending controller command", "uid", c.uid, "command", payload["command"])
	return c.sender.SendCommand(ctx, ip, data, timeout)
}

// Registry is a de-duplicated directory of controllers keyed by uid, with
// liveness expiry. Removal happens only through RemoveStaleControllers.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]*Controller

	sender         CommandSender
	commandTimeout time.Duration
	logger         Logger

	// now is injectable for liveness tests.
	now func() time.Time
}

// NewRegistry creates an empty controller registry. Controllers created by
// AddController send commands through the given sender with the given
// per-command timeout.
func NewRegistry(sender CommandSender, commandTimeout time.Duration, logger Logger) *Registry {
	return &Registry{
		controllers:    make(map[string]*Controller),
		sender:         sender,
		commandTimeout: commandTimeout,
		logger:         orNoop(logger),
		now:            time.Now,
	}
}

// AddController creates a controller on first sight, or updates the
// existing one in place when ip or name changed. Identity never changes.
// Idempotent for unchanged data.
func (r *Registry) AddController(uid, ip, name string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.controllers[uid]; ok {
		existing.mu.Lock()
		if existing.ip != ip {
			r.logger.Info("controller ip changed", "uid", uid, "old", existing.ip, "new", ip)
			existing.ip = ip
		}
		if name != "" && existing.name != name {
			r.logger.Info("controller renamed", "uid", uid, "old", existing.name, "new", name)
			existing.name = name
		}
		existing.mu.Unlock()
		return existing
	}

	if name == "" {
		name = uid
	}

	// Controllers learned from the network participate in discovery
	// unless configuration opts them out.
	controller := &Controller{
		uid:              uid,
		ip:               ip,
		name:             name,
		discoveryEnabled: true,
		lastSeen:         r.now(),
		devices:          make(map[string]Device),
		sender:           r.sender,
		commandTimeout:   r.commandTimeout,
		logger:           r.logger,
	}
	r.controllers[uid] = controller
	r.logger.Info("discovered controller", "uid", uid, "ip", ip)
	return controller
}

// GetController returns the controller with the given uid, or nil.
func (r *Registry) GetController(uid string) *Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.controllers[uid]
}

// Controllers returns a snapshot of all controllers.
func (r *Registry) Controllers() []*Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	controllers := make([]*Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		controllers = append(controllers, c)
	}
	return controllers
}

// GetReadyControllers returns the controllers that have completed startup.
func (r *Registry) GetReadyControllers() []*Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ready []*Controller
	for _, c := range r.controllers {
		if c.IsReady() {
			ready = append(ready, c)
		}
	}
	return ready
}

// RemoveStaleControllers removes every controller whose last heartbeat is
// older than timeout, returning the removed uids. This is the sole
// controller removal path; it is called by the hub watchdog, not inline
// with event processing.
func (r *Registry) RemoveStaleControllers(timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var removed []string
	for uid, c := range r.controllers {
		if now.Sub(c.LastSeen()) > timeout {
			r.logger.Warn("removing stale controller", "uid", uid, "ip", c.IP())
			delete(r.controllers, uid)
			removed = append(removed, uid)
		}
	}
	return removed
}

// Count returns the number of known controllers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controllers)
}
