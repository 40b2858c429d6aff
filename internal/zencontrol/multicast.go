package zencontrol

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"unicode/utf8"
)

// maxEventDatagramSize bounds inbound multicast reads.
const maxEventDatagramSize = 8192

// EventListener receives every successfully decoded multicast event.
// A panic inside one listener is recovered and logged without preventing
// delivery to the remaining listeners.
type EventListener func(event map[string]any)

// MulticastListener joins a multicast group and fans decoded JSON event
// objects out to registered listeners.
//
// Decode policy: datagrams that are not valid UTF-8 or not valid JSON
// objects are logged at warning level and dropped; they never reach
// listeners, and one corrupt datagram does not affect subsequent ones.
//
// Thread Safety: All methods are safe for concurrent use.
type MulticastListener struct {
	group  string
	port   int
	logger Logger

	conn *net.UDPConn

	listeners  map[int]EventListener
	nextID     int
	listenerMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
	mu       sync.Mutex
}

// NewMulticastListener creates a listener for the given group and port.
// Call Start to join the group.
func NewMulticastListener(group string, port int, logger Logger) *MulticastListener {
	return &MulticastListener{
		group:     group,
		port:      port,
		logger:    orNoop(logger),
		listeners: make(map[int]EventListener),
		done:      make(chan struct{}),
	}
}

// Start joins the multicast group and begins dispatching events.
// Calling Start on an already started listener is a no-op.
func (m *MulticastListener) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	group := net.ParseIP(m.group)
	if group == nil || !group.IsMulticast() {
		return fmt.Errorf("invalid multicast group %q", m.group)
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, &net.UDPAddr{IP: group, Port: m.port})
	if err != nil {
		return fmt.Errorf("joining multicast group %s:%d: %w", m.group, m.port, err)
	}

	if err := conn.SetReadBuffer(maxEventDatagramSize); err != nil {
		m.logger.Warn("setting multicast read buffer failed", "error", err)
	}

	m.conn = conn
	m.started = true

	m.wg.Add(1)
	go m.readLoop()

	m.logger.Info("joined multicast group", "group", m.group, "port", m.port)
	return nil
}

// Stop leaves the multicast group. Calling Stop when not started, or more
// than once, is a no-op.
func (m *MulticastListener) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)

		m.mu.Lock()
		if m.conn != nil {
			m.conn.Close() //nolint:errcheck // Socket teardown
		}
		m.mu.Unlock()

		m.wg.Wait()
		m.logger.Debug("multicast listener stopped")
	})
}

// AddListener registers a callback invoked for every valid event.
// The returned id removes the listener via RemoveListener.
func (m *MulticastListener) AddListener(listener EventListener) int {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()

	m.nextID++
	m.listeners[m.nextID] = listener
	return m.nextID
}

// RemoveListener unregisters a previously added listener.
// Removing an unknown id is a no-op.
func (m *MulticastListener) RemoveListener(id int) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	delete(m.listeners, id)
}

// ListenerCount returns the number of registered listeners.
func (m *MulticastListener) ListenerCount() int {
	m.listenerMu.RLock()
	defer m.listenerMu.RUnlock()
	return len(m.listeners)
}

// readLoop reads datagrams and dispatches decoded events.
func (m *MulticastListener) readLoop() {
	defer m.wg.Done()

	buf := make([]byte, maxEventDatagramSize)
	for {
		n, addr, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-m.done:
				return
			default:
				m.logger.Warn("multicast read error", "error", err)
				continue
			}
		}

		m.handleDatagram(buf[:n], addr.String())
	}
}

// handleDatagram decodes one datagram and fans it out to listeners.
func (m *MulticastListener) handleDatagram(data []byte, addr string) {
	if !utf8.Valid(data) {
		m.logger.Warn("non-utf8 multicast data dropped", "addr", addr, "bytes", len(data))
		return
	}

	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		m.logger.Warn("malformed multicast data dropped", "addr", addr, "error", err)
		return
	}

	m.logger.Debug("multicast event received", "addr", addr, "type", event["type"])

	m.listenerMu.RLock()
	listeners := make([]EventListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listenerMu.RUnlock()

	for _, l := range listeners {
		m.dispatch(l, event)
	}
}

// dispatch invokes one listener with panic isolation.
func (m *MulticastListener) dispatch(listener EventListener, event map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("multicast listener panic recovered", "panic", r)
		}
	}()
	listener(event)
}
