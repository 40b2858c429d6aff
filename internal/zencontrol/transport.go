package zencontrol

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
)

// Transport constants.
const (
	// sequenceHeaderLen is the size of the big-endian sequence prefix on
	// every command and response datagram.
	sequenceHeaderLen = 2

	// sequenceSpace is the number of distinct sequence values (16-bit).
	sequenceSpace = 1 << 16

	// maxDatagramSize bounds inbound response reads.
	maxDatagramSize = 2048
)

// Transport provides sequence-correlated request/response messaging to
// zencontrol controllers over UDP.
//
// Each command is framed as [2-byte big-endian sequence][payload] and sent
// to the controller's IP on the configured port. The response echoes the
// sequence, which resolves exactly the caller that issued it. Many commands
// may be in flight concurrently; completion of one never affects others.
//
// Thread Safety: All methods are safe for concurrent use.
type Transport struct {
	port   int
	logger Logger

	conn *net.UDPConn

	// pending maps outstanding sequence numbers to their waiters.
	// Slots are inserted on send and removed by whichever side settles
	// first (response, timeout, or cancellation), never both.
	pending map[uint16]chan []byte
	seq     uint16
	mu      sync.Mutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
}

// NewTransport creates a Transport sending commands to the given controller
// UDP port. Call Start before sending commands.
func NewTransport(port int, logger Logger) *Transport {
	return &Transport{
		port:    port,
		logger:  orNoop(logger),
		pending: make(map[uint16]chan []byte),
		done:    make(chan struct{}),
	}
}

// Start binds the UDP socket and begins dispatching responses.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}

	// Bind an ephemeral local port; controllers reply to the source
	// address of the request, so responses land on this socket.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return fmt.Errorf("binding udp socket: %w", err)
	}

	t.conn = conn
	t.started = true

	t.wg.Add(1)
	go t.readLoop()

	t.logger.Info("udp transport started", "controller_port", t.port, "local", conn.LocalAddr().String())
	return nil
}

// Stop closes the socket and fails all outstanding commands with
// ErrTransportClosed. Safe to call multiple times or before Start.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)

		t.mu.Lock()
		t.started = false
		if t.conn != nil {
			t.conn.Close() //nolint:errcheck // Socket teardown
		}
		t.mu.Unlock()

		t.wg.Wait()
		t.logger.Debug("udp transport stopped")
	})
}

// SendCommand sends a framed command to the controller at addr and waits
// for the correlated response.
//
// On timeout the pending slot is discarded and ErrCommandTimeout is
// returned; no retry is performed internally. Context cancellation settles
// the command the same way with the context's error.
//
// Parameters:
//   - ctx: Context for cancellation
//   - addr: Controller IP address (port is the transport's configured port)
//   - payload: Opaque command bytes (sequence header is prepended here)
//   - timeout: Per-command response deadline
//
// Returns:
//   - []byte: Response payload with the sequence header stripped
//   - error: ErrCommandTimeout, ErrTransportClosed, or a send failure
func (t *Transport) SendCommand(ctx context.Context, addr string, payload []byte, timeout time.Duration) ([]byte, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("invalid controller address %q", addr)
	}

	seq, result, err := t.register()
	if err != nil {
		return nil, err
	}

	frame := make([]byte, sequenceHeaderLen+len(payload))
	binary.BigEndian.PutUint16(frame, seq)
	copy(frame[sequenceHeaderLen:], payload)

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		t.unregister(seq)
		return nil, ErrTransportClosed
	}

	if _, err := conn.WriteToUDP(frame, &net.UDPAddr{IP: ip, Port: t.port}); err != nil {
		t.unregister(seq)
		return nil, fmt.Errorf("sending command seq %d to %s: %w", seq, addr, err)
	}

	t.logger.Debug("command sent", "addr", addr, "seq", seq, "bytes", len(payload))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case response := <-result:
		return response, nil
	case <-timer.C:
		t.unregister(seq)
		t.logger.Warn("command timeout", "addr", addr, "seq", seq)
		return nil, fmt.Errorf("%w: seq %d to %s after %v", ErrCommandTimeout, seq, addr, timeout)
	case <-ctx.Done():
		t.unregister(seq)
		return nil, fmt.Errorf("command seq %d to %s: %w", seq, addr, ctx.Err())
	case <-t.done:
		t.unregister(seq)
		return nil, ErrTransportClosed
	}
}

// register allocates the next free sequence number and its result slot.
//
// The counter increments modulo 65536 but skips values that still have an
// outstanding waiter, so a slow response can never be delivered to a later
// command that happened to wrap onto the same sequence.
func (t *Transport) register() (uint16, chan []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return 0, nil, ErrTransportClosed
	}

	for i := 0; i < sequenceSpace; i++ {
		t.seq++
		if _, outstanding := t.pending[t.seq]; !outstanding {
			result := make(chan []byte, 1)
			t.pending[t.seq] = result
			return t.seq, result, nil
		}
	}

	return 0, nil, ErrSequenceExhausted
}

// unregister discards a pending slot, if still present.
func (t *Transport) unregister(seq uint16) {
	t.mu.Lock()
	delete(t.pending, seq)
	t.mu.Unlock()
}

// readLoop dispatches inbound datagrams to their waiters.
func (t *Transport) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				t.logger.Warn("udp read error", "error", err)
				continue
			}
		}

		if n < sequenceHeaderLen {
			t.logger.Warn("malformed datagram dropped", "addr", addr.String(), "bytes", n)
			continue
		}

		seq := binary.BigEndian.Uint16(buf[:sequenceHeaderLen])
		payload := make([]byte, n-sequenceHeaderLen)
		copy(payload, buf[sequenceHeaderLen:n])

		t.mu.Lock()
		result, ok := t.pending[seq]
		if ok {
			delete(t.pending, seq)
		}
		t.mu.Unlock()

		if !ok {
			// Stale or duplicate response; nothing is waiting.
			t.logger.Warn("unmatched response dropped", "addr", addr.String(), "seq", seq)
			continue
		}

		result <- payload
		t.logger.Debug("response delivered", "addr", addr.String(), "seq", seq)
	}
}

// PendingCount returns the number of commands awaiting responses.
func (t *Transport) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
