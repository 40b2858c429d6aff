package zencontrol

import "errors"

// Domain-specific errors for zencontrol operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrCommandTimeout is returned when a command receives no matching
	// response within its deadline. Retry policy belongs to the caller.
	ErrCommandTimeout = errors.New("zencontrol: command timed out")

	// ErrTransportClosed is returned when sending through a stopped transport.
	ErrTransportClosed = errors.New("zencontrol: transport closed")

	// ErrSequenceExhausted is returned when all 65536 sequence numbers have
	// outstanding commands. Practically unreachable, but the allocator
	// refuses to reuse a sequence that still has a waiter.
	ErrSequenceExhausted = errors.New("zencontrol: no free sequence numbers")

	// ErrDeviceNotFound is returned when a device id does not resolve in the
	// hub's device index.
	ErrDeviceNotFound = errors.New("zencontrol: device not found")

	// ErrControllerNotFound is returned when a controller uid is unknown.
	ErrControllerNotFound = errors.New("zencontrol: controller not found")

	// ErrNotASwitch is returned when a switch-only operation targets a
	// device of another kind.
	ErrNotASwitch = errors.New("zencontrol: device is not a switch")

	// ErrInvalidButton is returned for out-of-range button indices on
	// outbound operations. Inbound events with bad indices are logged and
	// dropped instead.
	ErrInvalidButton = errors.New("zencontrol: invalid button index")

	// ErrUnknownCommand is returned when a named device command does not
	// exist for the target device kind.
	ErrUnknownCommand = errors.New("zencontrol: unknown device command")
)
