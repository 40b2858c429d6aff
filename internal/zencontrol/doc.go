// Package zencontrol implements the device communication and state
// synchronization layer for zencontrol DALI lighting controllers.
//
// The package reconciles two asynchronous, unreliable network channels into
// one consistent in-memory device model:
//
//   - UDP unicast command/response: each outbound command carries a 2-byte
//     big-endian sequence number; the matching response resolves exactly the
//     caller that issued it (Transport).
//   - Multicast JSON notifications: controllers broadcast status heartbeats
//     and device events to a multicast group (MulticastListener).
//
// The Hub composes the transports with a controller registry and a flat
// device index, routes multicast events to the right device or controller,
// and runs a watchdog that expires controllers that stop heartbeating.
// Discovery enumerates controllers and their devices, at most one run at a
// time.
//
// Lights and switches apply command effects to local state optimistically,
// before (and regardless of) controller acknowledgment. The local view can
// diverge from the physical device until the next authoritative multicast
// event; callers see the send error but the state change stands.
package zencontrol
