// Package session owns the agent<->controller connection primitives.
//
// Ownership boundary:
// - transport: dial, read-exact and write-exact of whole frames
// - handshake: token exchange performed once per connection
// - non-blocking pending-frame checks used for cancellation
// - timeouts and reconnect backoff defaults
//
// Lifecycle order:
// - dial -> handshake -> frames
//
// - no frame is read before the handshake has been accepted.
package session
