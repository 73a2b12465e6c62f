// Package agent runs the agent side of a controller connection.
//
// Ownership boundary:
// - Session: the dispatch loop for one authenticated connection
// - Service: dial, handshake, serve, and optional reconnect with backoff
//
// Lifecycle order:
// - connecting -> authenticating -> ready -> terminated
//
// - one command is in flight at a time; the request and response frames
// belong to the Session and are reused for every command.
package agent
