// Package commands maps command codes to handlers.
//
// Handler shapes:
// - single: fills the session response frame, the dispatcher sends it
// - stream: owns the transport through a stream.Writer until a terminal frame
// - control: cancel and exit, handled by the dispatcher itself
//
// The registry is a closed lookup table over the enumerated codes. Codes
// without an entry take the dispatcher's unhandled branch.
package commands
