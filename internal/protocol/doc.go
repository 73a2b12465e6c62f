// Package protocol owns the agent/controller wire vocabulary.
//
// Ownership boundary:
// - command and status codes
// - error taxonomy shared by codec, transport, and dispatcher
// - argument vector parsing for request payloads
//
// Frame layout lives in protocol/frame, transport and handshake in
// protocol/session, and the chunked-transfer convention in protocol/stream.
package protocol
