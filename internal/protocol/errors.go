package protocol

import (
	"errors"
	"fmt"
)

// Class groups errors by how the session must react to them.
type Class uint8

const (
	// ClassTransport errors are fatal to the session.
	ClassTransport Class = iota + 1
	// ClassHandshake errors are fatal before any command is processed.
	ClassHandshake
	// ClassProtocol errors drop the offending frame, or answer it in strict mode.
	ClassProtocol
	// ClassHandler errors are reported to the controller and the session continues.
	ClassHandler
)

func (c Class) String() string {
	switch c {
	case ClassTransport:
		return "transport"
	case ClassHandshake:
		return "handshake"
	case ClassProtocol:
		return "protocol"
	case ClassHandler:
		return "handler"
	default:
		return "unknown"
	}
}

var (
	ErrUnknownCommand    = errors.New("protocol: unknown command")
	ErrUnexpectedFrame   = errors.New("protocol: unexpected frame")
	ErrHandshakeRejected = errors.New("protocol: handshake rejected")
	ErrCancelled         = errors.New("protocol: cancelled")
	ErrInterrupted       = errors.New("protocol: interrupted by new command")
	ErrInvalidArgs       = errors.New("protocol: invalid arguments")
)

// Error attaches a Class and the failing operation to an underlying error.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Class, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func TransportError(op string, err error) error {
	return &Error{Class: ClassTransport, Op: op, Err: err}
}

func HandshakeError(op string, err error) error {
	return &Error{Class: ClassHandshake, Op: op, Err: err}
}

func ProtocolError(op string, err error) error {
	return &Error{Class: ClassProtocol, Op: op, Err: err}
}

func HandlerError(op string, err error) error {
	return &Error{Class: ClassHandler, Op: op, Err: err}
}

// ClassOf returns the class of err. Unclassified errors are handler errors:
// anything a handler returns without wrapping is reported, never fatal.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassHandler
}

// IsFatal reports whether err must terminate the session.
func IsFatal(err error) bool {
	switch ClassOf(err) {
	case ClassTransport, ClassHandshake:
		return true
	default:
		return false
	}
}

// Reason returns the text sent to the controller for err: the innermost
// message without class prefixes.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrInterrupted):
		return "interrupted"
	}
	var pe *Error
	for errors.As(err, &pe) {
		err = pe.Err
	}
	return err.Error()
}
