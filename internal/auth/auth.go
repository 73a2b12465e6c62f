// Package auth validates handshake tokens.
package auth

import (
	"crypto/subtle"
	"errors"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates the raw token an agent presents.
type Validator interface {
	Validate(token []byte) error
}

// StaticToken accepts exactly one shared token, compared in constant time.
type StaticToken struct {
	Token []byte
}

func (s StaticToken) Validate(token []byte) error {
	if len(s.Token) == 0 {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(s.Token, token) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// AnyToken accepts any of several tokens, such as during a token rotation.
type AnyToken []StaticToken

func (a AnyToken) Validate(token []byte) error {
	ok := 0
	for _, s := range a {
		if s.Validate(token) == nil {
			ok = 1
		}
	}
	if ok != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token []byte) error

func (f FuncValidator) Validate(token []byte) error {
	return f(token)
}
