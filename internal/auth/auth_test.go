package auth

import (
	"errors"
	"testing"

	"github.com/schilltyler/capstone-0/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  []byte
		input   []byte
		wantErr error
	}{
		{name: "empty token denied", stored: nil, input: []byte{0xDE}, wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: []byte{0xDE, 0xAD, 0xBE, 0xEF}, input: []byte{0xDE, 0xAD, 0xBE, 0xEE}, wantErr: ErrUnauthorized},
		{name: "short token denied", stored: []byte{0xDE, 0xAD, 0xBE, 0xEF}, input: []byte{0xDE, 0xAD}, wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: []byte{0xDE, 0xAD, 0xBE, 0xEF}, input: []byte{0xDE, 0xAD, 0xBE, 0xEF}, wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestAnyToken(t *testing.T) {
	testlog.Start(t)
	v := AnyToken{{Token: []byte("old!")}, {Token: []byte("new!")}}
	if err := v.Validate([]byte("new!")); err != nil {
		t.Fatalf("expected rotated token accepted, got %v", err)
	}
	if err := v.Validate([]byte("bad!")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := (AnyToken{}).Validate([]byte("new!")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected empty set to deny, got %v", err)
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token []byte) error {
		if string(token) != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	if err := validator.Validate([]byte("bad")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := validator.Validate([]byte("ok")); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}
