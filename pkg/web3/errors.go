package web3

import (
	"errors"
	"evm-wire-codec/pkg/hexcodec"
	"fmt"
)

var (
	// ErrInvalidEncoding marks malformed hex text, non-hex characters or a wrong byte length.
	ErrInvalidEncoding = hexcodec.ErrInvalidEncoding
	// ErrMissingOrMismatchedField marks a required field that is absent or has the wrong shape.
	ErrMissingOrMismatchedField = errors.New("missing or mismatched field")
)

// FieldError reports which field of which entity failed to decode.
// Err wraps ErrInvalidEncoding or ErrMissingOrMismatchedField.
type FieldError struct {
	Entity string
	Field  string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Entity, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// nest prefixes the entity path of a nested decode failure, so that a bad topic
// reports as receipt.logs[2].topics[1].
func nest(entity, field string, err error) error {
	var fe *FieldError
	if errors.As(err, &fe) {
		return &FieldError{Entity: entity, Field: field + "." + fe.Field, Err: fe.Err}
	}
	return &FieldError{Entity: entity, Field: field, Err: err}
}

func missing(entity, field string) error {
	return &FieldError{Entity: entity, Field: field, Err: ErrMissingOrMismatchedField}
}
