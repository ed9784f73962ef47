// internal/response/errors.go
package response

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyLine is matched by a DecodeError for a line with no content
	// once the terminator and surrounding whitespace are stripped.
	ErrEmptyLine = errors.New("empty response line")

	// ErrUnrecognized is matched by a DecodeError for a line no registered
	// pattern accepts.
	ErrUnrecognized = errors.New("unrecognized response")

	// ErrMalformedField is matched by a DecodeError for a structurally valid
	// line with a field that does not parse as its declared type.
	ErrMalformedField = errors.New("malformed response field")

	// ErrInvalidEncoding is matched by a DecodeError for bytes that are not
	// valid UTF-8.
	ErrInvalidEncoding = errors.New("response is not valid UTF-8")
)

// DecodeErrorKind classifies a decode failure
type DecodeErrorKind int

const (
	DecodeEmpty DecodeErrorKind = iota + 1
	DecodeUnrecognized
	DecodeMalformedField
	DecodeInvalidEncoding
)

func (k DecodeErrorKind) String() string {
	switch k {
	case DecodeEmpty:
		return "Empty"
	case DecodeUnrecognized:
		return "Unrecognized"
	case DecodeMalformedField:
		return "MalformedField"
	case DecodeInvalidEncoding:
		return "InvalidEncoding"
	default:
		return fmt.Sprintf("DecodeErrorKind(%d)", int(k))
	}
}

func (k DecodeErrorKind) sentinel() error {
	switch k {
	case DecodeEmpty:
		return ErrEmptyLine
	case DecodeUnrecognized:
		return ErrUnrecognized
	case DecodeMalformedField:
		return ErrMalformedField
	case DecodeInvalidEncoding:
		return ErrInvalidEncoding
	default:
		return nil
	}
}

// DecodeError reports why a line could not be decoded. Raw always holds the
// line exactly as received, including invalid bytes.
type DecodeError struct {
	Kind  DecodeErrorKind
	Field string
	Raw   string
	Err   error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case DecodeMalformedField:
		if e.Err != nil {
			return fmt.Sprintf("malformed field %s in %q: %v", e.Field, e.Raw, e.Err)
		}
		return fmt.Sprintf("malformed field %s in %q", e.Field, e.Raw)
	case DecodeEmpty:
		return "empty response line"
	default:
		return fmt.Sprintf("%s: %q", e.Kind.sentinel(), e.Raw)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a DecodeError against the sentinel of its kind
func (e *DecodeError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// PatternError reports an unusable response template
type PatternError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *PatternError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("response pattern %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("response pattern %s: %s", e.Kind, e.Reason)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}
