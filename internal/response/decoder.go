// internal/response/decoder.go
package response

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Decoder turns one received line into a typed Result. It has no side
// effects and is safe for concurrent use.
type Decoder struct {
	registry    *Registry
	terminator  string
	rawFallback bool
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithTerminator strips terminator from the end of a line before matching
func WithTerminator(terminator string) DecoderOption {
	return func(d *Decoder) {
		d.terminator = terminator
	}
}

// WithRawFallback makes a RESPONSE line that matches no pattern decode to
// Raw instead of failing as unrecognized.
func WithRawFallback() DecoderOption {
	return func(d *Decoder) {
		d.rawFallback = true
	}
}

// NewDecoder creates a decoder over registry, or the default registry when nil
func NewDecoder(registry *Registry, opts ...DecoderOption) *Decoder {
	if registry == nil {
		registry = DefaultRegistry()
	}
	d := &Decoder{registry: registry}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode decodes raw. Every input yields either a Result or a *DecodeError.
func (d *Decoder) Decode(raw []byte) (Result, error) {
	original := string(raw)

	if !utf8.Valid(raw) {
		return nil, &DecodeError{Kind: DecodeInvalidEncoding, Raw: original}
	}

	line := original
	if d.terminator != "" {
		line = strings.TrimSuffix(line, d.terminator)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, &DecodeError{Kind: DecodeEmpty, Raw: original}
	}

	pattern, captures, ok := d.registry.Lookup(line)
	if !ok {
		if d.rawFallback && strings.HasPrefix(line, responsePrefix) {
			return Raw{Text: line}, nil
		}
		return nil, &DecodeError{Kind: DecodeUnrecognized, Raw: original}
	}

	values := make([]any, len(pattern.Fields))
	for i, field := range pattern.Fields {
		v, err := parseField(field.Type, strings.TrimSpace(captures[i]))
		if err != nil {
			return nil, &DecodeError{
				Kind:  DecodeMalformedField,
				Field: field.Name,
				Raw:   original,
				Err:   err,
			}
		}
		values[i] = v
	}

	return pattern.build(values), nil
}

// IsReply reports whether raw is a reply line at all, that is whether it
// starts with RESPONSE: after leading whitespace. Other lines are device
// chatter such as firmware logs and are not decoded.
func (d *Decoder) IsReply(raw []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeftFunc(raw, unicode.IsSpace), []byte(responsePrefix))
}

func parseField(t FieldType, s string) (any, error) {
	switch t {
	case FieldInteger:
		return strconv.Atoi(s)
	case FieldDecimal:
		return decimal.NewFromString(s)
	default:
		if !isWord(s) {
			return nil, errNotWord
		}
		return s, nil
	}
}

var errNotWord = errors.New("not a single word token")

// isWord reports whether s is a single non-empty token without whitespace
func isWord(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, unicode.IsSpace) < 0
}
