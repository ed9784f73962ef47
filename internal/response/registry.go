// internal/response/registry.go
package response

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// FieldType is the declared type of a captured field
type FieldType int

const (
	FieldInteger FieldType = iota
	FieldDecimal
	FieldWord
)

func (t FieldType) String() string {
	switch t {
	case FieldInteger:
		return "integer"
	case FieldDecimal:
		return "decimal"
	case FieldWord:
		return "word"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Field is one named capture of a template
type Field struct {
	Name string
	Type FieldType
}

// Pattern maps a response kind to its ordered capture fields
type Pattern struct {
	Kind   Kind
	Fields []Field

	expr  *regexp.Regexp
	build func(values []any) Result
}

// Expr returns the regular expression the pattern matches with
func (p Pattern) Expr() string {
	if p.expr == nil {
		return ""
	}
	return p.expr.String()
}

// template is the built-in definition of a kind. The order of the templates
// slice is the registry's match order.
type template struct {
	kind   Kind
	fields []Field
	build  func(values []any) Result
}

var templates = []template{
	{
		kind:   KindGPIOOutput,
		fields: []Field{{"PIN", FieldInteger}, {"STATUS", FieldWord}},
		build: func(v []any) Result {
			return GPIOOutput{Pin: v[0].(int), Status: v[1].(string)}
		},
	},
	{
		kind:   KindGPIOInput,
		fields: []Field{{"PIN", FieldInteger}, {"VALUE", FieldWord}, {"STATUS", FieldWord}},
		build: func(v []any) Result {
			return GPIOInput{Pin: v[0].(int), Value: v[1].(string), Status: v[2].(string)}
		},
	},
	{
		kind:   KindPWMOutput,
		fields: []Field{{"PIN", FieldInteger}, {"STATUS", FieldWord}},
		build: func(v []any) Result {
			return PWMOutput{Pin: v[0].(int), Status: v[1].(string)}
		},
	},
	{
		kind:   KindDACOutput,
		fields: []Field{{"PIN", FieldInteger}, {"STATUS", FieldWord}},
		build: func(v []any) Result {
			return DACOutput{Pin: v[0].(int), Status: v[1].(string)}
		},
	},
	{
		kind:   KindADCInput,
		fields: []Field{{"PIN", FieldInteger}, {"VALUE", FieldInteger}, {"STATUS", FieldWord}},
		build: func(v []any) Result {
			return ADCInput{Pin: v[0].(int), Value: v[1].(int), Status: v[2].(string)}
		},
	},
	{
		kind:   KindGenSignal,
		fields: []Field{{"TYPE", FieldInteger}, {"VALUE", FieldDecimal}, {"STATUS", FieldWord}},
		build: func(v []any) Result {
			return GenSignal{SignalType: v[0].(int), Value: v[1].(decimal.Decimal), Status: v[2].(string)}
		},
	},
	{
		kind:   KindClosedLoop,
		fields: []Field{{"ID", FieldInteger}, {"STATUS", FieldWord}},
		build: func(v []any) Result {
			return ClosedLoop{ID: v[0].(int), Status: v[1].(string)}
		},
	},
}

// responsePrefix starts every reply line on the wire
const responsePrefix = "RESPONSE:"

// templateExpr builds the structural matcher for a kind. Captures are loose
// (anything up to the next comma) so that a badly typed value still matches
// structurally and is reported as a malformed field.
func templateExpr(kind Kind, fields []Field) string {
	var b strings.Builder
	b.WriteString(`^RESPONSE:\s*`)
	b.WriteString(regexp.QuoteMeta(string(kind)))
	for _, f := range fields {
		b.WriteString(`\s*,\s*`)
		b.WriteString(regexp.QuoteMeta(f.Name))
		b.WriteString(`\s*:\s*([^,]*?)`)
	}
	b.WriteString(`\s*$`)
	return b.String()
}

// Registry is an immutable, ordered set of response patterns. Lookup tries
// patterns in registration order and the first match wins. The order is the
// kind order GPIO_OUTPUT, GPIO_INPUT, PWM_OUTPUT, DAC_OUTPUT, ADC_INPUT,
// GEN_SIGNAL, CLOSED_LOOP regardless of where an override came from.
// A Registry is safe for concurrent use.
type Registry struct {
	patterns []Pattern
}

var defaultRegistry = mustRegistry(NewRegistry(nil))

func mustRegistry(r *Registry, err error) *Registry {
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRegistry returns the registry built from the built-in templates
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// NewRegistry builds a registry from the built-in templates. overrides replaces
// the matcher of a kind with a custom regular expression; it must have exactly
// one capture group per field of that kind, in field order. An override is
// always matched from the start of the line: one without a leading ^ or \A
// is anchored there. It may still match only a prefix of the line.
func NewRegistry(overrides map[Kind]string) (*Registry, error) {
	for kind := range overrides {
		if _, ok := templateFor(kind); !ok {
			return nil, &PatternError{Kind: kind, Reason: "unknown response kind"}
		}
	}

	patterns := make([]Pattern, 0, len(templates))
	for _, t := range templates {
		expr := templateExpr(t.kind, t.fields)
		if custom, ok := overrides[t.kind]; ok {
			expr = anchorStart(custom)
		}

		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, &PatternError{Kind: t.kind, Reason: "invalid expression", Err: err}
		}
		if re.NumSubexp() != len(t.fields) {
			return nil, &PatternError{
				Kind:   t.kind,
				Reason: fmt.Sprintf("expression has %d capture groups, want %d", re.NumSubexp(), len(t.fields)),
			}
		}

		patterns = append(patterns, Pattern{
			Kind:   t.kind,
			Fields: t.fields,
			expr:   re,
			build:  t.build,
		})
	}

	return &Registry{patterns: patterns}, nil
}

// anchorStart makes expr match only at the beginning of the input
func anchorStart(expr string) string {
	if strings.HasPrefix(expr, "^") || strings.HasPrefix(expr, `\A`) {
		return expr
	}
	return "^(?:" + expr + ")"
}

// Lookup returns the first pattern that structurally matches line together
// with its raw captures.
func (r *Registry) Lookup(line string) (Pattern, []string, bool) {
	for _, p := range r.patterns {
		m := p.expr.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return p, m[1:], true
	}
	return Pattern{}, nil, false
}

// Patterns returns the patterns in match order
func (r *Registry) Patterns() []Pattern {
	out := make([]Pattern, len(r.patterns))
	copy(out, r.patterns)
	return out
}

// Pattern returns the pattern registered for kind
func (r *Registry) Pattern(kind Kind) (Pattern, bool) {
	for _, p := range r.patterns {
		if p.Kind == kind {
			return p, true
		}
	}
	return Pattern{}, false
}

func templateFor(kind Kind) (template, bool) {
	for _, t := range templates {
		if t.kind == kind {
			return t, true
		}
	}
	return template{}, false
}
