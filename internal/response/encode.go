// internal/response/encode.go
package response

import (
	"fmt"
	"strings"
)

type wireValuer interface {
	wireValues() []string
}

// Encode renders r as the exact line the firmware would send, without a
// terminator: "RESPONSE: <KIND>, <FIELD>: <value>, ..." in template order.
func Encode(r Result) (string, error) {
	if raw, ok := r.(Raw); ok {
		return raw.Text, nil
	}

	t, ok := templateFor(r.Kind())
	if !ok {
		return "", fmt.Errorf("encode %s: unknown response kind", r.Kind())
	}
	wv, ok := r.(wireValuer)
	if !ok {
		return "", fmt.Errorf("encode %s: unsupported result type %T", r.Kind(), r)
	}
	values := wv.wireValues()

	var b strings.Builder
	b.WriteString(responsePrefix)
	b.WriteString(" ")
	b.WriteString(string(t.kind))
	for i, f := range t.fields {
		fmt.Fprintf(&b, ", %s: %s", f.Name, values[i])
	}
	return b.String(), nil
}
