package engine

import (
	"fmt"

	"github.com/stackform-io/stackform/internal/ir"
)

// RedactedPlaceholder stands in for sensitive output values in any listing
// that shows more than one output at a time.
const RedactedPlaceholder = "(sensitive)"

// ResolveOutputs materializes declared outputs against committed state.
// Sensitivity is carried through so renderers can redact; the stored value
// itself is always the real one.
func ResolveOutputs(decls map[string]*ir.Output, snap *ir.State) (map[string]*ir.OutputState, error) {
	if len(decls) == 0 {
		return nil, nil
	}
	out := make(map[string]*ir.OutputState, len(decls))
	for name, decl := range decls {
		val, err := resolveValue(ir.ParseAttributes(decl.Value), snap)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}
		out[name] = &ir.OutputState{Value: val, Sensitive: decl.Sensitive}
	}
	return out, nil
}
