package engine

import (
	"fmt"
	"strings"

	"github.com/stackplan-io/stackplan/internal/ir"
)

// ResolveOutputs resolves declared outputs against resource state. Output
// values are typically ptr:// references into a resource's attributes; a
// reference that does not resolve is an error.
func ResolveOutputs(outputs map[string]any, state *ir.State) (map[string]any, error) {
	stateMap := make(map[string]*ir.ResourceState, len(state.Resources))
	for _, res := range state.Resources {
		stateMap[fmt.Sprintf("%s.%s", res.Type, res.Name)] = res
	}

	resolved := make(map[string]any, len(outputs))
	for name, val := range outputs {
		v, err := resolvePtrRefs(val, stateMap)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}
		resolved[name] = v
	}
	return resolved, nil
}

// resolvePtrRefs replaces ptr:// references in a value with the referenced
// resource attribute from state.
func resolvePtrRefs(v any, stateMap map[string]*ir.ResourceState) (any, error) {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, PtrRefScheme) {
			return val, nil
		}
		addr := ptrRefToAddr(val)
		attr := ptrRefAttr(val)
		if addr == "" || attr == "" {
			return nil, fmt.Errorf("malformed reference %q", val)
		}
		res, ok := stateMap[addr]
		if !ok {
			return nil, fmt.Errorf("reference %q: resource %s not in state", val, addr)
		}
		attrVal, ok := res.Outputs[attr]
		if !ok {
			return nil, fmt.Errorf("reference %q: resource %s has no attribute %q", val, addr, attr)
		}
		return attrVal, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			r, err := resolvePtrRefs(v, stateMap)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			r, err := resolvePtrRefs(v, stateMap)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return val, nil
	}
}
