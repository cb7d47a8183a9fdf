package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stackplan-io/stackplan/internal/ir"
)

// ParamRefScheme prefixes parameter references inside resource properties
// and outputs, e.g. "param://region".
const ParamRefScheme = "param://"

// RunConfig is the immutable per-run configuration: the resolved parameter
// set and the provider region. It is built once at evaluation start and
// passed explicitly to every step that needs it; nothing in the engine reads
// ambient environment state.
type RunConfig struct {
	Region string
	Params map[string]any
}

// NewRunConfig builds a run configuration from resolved parameters. The
// "region" parameter, if declared, becomes the provider region.
func NewRunConfig(params map[string]any) *RunConfig {
	cfg := &RunConfig{Params: params}
	if region, ok := params["region"].(string); ok {
		cfg.Region = region
	}
	return cfg
}

// ResolveParameters resolves declared parameters against overrides,
// override-or-default. Duplicate declarations and overrides naming an
// undeclared parameter are errors; so is an override that cannot be coerced
// to the declared type.
func ResolveParameters(decls []*ir.Parameter, overrides map[string]string) (map[string]any, error) {
	resolved := make(map[string]any, len(decls))
	declared := make(map[string]*ir.Parameter, len(decls))

	for _, p := range decls {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter with empty name")
		}
		if _, dup := declared[p.Name]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", p.Name)
		}
		declared[p.Name] = p
		resolved[p.Name] = p.Default
	}

	for name, raw := range overrides {
		p, ok := declared[name]
		if !ok {
			return nil, fmt.Errorf("override for undeclared parameter %q", name)
		}
		val, err := coerceParam(p, raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		resolved[name] = val
	}

	return resolved, nil
}

// coerceParam converts a string override to the parameter's declared type.
func coerceParam(p *ir.Parameter, raw string) (any, error) {
	switch p.Type {
	case "", "string":
		return raw, nil
	case "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", raw)
		}
		return f, nil
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected bool, got %q", raw)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", p.Type)
	}
}

// SubstituteParams replaces param:// references in a property value with the
// resolved parameter value. A reference to an undeclared parameter is an
// error.
func SubstituteParams(v any, params map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, ParamRefScheme) {
			return val, nil
		}
		name := val[len(ParamRefScheme):]
		resolved, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("reference to undeclared parameter %q", name)
		}
		return resolved, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			sub, err := SubstituteParams(v, params)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			sub, err := SubstituteParams(v, params)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprintf("%v", k)] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			sub, err := SubstituteParams(v, params)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return val, nil
	}
}
