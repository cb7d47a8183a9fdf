package engine

import (
	"testing"

	"github.com/stackplan-io/stackplan/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveParameters_Defaults(t *testing.T) {
	decls := []*ir.Parameter{
		{Name: "env", Type: "string", Default: "staging"},
		{Name: "count", Type: "number", Default: 2.0},
		{Name: "debug", Type: "bool", Default: false},
	}

	params, err := ResolveParameters(decls, nil)
	require.NoError(t, err)
	assert.Equal(t, "staging", params["env"])
	assert.Equal(t, 2.0, params["count"])
	assert.Equal(t, false, params["debug"])
}

func TestResolveParameters_OverrideWins(t *testing.T) {
	decls := []*ir.Parameter{
		{Name: "env", Type: "string", Default: "staging"},
		{Name: "count", Type: "number", Default: 2.0},
		{Name: "debug", Type: "bool", Default: false},
	}

	params, err := ResolveParameters(decls, map[string]string{
		"env":   "prod",
		"count": "5",
		"debug": "true",
	})
	require.NoError(t, err)
	assert.Equal(t, "prod", params["env"])
	assert.Equal(t, 5.0, params["count"])
	assert.Equal(t, true, params["debug"])
}

func TestResolveParameters_DuplicateDeclaration(t *testing.T) {
	decls := []*ir.Parameter{
		{Name: "env", Type: "string", Default: "a"},
		{Name: "env", Type: "string", Default: "b"},
	}

	_, err := ResolveParameters(decls, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate parameter")
}

func TestResolveParameters_UndeclaredOverride(t *testing.T) {
	decls := []*ir.Parameter{
		{Name: "env", Type: "string", Default: "staging"},
	}

	_, err := ResolveParameters(decls, map[string]string{"unknown": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared parameter")
}

func TestResolveParameters_CoercionFailure(t *testing.T) {
	decls := []*ir.Parameter{
		{Name: "count", Type: "number", Default: 1.0},
	}

	_, err := ResolveParameters(decls, map[string]string{"count": "not-a-number"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected number")
}

func TestResolveParameters_UnknownType(t *testing.T) {
	decls := []*ir.Parameter{
		{Name: "weird", Type: "tuple", Default: nil},
	}

	_, err := ResolveParameters(decls, map[string]string{"weird": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown parameter type")
}

func TestSubstituteParams(t *testing.T) {
	params := map[string]any{
		"env":  "prod",
		"size": 3.0,
	}

	in := map[string]any{
		"name":  "web-param://env",  // not a full-value ref, left alone
		"stage": "param://env",
		"nested": map[string]any{
			"replicas": "param://size",
		},
		"list": []any{"param://env", "literal"},
	}

	out, err := SubstituteParams(in, params)
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "web-param://env", m["name"])
	assert.Equal(t, "prod", m["stage"])
	assert.Equal(t, 3.0, m["nested"].(map[string]any)["replicas"])
	assert.Equal(t, []any{"prod", "literal"}, m["list"])
}

func TestSubstituteParams_Undeclared(t *testing.T) {
	_, err := SubstituteParams("param://missing", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared parameter")
}

func TestNewRunConfig_Region(t *testing.T) {
	cfg := NewRunConfig(map[string]any{"region": "eu-west-1", "env": "prod"})
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "prod", cfg.Params["env"])

	cfg = NewRunConfig(map[string]any{"env": "prod"})
	assert.Empty(t, cfg.Region)
}
