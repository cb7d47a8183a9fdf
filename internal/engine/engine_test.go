package engine

import (
	"context"
	"testing"

	"github.com/stackplan-io/stackplan/internal/ir"
	"github.com/stackplan-io/stackplan/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_CreatePlan(t *testing.T) {
	reg := provider.NewRegistry()
	err := reg.LoadProvider("null")
	require.NoError(t, err)

	eng := NewEngine(reg)
	ctx := context.Background()

	// 1. Plan creation (New resource)
	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{
				Type:     "null_resource",
				Name:     "test1",
				Provider: "null",
				Properties: map[string]any{
					"triggers": map[string]string{"a": "b"},
				},
			},
		},
	}

	state := &ir.State{} // Empty state

	plan, err := eng.CreatePlan(ctx, cfg, state, nil)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "CREATE", plan.Changes[0].Action)
	assert.Equal(t, "null_resource.test1", plan.Changes[0].Address)

	// Verify diff is populated for CREATE
	assert.NotNil(t, plan.Changes[0].Diff)
	assert.Contains(t, plan.Changes[0].Diff, "triggers")

	// 2. Plan update (No-op)
	state = &ir.State{
		Resources: []*ir.ResourceState{
			{
				Type:     "null_resource",
				Name:     "test1",
				Provider: "null",
				Outputs: map[string]any{
					"triggers": map[string]string{"a": "b"},
					"id":       "null-test1",
				},
			},
		},
	}

	plan, err = eng.CreatePlan(ctx, cfg, state, nil)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 0)
	assert.Equal(t, 1, plan.Summary.NoOp)

	// 3. Plan replace (Change trigger)
	cfg.Resources[0].Properties["triggers"] = map[string]string{"a": "c"}

	plan, err = eng.CreatePlan(ctx, cfg, state, nil)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "REPLACE", plan.Changes[0].Action)
}

func TestEngine_CreatePlan_Delete(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))

	eng := NewEngine(reg)
	ctx := context.Background()

	// Empty config, resource in state -> DELETE
	cfg := &ir.Config{
		Resources: []*ir.Resource{},
	}

	state := &ir.State{
		Resources: []*ir.ResourceState{
			{
				Type:     "null_resource",
				Name:     "old_resource",
				Provider: "null",
				Outputs:  map[string]any{"id": "null-old"},
			},
		},
	}

	plan, err := eng.CreatePlan(ctx, cfg, state, nil)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "DELETE", plan.Changes[0].Action)
	assert.Equal(t, "null_resource.old_resource", plan.Changes[0].Address)
	assert.Equal(t, 1, plan.Summary.Delete)
}

func TestEngine_CreatePlan_DeleteOrder(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))

	eng := NewEngine(reg)
	ctx := context.Background()

	// Both resources dropped from config; state lists the base first.
	cfg := &ir.Config{
		Resources: []*ir.Resource{},
	}

	state := &ir.State{
		Resources: []*ir.ResourceState{
			{
				Type:     "null_resource",
				Name:     "base",
				Provider: "null",
				Outputs:  map[string]any{"id": "null-base"},
			},
			{
				Type:         "null_resource",
				Name:         "app",
				Provider:     "null",
				Dependencies: []string{"null_resource.base"},
				Outputs:      map[string]any{"id": "null-app"},
			},
		},
	}

	plan, err := eng.CreatePlan(ctx, cfg, state, nil)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 2)
	assert.Equal(t, 2, plan.Summary.Delete)

	// Dependent resources are deleted before the resources they depend on,
	// regardless of state file order.
	assert.Equal(t, "null_resource.app", plan.Changes[0].Address)
	assert.Equal(t, "null_resource.base", plan.Changes[1].Address)
}

func TestEngine_CreatePlan_PreventDestroy(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))

	eng := NewEngine(reg)
	ctx := context.Background()

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{
				Type:     "null_resource",
				Name:     "protected",
				Provider: "null",
				Lifecycle: &ir.Lifecycle{
					PreventDestroy: true,
				},
				Properties: map[string]any{
					"triggers": map[string]string{"a": "b"},
				},
			},
		},
	}

	state := &ir.State{
		Resources: []*ir.ResourceState{
			{
				Type:     "null_resource",
				Name:     "protected",
				Provider: "null",
				Outputs: map[string]any{
					"triggers": map[string]string{"a": "OLD"},
					"id":       "null-protected",
				},
			},
		},
	}

	_, err := eng.CreatePlan(ctx, cfg, state, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prevent_destroy")
}

func TestEngine_CreatePlan_ParameterSubstitution(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))

	eng := NewEngine(reg)
	ctx := context.Background()

	cfg := &ir.Config{
		Params: []*ir.Parameter{
			{Name: "env", Type: "string", Default: "staging"},
		},
		Resources: []*ir.Resource{
			{
				Type:     "null_resource",
				Name:     "tagged",
				Provider: "null",
				Properties: map[string]any{
					"triggers": map[string]any{"env": "param://env"},
				},
			},
		},
	}

	// Default applies when no override is given
	plan, err := eng.CreatePlan(ctx, cfg, &ir.State{}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	triggers := plan.Changes[0].Desired.Properties["triggers"].(map[string]any)
	assert.Equal(t, "staging", triggers["env"])
	assert.Equal(t, "staging", plan.Params["env"])

	// Override wins
	params, err := ResolveParameters(cfg.Params, map[string]string{"env": "prod"})
	require.NoError(t, err)

	plan, err = eng.CreatePlan(ctx, cfg, &ir.State{}, NewRunConfig(params))
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	triggers = plan.Changes[0].Desired.Properties["triggers"].(map[string]any)
	assert.Equal(t, "prod", triggers["env"])
}

func TestEngine_CreatePlan_UndeclaredParamRef(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))

	eng := NewEngine(reg)

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{
				Type:     "null_resource",
				Name:     "broken",
				Provider: "null",
				Properties: map[string]any{
					"triggers": map[string]any{"x": "param://missing"},
				},
			},
		},
	}

	_, err := eng.CreatePlan(context.Background(), cfg, &ir.State{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared parameter")
}

func TestEngine_CreatePlan_DanglingReference(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))

	eng := NewEngine(reg)

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{
				Type:      "null_resource",
				Name:      "orphan",
				Provider:  "null",
				DependsOn: []string{"null_resource.ghost"},
				Properties: map[string]any{
					"triggers": map[string]string{"a": "b"},
				},
			},
		},
	}

	_, err := eng.CreatePlan(context.Background(), cfg, &ir.State{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared resource")
}

func TestEngine_CreateDestroyPlan(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))

	eng := NewEngine(reg)

	state := &ir.State{
		Resources: []*ir.ResourceState{
			{
				Type:         "null_resource",
				Name:         "app",
				Provider:     "null",
				Dependencies: []string{"null_resource.base"},
				Outputs:      map[string]any{"id": "null-app"},
			},
			{
				Type:     "null_resource",
				Name:     "base",
				Provider: "null",
				Outputs:  map[string]any{"id": "null-base"},
			},
		},
	}

	plan, err := eng.CreateDestroyPlan(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 2)
	assert.Equal(t, 2, plan.Summary.Delete)

	// Dependent resources are destroyed before their dependencies
	assert.Equal(t, "null_resource.app", plan.Changes[0].Address)
	assert.Equal(t, "null_resource.base", plan.Changes[1].Address)
}
