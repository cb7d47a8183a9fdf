package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stackplan-io/stackplan/internal/ir"
	"github.com/stackplan-io/stackplan/internal/provider"
	pv "github.com/stackplan-io/stackplan/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_ApplyPlan_Create(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))

	eng := NewEngine(reg)
	ctx := context.Background()

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{
				Type:     "null_resource",
				Name:     "web",
				Provider: "null",
				Properties: map[string]any{
					"triggers": map[string]any{"a": "b"},
				},
			},
		},
		Outputs: map[string]any{
			"web_id": "ptr://null_resource/web/id",
		},
	}

	state := &ir.State{Serial: 0}

	plan, err := eng.CreatePlan(ctx, cfg, state, nil)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)

	newState, err := eng.ApplyPlan(ctx, plan, state)
	require.NoError(t, err)

	require.Len(t, newState.Resources, 1)
	res := newState.Resources[0]
	assert.Equal(t, "null_resource", res.Type)
	assert.Equal(t, "web", res.Name)
	assert.Equal(t, "null-web", res.Outputs["id"])
	assert.NotEmpty(t, res.InputsHash)
	assert.Equal(t, 1, newState.Serial)

	// Outputs resolve against the post-apply state
	assert.Equal(t, "null-web", newState.Outputs["web_id"])
}

func TestEngine_ApplyPlan_CrossResourceRef(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))

	eng := NewEngine(reg)
	ctx := context.Background()

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{
				Type:     "null_resource",
				Name:     "base",
				Provider: "null",
				Properties: map[string]any{
					"triggers": map[string]any{"k": "v"},
				},
			},
			{
				Type:     "null_resource",
				Name:     "app",
				Provider: "null",
				Properties: map[string]any{
					"triggers": map[string]any{"base": "ptr://null_resource/base/id"},
				},
			},
		},
	}

	state := &ir.State{}

	plan, err := eng.CreatePlan(ctx, cfg, state, nil)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 2)

	// base must be planned before app
	assert.Equal(t, "null_resource.base", plan.Changes[0].Address)
	assert.Equal(t, "null_resource.app", plan.Changes[1].Address)

	newState, err := eng.ApplyPlan(ctx, plan, state)
	require.NoError(t, err)
	require.Len(t, newState.Resources, 2)

	var app *ir.ResourceState
	for _, r := range newState.Resources {
		if r.Name == "app" {
			app = r
		}
	}
	require.NotNil(t, app)

	// The reference resolved to base's actual id at apply time
	triggers, ok := app.Inputs["triggers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "null-base", triggers["base"])
	assert.Contains(t, app.Dependencies, "null_resource.base")
}

func TestEngine_ApplyPlan_Delete(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))

	eng := NewEngine(reg)
	ctx := context.Background()

	cfg := &ir.Config{Resources: []*ir.Resource{}}
	state := &ir.State{
		Serial: 3,
		Resources: []*ir.ResourceState{
			{
				Type:     "null_resource",
				Name:     "old",
				Provider: "null",
				Outputs:  map[string]any{"id": "null-old"},
			},
		},
	}

	plan, err := eng.CreatePlan(ctx, cfg, state, nil)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)

	newState, err := eng.ApplyPlan(ctx, plan, state)
	require.NoError(t, err)
	assert.Empty(t, newState.Resources)
	assert.Equal(t, 4, newState.Serial)
}

func TestEngine_ApplyPlan_FailFast(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))
	reg.Register("boom", &failingProvider{})

	eng := NewEngine(reg)
	ctx := context.Background()

	plan := &ir.Plan{
		Changes: []*ir.ResourceChange{
			{
				Address: "boom_resource.first",
				Action:  "CREATE",
				Desired: &ir.Resource{
					Type: "boom_resource", Name: "first", Provider: "boom",
					Properties: map[string]any{},
				},
			},
			{
				Address: "null_resource.second",
				Action:  "CREATE",
				Desired: &ir.Resource{
					Type: "null_resource", Name: "second", Provider: "null",
					Properties: map[string]any{"triggers": map[string]any{"a": "b"}},
				},
			},
		},
		Summary: &ir.PlanSummary{Create: 2},
	}

	state := &ir.State{}

	var events []ApplyEvent
	_, err := eng.ApplyPlanWithCallback(ctx, plan, state, func(ev ApplyEvent) {
		events = append(events, ev)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom_resource.first")

	// The second change never ran
	assert.Empty(t, state.Resources)
	require.Len(t, events, 2)
	assert.Equal(t, "started", events[0].Status)
	assert.Equal(t, "failed", events[1].Status)
}

type failingProvider struct {
	pv.Unimplemented
}

func (f *failingProvider) Apply(ctx context.Context, req *pv.ApplyRequest) (*pv.ApplyResponse, error) {
	return nil, fmt.Errorf("simulated provider failure")
}
