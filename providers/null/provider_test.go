package null

import (
	"context"
	"encoding/json"
	"testing"

	pv "github.com/stackplan-io/stackplan/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_CreateWhenNoPriorState(t *testing.T) {
	p := New()

	resp, err := p.Plan(context.Background(), &pv.PlanRequest{
		Type:          "null_resource",
		Name:          "a",
		DesiredConfig: json.RawMessage(`{"triggers":{"k":"v"}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, pv.ActionCreate, resp.Action)
}

func TestPlan_NoopWhenTriggersUnchanged(t *testing.T) {
	p := New()

	resp, err := p.Plan(context.Background(), &pv.PlanRequest{
		Type:          "null_resource",
		Name:          "a",
		DesiredConfig: json.RawMessage(`{"triggers":{"k":"v"}}`),
		PriorState:    json.RawMessage(`{"id":"null-a","triggers":{"k":"v"}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, pv.ActionNoop, resp.Action)
}

func TestPlan_ReplaceWhenTriggersChange(t *testing.T) {
	p := New()

	resp, err := p.Plan(context.Background(), &pv.PlanRequest{
		Type:          "null_resource",
		Name:          "a",
		DesiredConfig: json.RawMessage(`{"triggers":{"k":"new"}}`),
		PriorState:    json.RawMessage(`{"id":"null-a","triggers":{"k":"old"}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, pv.ActionReplace, resp.Action)
	assert.Contains(t, resp.ChangedAttributes, "triggers")
}

func TestApply_ProducesState(t *testing.T) {
	p := New()

	resp, err := p.Apply(context.Background(), &pv.ApplyRequest{
		Type:          "null_resource",
		Name:          "web",
		DesiredConfig: json.RawMessage(`{"triggers":{"k":"v"}}`),
	})
	require.NoError(t, err)

	var state nullState
	require.NoError(t, json.Unmarshal(resp.NewState, &state))
	assert.Equal(t, "null-web", state.ID)
	assert.Equal(t, map[string]string{"k": "v"}, state.Triggers)
}

func TestApply_DeleteIsNoop(t *testing.T) {
	p := New()

	resp, err := p.Apply(context.Background(), &pv.ApplyRequest{
		Type:       "null_resource",
		Name:       "web",
		PriorState: json.RawMessage(`{"id":"null-web"}`),
	})
	require.NoError(t, err)
	assert.Empty(t, resp.NewState)
}

func TestPlan_InvalidConfig(t *testing.T) {
	p := New()

	_, err := p.Plan(context.Background(), &pv.PlanRequest{
		Type:          "null_resource",
		Name:          "a",
		DesiredConfig: json.RawMessage(`{broken`),
	})
	assert.Error(t, err)
}
