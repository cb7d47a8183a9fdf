// Package null implements a no-op provider useful for testing and for
// modeling ordering-only resources. A null_resource holds a "triggers" map;
// any change to the triggers forces replacement.
package null

import (
	"context"
	"encoding/json"
	"fmt"

	pv "github.com/stackplan-io/stackplan/pkg/provider"
)

type Provider struct {
	pv.Unimplemented
}

func New() *Provider {
	return &Provider{}
}

type nullConfig struct {
	Triggers map[string]string `json:"triggers"`
}

type nullState struct {
	ID       string            `json:"id"`
	Triggers map[string]string `json:"triggers"`
}

func (p *Provider) Configure(ctx context.Context, req *pv.ConfigureRequest) (*pv.ConfigureResponse, error) {
	return &pv.ConfigureResponse{}, nil
}

func (p *Provider) Plan(ctx context.Context, req *pv.PlanRequest) (*pv.PlanResponse, error) {
	var desired nullConfig
	if len(req.DesiredConfig) > 0 {
		if err := json.Unmarshal(req.DesiredConfig, &desired); err != nil {
			return nil, fmt.Errorf("invalid config for %s: %w", req.Name, err)
		}
	}

	if len(req.PriorState) == 0 {
		return &pv.PlanResponse{Action: pv.ActionCreate}, nil
	}

	var prior nullState
	if err := json.Unmarshal(req.PriorState, &prior); err != nil {
		return nil, fmt.Errorf("invalid prior state for %s: %w", req.Name, err)
	}

	if !triggersEqual(prior.Triggers, desired.Triggers) {
		return &pv.PlanResponse{
			Action:            pv.ActionReplace,
			ChangedAttributes: []string{"triggers"},
		}, nil
	}

	return &pv.PlanResponse{Action: pv.ActionNoop}, nil
}

func (p *Provider) Apply(ctx context.Context, req *pv.ApplyRequest) (*pv.ApplyResponse, error) {
	// No desired config means delete; there is nothing to tear down.
	if len(req.DesiredConfig) == 0 {
		return &pv.ApplyResponse{}, nil
	}

	var desired nullConfig
	if err := json.Unmarshal(req.DesiredConfig, &desired); err != nil {
		return nil, fmt.Errorf("invalid config for %s: %w", req.Name, err)
	}

	state := nullState{
		ID:       "null-" + req.Name,
		Triggers: desired.Triggers,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &pv.ApplyResponse{NewState: data}, nil
}

func (p *Provider) Read(ctx context.Context, req *pv.ReadRequest) (*pv.ReadResponse, error) {
	// Null resources have no remote object; state is authoritative.
	return &pv.ReadResponse{Exists: true, NewState: req.CurrentState}, nil
}

func (p *Provider) Delete(ctx context.Context, req *pv.DeleteRequest) (*pv.DeleteResponse, error) {
	return &pv.DeleteResponse{}, nil
}

func triggersEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
