package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stackplan-io/stackplan/internal/ir"
	"github.com/stackplan-io/stackplan/internal/logging"
	pv "github.com/stackplan-io/stackplan/pkg/provider"
)

// ApplyEvent represents a progress event during apply.
type ApplyEvent struct {
	Address  string
	Action   string
	Status   string // "started", "completed", "failed"
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// ApplyPlan executes a plan and updates the state. Changes run strictly
// sequentially in plan order; creates and updates first, then deletes.
func (e *Engine) ApplyPlan(ctx context.Context, plan *ir.Plan, state *ir.State) (*ir.State, error) {
	return e.ApplyPlanWithCallback(ctx, plan, state, nil)
}

// ApplyPlanWithCallback executes a plan with progress event callbacks. The
// first failure aborts the remaining changes unless e.ContinueOnError is set,
// in which case an aggregated error is returned at the end. State mutations
// made before a failure are kept, so a partial apply is still recorded.
func (e *Engine) ApplyPlanWithCallback(ctx context.Context, plan *ir.Plan, state *ir.State, callback ApplyCallback) (*ir.State, error) {
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	var createUpdates, deletes []*ir.ResourceChange
	for _, change := range plan.Changes {
		if change.Action == string(pv.ActionDelete) {
			deletes = append(deletes, change)
		} else {
			createUpdates = append(createUpdates, change)
		}
	}

	var errs []error
	run := func(changes []*ir.ResourceChange) error {
		for _, change := range changes {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("apply cancelled: %w", err)
			}
			start := time.Now()
			emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: "started"})
			if err := e.applyChange(ctx, change, state); err != nil {
				emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: "failed", Duration: time.Since(start), Error: err})
				if !e.ContinueOnError {
					return fmt.Errorf("apply failed for %s: %w", change.Address, err)
				}
				errs = append(errs, fmt.Errorf("%s: %w", change.Address, err))
				continue
			}
			emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: "completed", Duration: time.Since(start)})
		}
		return nil
	}

	if err := run(createUpdates); err != nil {
		return state, err
	}
	if err := run(deletes); err != nil {
		return state, err
	}

	state.Serial++

	if len(plan.Outputs) > 0 {
		outputs, err := ResolveOutputs(plan.Outputs, state)
		if err != nil {
			return state, err
		}
		state.Outputs = outputs
	}

	if len(errs) > 0 {
		return state, fmt.Errorf("%d resource(s) failed to apply: %v", len(errs), errs)
	}

	return state, nil
}

// applyChange executes a single resource change and updates state in place.
func (e *Engine) applyChange(ctx context.Context, change *ir.ResourceChange, state *ir.State) error {
	stateMap := make(map[string]*ir.ResourceState, len(state.Resources))
	for _, res := range state.Resources {
		stateMap[fmt.Sprintf("%s.%s", res.Type, res.Name)] = res
	}

	switch change.Action {
	case string(pv.ActionDelete):
		return e.deleteResource(ctx, change, state, stateMap)
	case string(pv.ActionReplace):
		if err := e.deleteResource(ctx, change, state, stateMap); err != nil {
			return err
		}
		// Rebuild the lookup after removal
		stateMap = make(map[string]*ir.ResourceState, len(state.Resources))
		for _, res := range state.Resources {
			stateMap[fmt.Sprintf("%s.%s", res.Type, res.Name)] = res
		}
		return e.createOrUpdateResource(ctx, change, state, stateMap)
	default:
		return e.createOrUpdateResource(ctx, change, state, stateMap)
	}
}

func (e *Engine) createOrUpdateResource(ctx context.Context, change *ir.ResourceChange, state *ir.State, stateMap map[string]*ir.ResourceState) error {
	res := change.Desired
	prov, err := e.registry.Get(res.Provider)
	if err != nil {
		return err
	}

	// Cross-resource references are resolvable now: dependencies were
	// applied earlier in plan order.
	props, err := resolvePtrRefs(normalizeValue(res.Properties), stateMap)
	if err != nil {
		return err
	}

	desiredJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	var priorJSON []byte
	if prior, ok := stateMap[change.Address]; ok {
		priorJSON, _ = json.Marshal(prior.Outputs)
	}

	opCtx, cancel := WithTimeout(ctx, 0)
	defer cancel()

	resp, err := prov.Apply(opCtx, &pv.ApplyRequest{
		Type:          res.Type,
		Name:          res.Name,
		DesiredConfig: desiredJSON,
		PriorState:    priorJSON,
	})
	if err != nil {
		return err
	}

	outputs := map[string]any{}
	if len(resp.NewState) > 0 {
		if err := json.Unmarshal(resp.NewState, &outputs); err != nil {
			return fmt.Errorf("provider returned unparseable state: %w", err)
		}
	}

	inputs, _ := props.(map[string]any)
	newState := &ir.ResourceState{
		Type:         res.Type,
		Name:         res.Name,
		Provider:     res.Provider,
		Inputs:       inputs,
		InputsHash:   fmt.Sprintf("%x", sha256.Sum256(desiredJSON)),
		Outputs:      outputs,
		Dependencies: resourceDependencies(res),
	}

	for i, existing := range state.Resources {
		if existing.Type == res.Type && existing.Name == res.Name {
			state.Resources[i] = newState
			return nil
		}
	}
	state.Resources = append(state.Resources, newState)
	return nil
}

func (e *Engine) deleteResource(ctx context.Context, change *ir.ResourceChange, state *ir.State, stateMap map[string]*ir.ResourceState) error {
	prior := change.Prior
	if prior == nil {
		return fmt.Errorf("delete change for %s has no prior resource", change.Address)
	}

	prov, err := e.registry.Get(prior.Provider)
	if err != nil {
		return err
	}

	var priorJSON []byte
	if st, ok := stateMap[change.Address]; ok {
		priorJSON, _ = json.Marshal(st.Outputs)
	}

	opCtx, cancel := WithTimeout(ctx, 0)
	defer cancel()

	if _, err := prov.Apply(opCtx, &pv.ApplyRequest{
		Type:       prior.Type,
		Name:       prior.Name,
		PriorState: priorJSON,
	}); err != nil {
		return err
	}

	kept := state.Resources[:0]
	for _, res := range state.Resources {
		if res.Type == prior.Type && res.Name == prior.Name {
			continue
		}
		kept = append(kept, res)
	}
	state.Resources = kept

	logging.Debug("resource deleted", "address", change.Address)
	return nil
}

// resourceDependencies records the addresses a resource depends on, for
// later destruction ordering.
func resourceDependencies(res *ir.Resource) []string {
	deps := append([]string(nil), res.DependsOn...)
	seen := make(map[string]bool, len(deps))
	for _, d := range deps {
		seen[d] = true
	}
	for _, ref := range extractPtrRefs(res.Properties) {
		if addr := ptrRefToAddr(ref); addr != "" && !seen[addr] {
			seen[addr] = true
			deps = append(deps, addr)
		}
	}
	return deps
}
