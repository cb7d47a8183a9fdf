package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stackplan-io/stackplan/internal/ir"
	"github.com/stackplan-io/stackplan/internal/logging"
	"github.com/stackplan-io/stackplan/internal/provider"
	pv "github.com/stackplan-io/stackplan/pkg/provider"
)

// Engine orchestrates the lifecycle of resources.
type Engine struct {
	registry        *provider.Registry
	ContinueOnError bool // If true, apply continues past failures instead of stopping
}

func NewEngine(registry *provider.Registry) *Engine {
	return &Engine{
		registry: registry,
	}
}

// CreatePlan generates an execution plan by comparing desired config with
// current state, under the given run configuration.
func (e *Engine) CreatePlan(ctx context.Context, cfg *ir.Config, state *ir.State, runCfg *RunConfig) (*ir.Plan, error) {
	return e.CreatePlanWithTargets(ctx, cfg, state, runCfg, nil)
}

// CreatePlanWithTargets generates a plan filtered to specific resource
// addresses. If targets is nil or empty, all resources are planned.
func (e *Engine) CreatePlanWithTargets(ctx context.Context, cfg *ir.Config, state *ir.State, runCfg *RunConfig, targets []string) (*ir.Plan, error) {
	if runCfg == nil {
		params, err := ResolveParameters(cfg.Params, nil)
		if err != nil {
			return nil, err
		}
		runCfg = NewRunConfig(params)
	}

	logging.Debug("creating plan",
		"resources", len(cfg.Resources),
		"state_resources", len(state.Resources),
		"targets", len(targets))

	// Substitute parameters into resource properties up front, so both the
	// dependency graph and the providers see concrete values.
	resources, err := substituteResources(cfg.Resources, runCfg.Params)
	if err != nil {
		return nil, err
	}

	outputs, err := SubstituteParams(cfg.Outputs, runCfg.Params)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	outputMap, _ := outputs.(map[string]any)

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			ConfigHash: configHash(resources),
		},
		Changes: []*ir.ResourceChange{},
		Summary: &ir.PlanSummary{},
		Outputs: outputMap,
		Params:  runCfg.Params,
	}

	if err := e.configureProviders(ctx, resources, runCfg); err != nil {
		return nil, err
	}

	dag, err := BuildDAG(resources)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}

	stateMap := make(map[string]*ir.ResourceState)
	for _, res := range state.Resources {
		addr := fmt.Sprintf("%s.%s", res.Type, res.Name)
		stateMap[addr] = res
	}

	configByAddr := make(map[string]*ir.Resource)
	for _, res := range resources {
		configByAddr[resourceAddr(res)] = res
	}

	// Target set, including transitive dependencies of each target.
	var targetSet map[string]bool
	if len(targets) > 0 {
		targetSet = make(map[string]bool)
		for _, t := range targets {
			targetSet[t] = true
			for _, dep := range dag.TransitiveDeps(t) {
				targetSet[dep] = true
			}
		}
	}

	for _, addr := range dag.CreationOrder() {
		res, ok := configByAddr[addr]
		if !ok {
			continue
		}

		if targetSet != nil && !targetSet[addr] {
			plan.Summary.NoOp++
			continue
		}

		resourceType := res.Type
		if resourceType == "" {
			resourceType = "null_resource"
		}

		prov, err := e.registry.Get(res.Provider)
		if err != nil {
			return nil, err
		}

		desiredJSON, err := json.Marshal(normalizeValue(res.Properties))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal properties for %s: %w", res.Name, err)
		}

		var priorJSON []byte
		if prior, ok := stateMap[addr]; ok {
			priorJSON, _ = json.Marshal(prior.Outputs)
		}

		opCtx, cancel := WithTimeout(ctx, 0)
		resp, err := prov.Plan(opCtx, &pv.PlanRequest{
			Type:          resourceType,
			Name:          res.Name,
			DesiredConfig: desiredJSON,
			PriorState:    priorJSON,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("plan failed for %s: %w", addr, err)
		}

		if resp.Action == pv.ActionNoop {
			plan.Summary.NoOp++
			continue
		}

		if err := enforceLifecycle(res, resp.Action, addr); err != nil {
			return nil, err
		}

		action := resp.Action
		if res.Lifecycle != nil && len(res.Lifecycle.IgnoreChanges) > 0 && action == pv.ActionUpdate {
			action = filterIgnoredChanges(res, resp)
		}
		if action == pv.ActionNoop {
			plan.Summary.NoOp++
			continue
		}

		change := &ir.ResourceChange{
			Address: addr,
			Action:  string(action),
			Desired: res,
		}

		if prior, ok := stateMap[addr]; ok {
			change.Prior = &ir.Resource{
				Type:       prior.Type,
				Name:       prior.Name,
				Provider:   prior.Provider,
				Properties: prior.Inputs,
			}
			change.Diff = buildPropertyDiff(prior.Inputs, res.Properties)
		} else {
			change.Diff = buildCreateDiff(res.Properties)
		}

		plan.Changes = append(plan.Changes, change)

		switch action {
		case pv.ActionCreate:
			plan.Summary.Create++
		case pv.ActionUpdate:
			plan.Summary.Update++
		case pv.ActionReplace:
			plan.Summary.Replace++
		case pv.ActionDelete:
			plan.Summary.Delete++
		}
	}

	// Deletions: resources in state but no longer declared. Ordered by the
	// state's own dependency graph so dependents are destroyed before the
	// resources they depend on.
	orphans := make(map[string]*ir.ResourceState)
	for _, res := range state.Resources {
		addr := fmt.Sprintf("%s.%s", res.Type, res.Name)
		if _, declared := configByAddr[addr]; declared {
			continue
		}
		if targetSet != nil && !targetSet[addr] {
			continue
		}
		orphans[addr] = res
	}

	if len(orphans) > 0 {
		stateDag, err := BuildDAGFromState(state.Resources)
		if err != nil {
			return nil, fmt.Errorf("failed to build dependency graph from state: %w", err)
		}
		for _, addr := range stateDag.DestructionOrder() {
			res, ok := orphans[addr]
			if !ok {
				continue
			}
			plan.Changes = append(plan.Changes, &ir.ResourceChange{
				Address: addr,
				Action:  string(pv.ActionDelete),
				Prior: &ir.Resource{
					Type:       res.Type,
					Name:       res.Name,
					Provider:   res.Provider,
					Properties: res.Inputs,
				},
				Diff: buildDeleteDiff(res.Inputs),
			})
			plan.Summary.Delete++
		}
	}

	return plan, nil
}

// CreateDestroyPlan builds a plan that deletes every resource in state, in
// reverse dependency order.
func (e *Engine) CreateDestroyPlan(ctx context.Context, state *ir.State) (*ir.Plan, error) {
	dag, err := BuildDAGFromState(state.Resources)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph from state: %w", err)
	}

	stateMap := make(map[string]*ir.ResourceState)
	for _, res := range state.Resources {
		stateMap[fmt.Sprintf("%s.%s", res.Type, res.Name)] = res
	}

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Changes: []*ir.ResourceChange{},
		Summary: &ir.PlanSummary{},
	}

	for _, addr := range dag.DestructionOrder() {
		res, ok := stateMap[addr]
		if !ok {
			continue
		}
		if err := e.registry.LoadProvider(res.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
		plan.Changes = append(plan.Changes, &ir.ResourceChange{
			Address: addr,
			Action:  string(pv.ActionDelete),
			Prior: &ir.Resource{
				Type:       res.Type,
				Name:       res.Name,
				Provider:   res.Provider,
				Properties: res.Inputs,
			},
			Diff: buildDeleteDiff(res.Inputs),
		})
		plan.Summary.Delete++
	}

	return plan, nil
}

// configureProviders loads and configures every provider referenced by the
// resource set, passing the run configuration explicitly.
func (e *Engine) configureProviders(ctx context.Context, resources []*ir.Resource, runCfg *RunConfig) error {
	settings := map[string]string{}
	if runCfg.Region != "" {
		settings["region"] = runCfg.Region
	}

	seen := make(map[string]bool)
	for _, res := range resources {
		if res.Provider == "" || seen[res.Provider] {
			continue
		}
		seen[res.Provider] = true

		if err := e.registry.LoadProvider(res.Provider); err != nil {
			return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
		prov, err := e.registry.Get(res.Provider)
		if err != nil {
			return err
		}
		resp, err := prov.Configure(ctx, &pv.ConfigureRequest{Settings: settings})
		if err != nil {
			return fmt.Errorf("failed to configure provider %s: %w", res.Provider, err)
		}
		for _, diag := range resp.Diagnostics {
			if diag.Severity == pv.SeverityError {
				return fmt.Errorf("provider %s: %s: %s", res.Provider, diag.Summary, diag.Detail)
			}
			logging.Warn("provider diagnostic", "provider", res.Provider, "summary", diag.Summary)
		}
	}
	return nil
}

// substituteResources returns copies of the declared resources with all
// param:// references replaced by resolved values.
func substituteResources(resources []*ir.Resource, params map[string]any) ([]*ir.Resource, error) {
	out := make([]*ir.Resource, 0, len(resources))
	for _, res := range resources {
		props, err := SubstituteParams(normalizeValue(res.Properties), params)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", resourceAddr(res), err)
		}
		clone := *res
		clone.Properties, _ = props.(map[string]any)
		out = append(out, &clone)
	}
	return out, nil
}

// enforceLifecycle checks lifecycle rules and returns an error if violated.
func enforceLifecycle(res *ir.Resource, action pv.Action, addr string) error {
	if res.Lifecycle == nil {
		return nil
	}

	if res.Lifecycle.PreventDestroy && (action == pv.ActionDelete || action == pv.ActionReplace) {
		return fmt.Errorf("resource %s has prevent_destroy set but plan requires destruction", addr)
	}

	return nil
}

// filterIgnoredChanges downgrades an UPDATE to NOOP if every changed
// attribute is listed in IgnoreChanges.
func filterIgnoredChanges(res *ir.Resource, resp *pv.PlanResponse) pv.Action {
	if res.Lifecycle == nil || len(resp.ChangedAttributes) == 0 {
		return resp.Action
	}

	ignoreSet := make(map[string]bool)
	for _, attr := range res.Lifecycle.IgnoreChanges {
		ignoreSet[attr] = true
	}

	for _, attr := range resp.ChangedAttributes {
		if !ignoreSet[attr] {
			return resp.Action
		}
	}
	return pv.ActionNoop
}

// buildPropertyDiff compares prior and desired properties and returns a diff map.
func buildPropertyDiff(prior, desired map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)

	allKeys := make(map[string]bool)
	for k := range prior {
		allKeys[k] = true
	}
	for k := range desired {
		allKeys[k] = true
	}

	for k := range allKeys {
		priorVal, inPrior := prior[k]
		desiredVal, inDesired := desired[k]

		if !inPrior {
			diff[k] = &ir.PropertyDiff{
				After:  desiredVal,
				Action: "create",
			}
		} else if !inDesired {
			diff[k] = &ir.PropertyDiff{
				Before: priorVal,
				Action: "delete",
			}
		} else if fmt.Sprintf("%v", priorVal) != fmt.Sprintf("%v", desiredVal) {
			diff[k] = &ir.PropertyDiff{
				Before: priorVal,
				After:  desiredVal,
				Action: "update",
			}
		}
	}

	return diff
}

func buildCreateDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{
			After:  v,
			Action: "create",
		}
	}
	return diff
}

func buildDeleteDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{
			Before: v,
			Action: "delete",
		}
	}
	return diff
}

// configHash fingerprints the substituted resource set for plan metadata.
func configHash(resources []*ir.Resource) string {
	data, err := json.Marshal(resources)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// normalizeValue rewrites map[any]any trees (as produced by the PKL decoder)
// into JSON-marshalable map[string]any trees.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		newMap := make(map[string]any)
		for k, v := range val {
			newMap[fmt.Sprintf("%v", k)] = normalizeValue(v)
		}
		return newMap
	case map[string]any:
		newMap := make(map[string]any)
		for k, v := range val {
			newMap[k] = normalizeValue(v)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(val))
		for i, v := range val {
			newSlice[i] = normalizeValue(v)
		}
		return newSlice
	default:
		return val
	}
}
