package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stackplan-io/stackplan/internal/engine"
	"github.com/stackplan-io/stackplan/internal/eval"
	"github.com/stackplan-io/stackplan/internal/ir"
	"github.com/stackplan-io/stackplan/internal/provider"
	"github.com/stackplan-io/stackplan/internal/state"
)

// RegionEnvVar supplies the provider region when no explicit "region"
// parameter override is given. It is read once here at the CLI boundary and
// folded into the run configuration; nothing deeper in the stack touches the
// environment.
const RegionEnvVar = "STACKPLAN_REGION"

// workspaceDir is where stackplan keeps state and run artifacts, relative to
// the project directory.
const workspaceDir = ".stackplan"

func statePath(wd string) string {
	return filepath.Join(wd, workspaceDir, "state.pkl")
}

func artifactsPath(wd string) string {
	return filepath.Join(wd, workspaceDir, "artifacts")
}

// openState returns the state backend for the workspace. A backend.json file
// in the workspace directory selects a remote backend; without one state
// lives in the local state.pkl.
func openState(wd string, evaluator *eval.Evaluator) (state.Backend, error) {
	data, err := os.ReadFile(filepath.Join(wd, workspaceDir, "backend.json"))
	if os.IsNotExist(err) {
		return state.NewManager(statePath(wd), evaluator), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backend config: %w", err)
	}

	var cfg state.BackendConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}
	if cfg.Type == "local" || cfg.Type == "" {
		if cfg.Config == nil {
			cfg.Config = map[string]string{}
		}
		if cfg.Config["path"] == "" {
			cfg.Config["path"] = statePath(wd)
		}
	}
	return state.NewBackend(&cfg, evaluator)
}

// resolveEntry turns an optional positional argument into a working
// directory and a PKL entry point file.
func resolveEntry(args []string) (wd, entryPoint string, err error) {
	wd, err = os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint = "main.pkl"

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}
		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}
	return wd, entryPoint, nil
}

// buildRunConfig resolves declared parameters against --param overrides and
// the region environment variable into the per-run configuration.
func buildRunConfig(cfg *ir.Config, overrides map[string]string) (*engine.RunConfig, error) {
	merged := make(map[string]string, len(overrides)+1)
	for k, v := range overrides {
		merged[k] = v
	}
	if _, explicit := merged["region"]; !explicit {
		if region := os.Getenv(RegionEnvVar); region != "" && hasParam(cfg, "region") {
			merged["region"] = region
		}
	}

	params, err := engine.ResolveParameters(cfg.Params, merged)
	if err != nil {
		return nil, err
	}
	return engine.NewRunConfig(params), nil
}

func hasParam(cfg *ir.Config, name string) bool {
	for _, p := range cfg.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// loadRequiredProviders auto-loads all providers referenced by config resources.
func loadRequiredProviders(registry *provider.Registry, cfg *ir.Config) error {
	seen := make(map[string]bool)
	for _, res := range cfg.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.LoadProvider(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

// loadStateProviders auto-loads all providers referenced by state resources (needed for DELETE).
func loadStateProviders(registry *provider.Registry, state *ir.State) error {
	seen := make(map[string]bool)
	for _, res := range state.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.LoadProvider(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(plan *ir.Plan) {
	for _, change := range plan.Changes {
		symbol := "~"
		switch change.Action {
		case "CREATE":
			symbol = "+"
		case "DELETE":
			symbol = "-"
		case "REPLACE":
			symbol = "-/+"
		case "NOOP":
			symbol = " "
		}

		color := "\033[0m"
		switch change.Action {
		case "CREATE":
			color = "\033[32m"
		case "DELETE":
			color = "\033[31m"
		case "UPDATE", "REPLACE":
			color = "\033[33m"
		}

		var resourceType, resourceName string
		if change.Desired != nil {
			resourceType = change.Desired.Type
			resourceName = change.Desired.Name
		} else if change.Prior != nil {
			resourceType = change.Prior.Type
			resourceName = change.Prior.Name
		}

		fmt.Printf("\n%s  # %s will be %s%s\n", color, change.Address, change.Action, "\033[0m")
		fmt.Printf("%s  %s resource \"%s\" \"%s\" {\n", color, symbol, resourceType, resourceName)

		if len(change.Diff) > 0 {
			renderPropertyDiff(change, color)
		} else {
			fmt.Printf("%s      ...\n", color)
		}
		fmt.Printf("%s    }%s\n", color, "\033[0m")
	}
}

// renderPropertyDiff prints structured property diffs.
func renderPropertyDiff(change *ir.ResourceChange, color string) {
	for key, diff := range change.Diff {
		switch diff.Action {
		case "create":
			fmt.Printf("\033[32m      + %s = %v\033[0m\n", key, formatValue(diff.After))
		case "delete":
			fmt.Printf("\033[31m      - %s = %v\033[0m\n", key, formatValue(diff.Before))
		case "update":
			fmt.Printf("\033[33m      ~ %s = %v -> %v\033[0m\n", key, formatValue(diff.Before), formatValue(diff.After))
		default:
			fmt.Printf("%s        %s = %v\n", color, key, formatValue(diff.After))
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", plan.Summary.Create)
	fmt.Printf("  Update:  %d\n", plan.Summary.Update)
	fmt.Printf("  Delete:  %d\n", plan.Summary.Delete)
	fmt.Printf("  Replace: %d\n", plan.Summary.Replace)
	fmt.Printf("  NoOp:    %d\n", plan.Summary.NoOp)
}
