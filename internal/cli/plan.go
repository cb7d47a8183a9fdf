package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackplan-io/stackplan/internal/engine"
	"github.com/stackplan-io/stackplan/internal/eval"
	"github.com/stackplan-io/stackplan/internal/provider"
)

var (
	planOutFile string
	planParams  map[string]string
	planTargets []string
)

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Generate an execution plan",
	Long: `Generates an execution plan showing what actions stackplan will take
to reach the desired state defined in your configuration.

The plan shows:
  • Resources to be created
  • Resources to be updated (with diff)
  • Resources to be deleted

With --out the plan is written to a file, consumable by 'stackplan apply'
or kept as a pipeline artifact.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write plan to file")
	planCmd.Flags().StringToStringVarP(&planParams, "param", "p", nil, "Override a declared parameter (format: name=value)")
	planCmd.Flags().StringSliceVar(&planTargets, "target", nil, "Limit the plan to specific resource addresses")
}

func runPlan(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntry(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	evaluator := eval.NewEvaluator(wd)
	stateMgr, err := openState(wd, evaluator)
	if err != nil {
		return err
	}
	registry := provider.NewRegistry()
	eng := engine.NewEngine(registry)

	fmt.Print("Loading configuration... ")
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, nil)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Println("OK")

	runCfg, err := buildRunConfig(cfg, planParams)
	if err != nil {
		return err
	}

	currentState, err := stateMgr.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if err := loadRequiredProviders(registry, cfg); err != nil {
		return err
	}
	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	fmt.Print("Calculating plan... ")
	plan, err := eng.CreatePlanWithTargets(ctx, cfg, currentState, runCfg, planTargets)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("plan generation failed: %w", err)
	}
	fmt.Println("OK")

	renderPlanSummary(plan)

	if len(plan.Changes) > 0 {
		fmt.Println("\nStackplan will perform the following actions:")
		renderPlanChanges(plan)
	} else {
		fmt.Println("\nNo changes. Infrastructure is up-to-date.")
	}

	if planOutFile != "" {
		if err := engine.WritePlanFile(planOutFile, plan); err != nil {
			return err
		}
		fmt.Printf("\nPlan written to %s\n", planOutFile)
	}

	return nil
}
