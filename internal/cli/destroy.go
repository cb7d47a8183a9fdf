package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackplan-io/stackplan/internal/engine"
	"github.com/stackplan-io/stackplan/internal/eval"
	"github.com/stackplan-io/stackplan/internal/provider"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy [path]",
	Short: "Destroy all managed infrastructure",
	Long: `Destroys all resources tracked in the state file, in reverse
dependency order. This command is the inverse of 'stackplan apply'.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveEntry(args)
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

	if err := stateMgr.Lock(); err != nil {
		return err
	}
	defer stateMgr.Unlock()

	currentState, err := stateMgr.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(currentState.Resources) == 0 {
		fmt.Println("Nothing to destroy. State is empty.")
		return nil
	}

	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	plan, err := eng.CreateDestroyPlan(ctx, currentState)
	if err != nil {
		return fmt.Errorf("destroy plan generation failed: %w", err)
	}

	fmt.Println("Stackplan will destroy the following resources:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove {
		fmt.Print("\nDo you really want to destroy all resources? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Printf("\nDestroying %d resources...\n", len(plan.Changes))

	newState, err := eng.ApplyPlan(ctx, plan, currentState)
	if err != nil {
		_ = stateMgr.Write(ctx, currentState)
		return fmt.Errorf("destroy failed: %w", err)
	}

	// Outputs reference resources that no longer exist.
	newState.Outputs = nil

	if err := stateMgr.Write(ctx, newState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("\nDestroy complete! %d resources deleted.\n", plan.Summary.Delete)
	return nil
}
