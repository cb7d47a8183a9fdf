package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackplan-io/stackplan/internal/engine"
	"github.com/stackplan-io/stackplan/internal/eval"
	"github.com/stackplan-io/stackplan/internal/ir"
	"github.com/stackplan-io/stackplan/internal/provider"
)

var (
	applyAutoApprove bool
	applyParams      map[string]string
	applyPlanFile    string
)

var applyCmd = &cobra.Command{
	Use:   "apply [path]",
	Short: "Apply a configuration",
	Long: `Builds or changes infrastructure according to the stackplan
configuration. With --plan-file a previously saved plan is executed instead
of computing a fresh one.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
	applyCmd.Flags().StringToStringVarP(&applyParams, "param", "p", nil, "Override a declared parameter (format: name=value)")
	applyCmd.Flags().StringVar(&applyPlanFile, "plan-file", "", "Apply a previously saved plan file")
}

func runApply(cmd *cobra.Command, args []string) error {
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

	if err := stateMgr.Lock(); err != nil {
		return err
	}
	defer stateMgr.Unlock()

	fmt.Print("Loading configuration... ")
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, nil)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Println("OK")

	runCfg, err := buildRunConfig(cfg, applyParams)
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

	var plan *ir.Plan
	if applyPlanFile != "" {
		plan, err = engine.ReadPlanFile(applyPlanFile)
		if err != nil {
			return err
		}
		fmt.Printf("Using saved plan %s\n", applyPlanFile)
	} else {
		fmt.Print("Calculating plan... ")
		plan, err = eng.CreatePlan(ctx, cfg, currentState, runCfg)
		if err != nil {
			fmt.Println("FAILED")
			return fmt.Errorf("plan generation failed: %w", err)
		}
		fmt.Println("OK")
	}

	if len(plan.Changes) == 0 {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nStackplan will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !applyAutoApprove {
		fmt.Print("\nDo you want to perform these actions? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d changes...\n", len(plan.Changes))

	newState, err := eng.ApplyPlanWithCallback(ctx, plan, currentState, func(ev engine.ApplyEvent) {
		switch ev.Status {
		case "started":
			fmt.Printf("%s: %s...\n", ev.Address, ev.Action)
		case "completed":
			fmt.Printf("%s: done (%s)\n", ev.Address, ev.Duration.Round(10*time.Millisecond))
		case "failed":
			fmt.Printf("%s: FAILED: %v\n", ev.Address, ev.Error)
		}
	})
	if err != nil {
		// Keep the partial state so successful changes are not lost.
		_ = stateMgr.Write(ctx, currentState)
		return fmt.Errorf("apply failed: %w", err)
	}

	if err := stateMgr.Write(ctx, newState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("\nApply complete! Resources: %d added, %d changed, %d destroyed.\n",
		plan.Summary.Create, plan.Summary.Update+plan.Summary.Replace, plan.Summary.Delete)

	if len(newState.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for k, v := range newState.Outputs {
			fmt.Printf("  %s = %v\n", k, v)
		}
	}

	return nil
}
