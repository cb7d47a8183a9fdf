package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackplan-io/stackplan/internal/engine"
	"github.com/stackplan-io/stackplan/internal/eval"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show [plan-file]",
	Short: "Show the current state or a saved plan",
	Long: `Displays a human-readable view of the current state file, or of a
saved plan file when one is given as an argument.`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
}

func runShow(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return showPlanFile(args[0])
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	evaluator := eval.NewEvaluator(wd)
	stateMgr, err := openState(wd, evaluator)
	if err != nil {
		return err
	}

	s, err := stateMgr.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if showJSON {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal state: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("State: version=%d serial=%d lineage=%s\n", s.Version, s.Serial, s.Lineage)
	fmt.Printf("Resources: %d\n\n", len(s.Resources))

	for _, res := range s.Resources {
		fmt.Printf("# %s.%s\n", res.Type, res.Name)
		fmt.Printf("  provider = %s\n", res.Provider)
		for k, v := range res.Outputs {
			fmt.Printf("  %s = %v\n", k, v)
		}
		fmt.Println()
	}

	if len(s.Outputs) > 0 {
		fmt.Println("Outputs:")
		for k, v := range s.Outputs {
			fmt.Printf("  %s = %v\n", k, v)
		}
	}

	return nil
}

func showPlanFile(path string) error {
	plan, err := engine.ReadPlanFile(path)
	if err != nil {
		return err
	}

	if showJSON {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal plan: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Plan: created=%s\n", plan.Metadata.Timestamp)
	if len(plan.Changes) == 0 {
		fmt.Println("\nNo changes.")
		return nil
	}
	renderPlanChanges(plan)
	renderPlanSummary(plan)
	return nil
}
