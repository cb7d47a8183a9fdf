package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackplan-io/stackplan/internal/engine"
	"github.com/stackplan-io/stackplan/internal/eval"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate configuration files",
	Long: `Validates the syntax and types of the PKL configuration, resolves
declared parameters against their defaults, and checks that every resource
reference resolves with no dependency cycles.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Println("Validating configuration...")

	wd, entryPoint, err := resolveEntry(args)
	if err != nil {
		return err
	}

	evaluator := eval.NewEvaluator(wd)

	fmt.Printf("Checking %s... ", entryPoint)
	cfg, err := evaluator.LoadConfig(cmd.Context(), entryPoint, nil)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Println("OK")

	fmt.Print("Resolving parameters... ")
	if _, err := engine.ResolveParameters(cfg.Params, nil); err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Println("OK")

	fmt.Print("Checking references... ")
	if _, err := engine.BuildDAG(cfg.Resources); err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Println("OK")

	// Pipeline definition is optional, but when present it must evaluate.
	if _, err := os.Stat("pipeline.pkl"); err == nil {
		fmt.Print("Checking pipeline.pkl... ")
		if _, err := evaluator.LoadPipeline(cmd.Context(), "pipeline.pkl"); err != nil {
			fmt.Println("FAILED")
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Println("OK")
	}

	fmt.Println("\nConfiguration is valid!")
	return nil
}
