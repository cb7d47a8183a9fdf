package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackplan-io/stackplan/internal/eval"
	"github.com/stackplan-io/stackplan/internal/pipeline"
)

var runBranch string

var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Run the pipeline definition",
	Long: `Evaluates pipeline.pkl and executes its stages for a push event.

The pipeline only runs when the event branch matches the trigger branch.
Stage commands run strictly in order through the shell; the first failing
command stops the stage and the run. Declared artifacts are copied into
the workspace artifacts directory according to each stage's retention
rule.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runBranch, "branch", "main", "Branch of the simulated push event")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveEntry(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	evaluator := eval.NewEvaluator(wd)

	fmt.Print("Loading pipeline.pkl... ")
	p, err := evaluator.LoadPipeline(ctx, "pipeline.pkl")
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load pipeline: %w", err)
	}
	fmt.Println("OK")

	event := pipeline.PushEvent{Branch: runBranch}
	if !pipeline.ShouldRun(p, event) {
		if p.Trigger == nil {
			fmt.Printf("Pipeline %q has no trigger; nothing to run.\n", p.Name)
		} else {
			fmt.Printf("Pipeline %q not triggered: branch %q does not match trigger branch %q.\n",
				p.Name, event.Branch, p.Trigger.Branch)
		}
		return nil
	}

	fmt.Printf("Running pipeline %q (%d stages)\n\n", p.Name, len(p.Stages))

	runner := pipeline.NewRunner(wd, artifactsPath(wd))
	results, runErr := runner.Run(ctx, p)

	fmt.Println()
	for _, result := range results {
		switch result.Status {
		case pipeline.StatusSuccess:
			fmt.Printf("Stage %s: success (%s)\n", result.Stage, result.Duration.Round(10*time.Millisecond))
		case pipeline.StatusFailed:
			fmt.Printf("Stage %s: FAILED on %q (exit %d)\n", result.Stage, result.FailedCommand, result.ExitCode)
		}
		for _, artifact := range result.Artifacts {
			fmt.Printf("  artifact: %s\n", artifact)
		}
	}

	if runErr != nil {
		return fmt.Errorf("pipeline failed: %w", runErr)
	}

	fmt.Println("\nPipeline complete.")
	return nil
}
