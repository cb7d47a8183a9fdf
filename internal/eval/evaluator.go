package eval

import (
	"context"
	"fmt"

	"github.com/apple/pkl-go/pkl"
	"github.com/stackplan-io/stackplan/internal/ir"
)

// Evaluator handles PKL evaluation into IR types.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// LoadConfig evaluates the main configuration file and returns the IR.
// Properties are exposed to PKL as external properties; the engine resolves
// declared parameters separately, so most callers pass nil here.
func (e *Evaluator) LoadConfig(ctx context.Context, entryPoint string, properties map[string]string) (*ir.Config, error) {
	evaluator, err := e.newProjectEvaluator(ctx, properties)
	if err != nil {
		return nil, err
	}
	defer evaluator.Close()

	var cfg ir.Config
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(entryPoint), &cfg); err != nil {
		return nil, fmt.Errorf("failed to evaluate config: %w", err)
	}

	return &cfg, nil
}

// LoadPipeline evaluates a pipeline definition file and returns the IR.
func (e *Evaluator) LoadPipeline(ctx context.Context, entryPoint string) (*ir.Pipeline, error) {
	evaluator, err := e.newProjectEvaluator(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer evaluator.Close()

	var p ir.Pipeline
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(entryPoint), &p); err != nil {
		return nil, fmt.Errorf("failed to evaluate pipeline: %w", err)
	}

	return &p, nil
}

// LoadState evaluates a state file and returns the IR.
func (e *Evaluator) LoadState(ctx context.Context, stateFile string) (*ir.State, error) {
	evaluator, err := pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var state ir.State
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(stateFile), &state); err != nil {
		return nil, fmt.Errorf("failed to evaluate state: %w", err)
	}

	return &state, nil
}

func (e *Evaluator) newProjectEvaluator(ctx context.Context, properties map[string]string) (pkl.Evaluator, error) {
	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	evaluator, err := pkl.NewProjectEvaluator(ctx, e.projectDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	return evaluator, nil
}
