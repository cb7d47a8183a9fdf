package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stackplan-io/stackplan/internal/ir"
)

// WritePlanFile saves a plan as the run's artifact, consumable by a later
// apply step or a human reviewer.
func WritePlanFile(path string, plan *ir.Plan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create plan directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan file %s: %w", path, err)
	}
	return nil
}

// ReadPlanFile loads a previously written plan artifact.
func ReadPlanFile(path string) (*ir.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file %s: %w", path, err)
	}

	var plan ir.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}
	return &plan, nil
}
