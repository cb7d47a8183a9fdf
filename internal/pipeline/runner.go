// Package pipeline executes pipeline definitions: ordered shell commands
// grouped into stages, gated by a push trigger, with artifact retention.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/stackplan-io/stackplan/internal/ir"
	"github.com/stackplan-io/stackplan/internal/logging"
)

// Status of a finished stage.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StageResult records how a stage ended and which artifacts were kept. The
// artifact outcome is tracked separately from the command outcome: a failed
// stage can still retain a partial artifact for forensics.
type StageResult struct {
	Stage         string
	Status        Status
	FailedCommand string
	ExitCode      int
	Duration      time.Duration
	Artifacts     []string
}

// Runner executes pipeline stages in a working directory. Output from every
// command goes to Output combined (stdout and stderr interleaved), the way a
// CI job log reads.
type Runner struct {
	WorkDir      string
	ArtifactsDir string
	Output       io.Writer
	Env          []string
}

func NewRunner(workDir, artifactsDir string) *Runner {
	return &Runner{
		WorkDir:      workDir,
		ArtifactsDir: artifactsDir,
		Output:       os.Stdout,
	}
}

// Run executes every stage of the pipeline in order, stopping at the first
// failed stage. Results for executed stages are always returned, alongside
// the error that stopped the run.
func (r *Runner) Run(ctx context.Context, p *ir.Pipeline) ([]*StageResult, error) {
	var results []*StageResult
	for _, stage := range p.Stages {
		result, err := r.RunStage(ctx, stage)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// RunStage executes a single stage: commands strictly in order, fail-fast.
// Artifact collection happens after the commands regardless of outcome when
// the rule says "always"; with "on_success" only a clean stage collects.
func (r *Runner) RunStage(ctx context.Context, stage *ir.Stage) (*StageResult, error) {
	start := time.Now()
	result := &StageResult{
		Stage:  stage.Name,
		Status: StatusSuccess,
	}

	logging.Info("running stage", "stage", stage.Name, "commands", len(stage.Commands))

	var cmdErr error
	for _, command := range stage.Commands {
		fmt.Fprintf(r.Output, "$ %s\n", command)

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Dir = r.WorkDir
		cmd.Stdout = r.Output
		cmd.Stderr = r.Output
		if len(r.Env) > 0 {
			cmd.Env = append(os.Environ(), r.Env...)
		}

		if err := cmd.Run(); err != nil {
			result.Status = StatusFailed
			result.FailedCommand = command
			if exitErr, ok := err.(*exec.ExitError); ok {
				result.ExitCode = exitErr.ExitCode()
			} else {
				result.ExitCode = -1
			}
			cmdErr = fmt.Errorf("stage %q: command %q failed: %w", stage.Name, command, err)
			break
		}
	}

	result.Duration = time.Since(start)

	if stage.Artifacts != nil && shouldCollect(stage.Artifacts, result.Status) {
		artifacts, err := r.collectArtifacts(stage.Artifacts.Paths, result.Status)
		if err != nil && cmdErr == nil {
			return result, err
		}
		result.Artifacts = artifacts
	}

	return result, cmdErr
}

func shouldCollect(rule *ir.ArtifactRule, status Status) bool {
	switch rule.When {
	case "on_success":
		return status == StatusSuccess
	default: // "always" and unset
		return true
	}
}

// collectArtifacts copies declared artifact paths into the artifacts
// directory. On a successful stage a missing declared artifact is an error;
// after a failure missing files are expected and skipped.
func (r *Runner) collectArtifacts(paths []string, status Status) ([]string, error) {
	if err := os.MkdirAll(r.ArtifactsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	var collected []string
	for _, rel := range paths {
		src := filepath.Join(r.WorkDir, rel)
		if _, err := os.Stat(src); err != nil {
			if status == StatusSuccess {
				return collected, fmt.Errorf("declared artifact %q was not produced", rel)
			}
			logging.Warn("artifact missing after failed stage", "path", rel)
			continue
		}

		dst := filepath.Join(r.ArtifactsDir, filepath.Base(rel))
		if err := copyFile(src, dst); err != nil {
			return collected, fmt.Errorf("failed to collect artifact %q: %w", rel, err)
		}
		collected = append(collected, dst)
		logging.Debug("artifact collected", "path", dst)
	}
	return collected, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
