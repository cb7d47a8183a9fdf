package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stackplan-io/stackplan/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T) (*Runner, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	r := NewRunner(t.TempDir(), t.TempDir())
	r.Output = buf
	return r, buf
}

func TestRunStage_CommandsInOrder(t *testing.T) {
	r, buf := newTestRunner(t)

	stage := &ir.Stage{
		Name: "build",
		Commands: []string{
			"echo first",
			"echo second",
			"echo third",
		},
	}

	result, err := r.RunStage(context.Background(), stage)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)

	out := buf.String()
	first := bytes.Index([]byte(out), []byte("first"))
	second := bytes.Index([]byte(out), []byte("second"))
	third := bytes.Index([]byte(out), []byte("third"))
	assert.True(t, first < second && second < third, "commands ran out of order:\n%s", out)
}

func TestRunStage_FailFast(t *testing.T) {
	r, _ := newTestRunner(t)

	marker := filepath.Join(r.WorkDir, "after-failure")
	stage := &ir.Stage{
		Name: "plan",
		Commands: []string{
			"true",
			"exit 3",
			"touch " + marker,
		},
	}

	result, err := r.RunStage(context.Background(), stage)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "exit 3", result.FailedCommand)
	assert.Equal(t, 3, result.ExitCode)

	// The command after the failure never ran
	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunStage_ArtifactsCollectedOnSuccess(t *testing.T) {
	r, _ := newTestRunner(t)

	stage := &ir.Stage{
		Name:     "plan",
		Commands: []string{"echo plan-content > plan.out"},
		Artifacts: &ir.ArtifactRule{
			Paths: []string{"plan.out"},
			When:  "always",
		},
	}

	result, err := r.RunStage(context.Background(), stage)
	require.NoError(t, err)
	require.Len(t, result.Artifacts, 1)

	content, err := os.ReadFile(result.Artifacts[0])
	require.NoError(t, err)
	assert.Equal(t, "plan-content\n", string(content))
}

func TestRunStage_ArtifactsRetainedOnFailure(t *testing.T) {
	r, _ := newTestRunner(t)

	// The artifact is written before the failing command, so the partial
	// output must survive the failure.
	stage := &ir.Stage{
		Name: "plan",
		Commands: []string{
			"echo partial > plan.out",
			"false",
		},
		Artifacts: &ir.ArtifactRule{
			Paths: []string{"plan.out"},
			When:  "always",
		},
	}

	result, err := r.RunStage(context.Background(), stage)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	require.Len(t, result.Artifacts, 1)

	content, readErr := os.ReadFile(result.Artifacts[0])
	require.NoError(t, readErr)
	assert.Equal(t, "partial\n", string(content))
}

func TestRunStage_MissingArtifactAfterFailureIsTolerated(t *testing.T) {
	r, _ := newTestRunner(t)

	stage := &ir.Stage{
		Name:     "plan",
		Commands: []string{"false"},
		Artifacts: &ir.ArtifactRule{
			Paths: []string{"never-written.out"},
			When:  "always",
		},
	}

	result, err := r.RunStage(context.Background(), stage)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Empty(t, result.Artifacts)
}

func TestRunStage_MissingArtifactAfterSuccessIsError(t *testing.T) {
	r, _ := newTestRunner(t)

	stage := &ir.Stage{
		Name:     "plan",
		Commands: []string{"true"},
		Artifacts: &ir.ArtifactRule{
			Paths: []string{"never-written.out"},
			When:  "always",
		},
	}

	_, err := r.RunStage(context.Background(), stage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not produced")
}

func TestRunStage_OnSuccessSkipsCollectionAfterFailure(t *testing.T) {
	r, _ := newTestRunner(t)

	stage := &ir.Stage{
		Name: "plan",
		Commands: []string{
			"echo partial > plan.out",
			"false",
		},
		Artifacts: &ir.ArtifactRule{
			Paths: []string{"plan.out"},
			When:  "on_success",
		},
	}

	result, err := r.RunStage(context.Background(), stage)
	require.Error(t, err)
	assert.Empty(t, result.Artifacts)
}

func TestRun_StopsAtFirstFailedStage(t *testing.T) {
	r, _ := newTestRunner(t)

	p := &ir.Pipeline{
		Name:    "ci",
		Trigger: &ir.Trigger{Branch: "main"},
		Stages: []*ir.Stage{
			{Name: "first", Commands: []string{"true"}},
			{Name: "second", Commands: []string{"false"}},
			{Name: "third", Commands: []string{"true"}},
		},
	}

	results, err := r.Run(context.Background(), p)
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusFailed, results[1].Status)
}

func TestRunner_Env(t *testing.T) {
	r, buf := newTestRunner(t)
	r.Env = []string{"STACKPLAN_TEST_VALUE=hello"}

	stage := &ir.Stage{
		Name:     "env",
		Commands: []string{"echo $STACKPLAN_TEST_VALUE"},
	}

	_, err := r.RunStage(context.Background(), stage)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "hello")
}
