package pipeline

import (
	"testing"

	"github.com/stackplan-io/stackplan/internal/ir"
	"github.com/stretchr/testify/assert"
)

func TestShouldRun(t *testing.T) {
	p := &ir.Pipeline{
		Name:    "ci",
		Trigger: &ir.Trigger{Branch: "main"},
	}

	assert.True(t, ShouldRun(p, PushEvent{Branch: "main"}))
	assert.False(t, ShouldRun(p, PushEvent{Branch: "develop"}))
	assert.False(t, ShouldRun(p, PushEvent{Branch: "main-hotfix"}))

	// Exact match only, no pattern semantics
	p.Trigger.Branch = "release/*"
	assert.False(t, ShouldRun(p, PushEvent{Branch: "release/1.0"}))
	assert.True(t, ShouldRun(p, PushEvent{Branch: "release/*"}))
}

func TestShouldRun_NoTrigger(t *testing.T) {
	assert.False(t, ShouldRun(nil, PushEvent{Branch: "main"}))
	assert.False(t, ShouldRun(&ir.Pipeline{Name: "ci"}, PushEvent{Branch: "main"}))
}
