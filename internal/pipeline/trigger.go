package pipeline

import "github.com/stackplan-io/stackplan/internal/ir"

// PushEvent describes a push to a branch, the only event kind that can
// trigger a pipeline.
type PushEvent struct {
	Branch string
}

// ShouldRun reports whether a push event triggers the pipeline. The branch
// comparison is an exact string match, no glob or pattern support. A
// pipeline without a trigger never runs on push.
func ShouldRun(p *ir.Pipeline, event PushEvent) bool {
	if p == nil || p.Trigger == nil {
		return false
	}
	return p.Trigger.Branch == event.Branch
}
