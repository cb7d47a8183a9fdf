package ir

// Pipeline represents a CI-style pipeline definition: one or more stages
// gated by a push trigger.
type Pipeline struct {
	Name    string   `pkl:"name"`
	Trigger *Trigger `pkl:"trigger"`
	Stages  []*Stage `pkl:"stages"`
}

// Trigger is the predicate deciding whether a push event runs the pipeline.
// Branch is an exact name, not a pattern.
type Trigger struct {
	Branch string `pkl:"branch"`
}

// Stage is a named phase with an ordered command list and an artifact
// retention rule. Commands run sequentially and fail fast.
type Stage struct {
	Name      string        `pkl:"name"`
	Commands  []string      `pkl:"commands"`
	Artifacts *ArtifactRule `pkl:"artifacts"`
}

// ArtifactRule names the files a stage produces and when to keep them.
// When "always" (the default), artifacts are collected even if a command
// failed, so a partial plan stays inspectable.
type ArtifactRule struct {
	Paths []string `pkl:"paths"`
	When  string   `pkl:"when"` // "always" or "on_success"
}
