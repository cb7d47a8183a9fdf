package ir

// State is the record of everything stackplan manages, persisted as a PKL
// file between runs. Serial increments on every successful write; Lineage
// identifies the state's origin so two unrelated states are never merged.
type State struct {
	Version   int              `pkl:"version"`
	Serial    int              `pkl:"serial"`
	Lineage   string           `pkl:"lineage"`
	Resources []*ResourceState `pkl:"resources"`
	Outputs   map[string]any   `pkl:"outputs"`
}

// ResourceState captures one managed resource: the inputs it was created
// with, the attributes its provider reported back, and the addresses it
// depended on at creation time. Dependencies are what let destroy walk
// resources in reverse order even after the configuration is gone.
type ResourceState struct {
	Type         string         `pkl:"type"`
	Name         string         `pkl:"name"`
	Provider     string         `pkl:"provider"`
	Inputs       map[string]any `pkl:"inputs"`
	InputsHash   string         `pkl:"inputsHash"`
	Outputs      map[string]any `pkl:"outputs"`
	Dependencies []string       `pkl:"dependencies"`
}
