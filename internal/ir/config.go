package ir

// Config represents the top-level resource declaration set.
type Config struct {
	Params    []*Parameter   `pkl:"params"`
	Resources []*Resource    `pkl:"resources"`
	Outputs   map[string]any `pkl:"outputs"`
}
