package ir

// Parameter declares a typed run parameter with an optional default. A
// parameter with no default and no override resolves to null.
type Parameter struct {
	Name    string `pkl:"name"`
	Type    string `pkl:"type"` // "string", "number", "bool"
	Default any    `pkl:"default"`
}
