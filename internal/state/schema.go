package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// SchemaFileName is the PKL module that serialized state files amend. It is
// written alongside every state file so the amends target always resolves,
// wherever the state content is staged for evaluation.
const SchemaFileName = "State.pkl"

// Schema defines the shape of a state file.
const Schema = `// Schema for stackplan state files. Do not edit by hand.
module State

version: Int = 1
serial: Int = 0
lineage: String = ""

outputs: Mapping<String, Any> = new {}

resources: Listing<ResourceState> = new {}

class ResourceState {
  type: String
  name: String
  provider: String
  inputs: Mapping<String, Any> = new {}
  inputsHash: String = ""
  outputs: Mapping<String, Any> = new {}
  dependencies: Listing<String> = new {}
}
`

// WriteSchema ensures the state schema exists in dir. An existing schema is
// left untouched.
func WriteSchema(dir string) error {
	path := filepath.Join(dir, SchemaFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(Schema), 0644); err != nil {
		return fmt.Errorf("failed to write state schema: %w", err)
	}
	return nil
}
