package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stackplan-io/stackplan/internal/state"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new stackplan project",
	Long:  `Creates a new stackplan project with default configuration files.`,
	RunE:  runInit,
}

const mainPklTemplate = `// Stackplan configuration
// See: https://github.com/stackplan-io/stackplan

amends "schemas/Config.pkl"

params {
  new {
    name = "region"
    type = "string"
    default = "us-east-1"
  }
  new {
    name = "ami"
    type = "string"
    default = "ami-0c55b159cbfafe1f0"
  }
  new {
    name = "instanceType"
    type = "string"
    default = "t3.micro"
  }
  new {
    name = "instanceName"
    type = "string"
    default = "web-server"
  }
}

resources {
  new {
    type = "aws:EC2.SecurityGroup"
    name = "web"
    provider = "aws"
    properties {
      ["name"] = "web-sg"
      ["description"] = "Allow HTTP and SSH"
      ["ingress"] = new Listing {
        new {
          ["fromPort"] = 80
          ["toPort"] = 80
          ["protocol"] = "tcp"
          ["cidrBlocks"] = new Listing { "0.0.0.0/0" }
        }
        new {
          ["fromPort"] = 22
          ["toPort"] = 22
          ["protocol"] = "tcp"
          ["cidrBlocks"] = new Listing { "0.0.0.0/0" }
        }
      }
      ["egress"] = new Listing {
        new {
          ["fromPort"] = 0
          ["toPort"] = 0
          ["protocol"] = "-1"
          ["cidrBlocks"] = new Listing { "0.0.0.0/0" }
        }
      }
    }
  }
  new {
    type = "aws:EC2.Instance"
    name = "web"
    provider = "aws"
    properties {
      ["ami"] = "param://ami"
      ["instanceType"] = "param://instanceType"
      ["securityGroups"] = new Listing { "ptr://aws:EC2.SecurityGroup/web/id" }
      ["bootstrap"] = true
      ["tags"] = new {
        ["Name"] = "param://instanceName"
      }
    }
  }
}

outputs {
  ["instance_id"] = "ptr://aws:EC2.Instance/web/id"
  ["public_ip"] = "ptr://aws:EC2.Instance/web/public_ip"
}
`

const pipelinePklTemplate = `// Stackplan pipeline definition

amends "schemas/Pipeline.pkl"

name = "plan"

trigger {
  branch = "main"
}

stages {
  new {
    name = "plan"
    commands {
      "stackplan validate"
      "stackplan plan --out plan.out"
    }
    artifacts {
      paths { "plan.out" }
      when = "always"
    }
  }
}
`

const statePklTemplate = `// Stackplan state file. Do not edit by hand.
amends "State.pkl"

version = 1
serial = 0
lineage = ""
`

const configSchemaTemplate = `// Schema for stackplan configuration files.
module Config

params: Listing<Parameter> = new {}
resources: Listing<Resource> = new {}
outputs: Mapping<String, Any> = new {}

class Parameter {
  name: String
  type: String = "string"
  default: Any? = null
}

class Resource {
  type: String
  name: String
  provider: String = ""
  dependsOn: Listing<String> = new {}
  lifecycle: Lifecycle? = null
  properties: Mapping<String, Any> = new {}
}

class Lifecycle {
  createBeforeDestroy: Boolean = false
  preventDestroy: Boolean = false
  ignoreChanges: Listing<String> = new {}
}
`

const pipelineSchemaTemplate = `// Schema for stackplan pipeline definitions.
module Pipeline

name: String = ""
trigger: Trigger? = null
stages: Listing<Stage> = new {}

class Trigger {
  branch: String
}

class Stage {
  name: String
  commands: Listing<String> = new {}
  artifacts: ArtifactRule? = null
}

class ArtifactRule {
  paths: Listing<String> = new {}
  when: String = "always"
}
`

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", workspaceDir, err)
	}
	if err := os.MkdirAll("schemas", 0755); err != nil {
		return fmt.Errorf("failed to create schemas directory: %w", err)
	}
	if err := state.WriteSchema(workspaceDir); err != nil {
		return err
	}

	created := func(path, content string) error {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			return nil
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		fmt.Printf("Created %s\n", path)
		return nil
	}

	if err := created(filepath.Join("schemas", "Config.pkl"), configSchemaTemplate); err != nil {
		return err
	}
	if err := created(filepath.Join("schemas", "Pipeline.pkl"), pipelineSchemaTemplate); err != nil {
		return err
	}
	if err := created("main.pkl", mainPklTemplate); err != nil {
		return err
	}
	if err := created("pipeline.pkl", pipelinePklTemplate); err != nil {
		return err
	}
	if err := created(filepath.Join(workspaceDir, "state.pkl"), statePklTemplate); err != nil {
		return err
	}

	fmt.Println("\nStackplan initialized successfully!")
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit main.pkl to define your infrastructure")
	fmt.Println("  2. Run 'stackplan plan' to see what will be created")
	fmt.Println("  3. Run 'stackplan apply' to create your infrastructure")

	return nil
}
