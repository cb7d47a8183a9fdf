package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackplan-io/stackplan/internal/ir"
)

func TestFormatPkl(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "trailing whitespace",
			input:    "name = \"test\"   \ntype = \"foo\"  \n",
			expected: "name = \"test\"\ntype = \"foo\"\n",
		},
		{
			name:     "ensure trailing newline",
			input:    "name = \"test\"",
			expected: "name = \"test\"\n",
		},
		{
			name:     "collapse blank lines",
			input:    "a = 1\n\n\n\nb = 2\n",
			expected: "a = 1\n\nb = 2\n",
		},
		{
			name:     "already formatted",
			input:    "a = 1\nb = 2\n",
			expected: "a = 1\nb = 2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatPkl(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestStatePaths(t *testing.T) {
	assert.Equal(t, "/proj/.stackplan/state.pkl", statePath("/proj"))
	assert.Equal(t, "/proj/.stackplan/artifacts", artifactsPath("/proj"))
}

func TestHasParam(t *testing.T) {
	cfg := &ir.Config{
		Params: []*ir.Parameter{
			{Name: "region", Type: "string"},
		},
	}

	assert.True(t, hasParam(cfg, "region"))
	assert.False(t, hasParam(cfg, "ami"))
	assert.False(t, hasParam(&ir.Config{}, "region"))
}

func TestBuildRunConfig(t *testing.T) {
	cfg := &ir.Config{
		Params: []*ir.Parameter{
			{Name: "region", Type: "string", Default: "us-east-1"},
		},
	}

	t.Run("default", func(t *testing.T) {
		runCfg, err := buildRunConfig(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", runCfg.Region)
	})

	t.Run("explicit override wins", func(t *testing.T) {
		t.Setenv(RegionEnvVar, "eu-west-1")
		runCfg, err := buildRunConfig(cfg, map[string]string{"region": "ap-south-1"})
		require.NoError(t, err)
		assert.Equal(t, "ap-south-1", runCfg.Region)
	})

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv(RegionEnvVar, "eu-west-1")
		runCfg, err := buildRunConfig(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, "eu-west-1", runCfg.Region)
	})

	t.Run("env ignored without declared region param", func(t *testing.T) {
		t.Setenv(RegionEnvVar, "eu-west-1")
		_, err := buildRunConfig(&ir.Config{}, nil)
		require.NoError(t, err)
	})

	t.Run("undeclared override rejected", func(t *testing.T) {
		_, err := buildRunConfig(cfg, map[string]string{"nope": "x"})
		assert.Error(t, err)
	})
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "null", formatValue(nil))
	assert.Equal(t, `"web"`, formatValue("web"))
	assert.Equal(t, "80", formatValue(80))
	assert.Equal(t, "true", formatValue(true))
}

func TestParseResourceAddress(t *testing.T) {
	tests := []struct {
		addr    string
		typ     string
		name    string
		wantErr bool
	}{
		{addr: "aws:EC2.Instance.web", typ: "aws:EC2.Instance", name: "web"},
		{addr: "aws:EC2.SecurityGroup.web", typ: "aws:EC2.SecurityGroup", name: "web"},
		{addr: "null_resource.test1", typ: "null_resource", name: "test1"},
		{addr: "noseparator", wantErr: true},
		{addr: "trailing.", wantErr: true},
		{addr: ".leading", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			typ, name, err := parseResourceAddress(tt.addr)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestOpenState(t *testing.T) {
	t.Run("defaults to local state", func(t *testing.T) {
		wd := t.TempDir()
		backend, err := openState(wd, nil)
		require.NoError(t, err)
		assert.NotNil(t, backend)
	})

	t.Run("rejects malformed backend config", func(t *testing.T) {
		wd := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(wd, workspaceDir), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(wd, workspaceDir, "backend.json"), []byte("{not json"), 0644))

		_, err := openState(wd, nil)
		assert.Error(t, err)
	})

	t.Run("rejects unknown backend type", func(t *testing.T) {
		wd := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(wd, workspaceDir), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(wd, workspaceDir, "backend.json"), []byte(`{"type":"redis"}`), 0644))

		_, err := openState(wd, nil)
		assert.Error(t, err)
	})
}

func TestCommandRegistration(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{
		"init", "validate", "plan", "apply", "destroy",
		"graph", "output", "show", "state", "fmt", "run", "version",
	} {
		assert.True(t, names[want], "command %s not registered", want)
	}
}
