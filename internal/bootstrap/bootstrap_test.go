package bootstrap

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserData_RoundTrip(t *testing.T) {
	decoded, err := base64.StdEncoding.DecodeString(UserData())
	require.NoError(t, err)
	assert.Equal(t, Script, string(decoded))
}

func TestScript_FixedContainerName(t *testing.T) {
	// The container name is hard-coded; a second run of the script on the
	// same host fails at "docker run" because the name is taken.
	assert.Contains(t, Script, "--name "+ContainerName)
	assert.NotContains(t, Script, "docker rm")
	assert.NotContains(t, Script, "if ")
}

func TestScript_FailFast(t *testing.T) {
	lines := strings.Split(Script, "\n")
	require.Greater(t, len(lines), 2)
	assert.Equal(t, "#!/bin/bash", lines[0])
	assert.Equal(t, "set -e", lines[1])
}
