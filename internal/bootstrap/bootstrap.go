// Package bootstrap holds the first-boot provisioning script embedded into
// the compute instance's user data.
//
// The script is intentionally not idempotent: it re-runs package
// installation on every invocation and starts a container under a fixed
// name, which the container runtime rejects if that name is already taken.
// Re-running it on an already provisioned host therefore fails at the
// container-creation step. This mirrors the behavior the script has always
// had; adding an "already running" guard would change what operators observe
// on a reboot.
package bootstrap

import "encoding/base64"

// ContainerName is the fixed name the bootstrap script assigns to the
// application container. The docker provider uses the same name when
// emulating the instance locally.
const ContainerName = "app"

// Script is the shell payload executed once at first boot by cloud-init.
const Script = `#!/bin/bash
set -e
yum update -y
amazon-linux-extras install docker -y
service docker start
usermod -a -G docker ec2-user
docker run -d --name ` + ContainerName + ` -p 80:80 nginx:latest
`

// UserData returns the script base64-encoded, as the EC2 API expects.
func UserData() string {
	return base64.StdEncoding.EncodeToString([]byte(Script))
}
