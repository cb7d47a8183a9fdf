// Package docker implements the docker provider, used to run workloads
// locally in containers, mirroring what the bootstrap script sets up on a
// real instance. Container names are fixed: creating a container whose name
// already exists fails rather than reconciling, exactly like the bootstrap
// script does on a host that was already provisioned.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	pv "github.com/stackplan-io/stackplan/pkg/provider"
)

type Provider struct {
	pv.Unimplemented
	client *client.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) ensureClient() error {
	if p.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	p.client = cli
	return nil
}

func (p *Provider) Configure(ctx context.Context, req *pv.ConfigureRequest) (*pv.ConfigureResponse, error) {
	if err := p.ensureClient(); err != nil {
		return &pv.ConfigureResponse{
			Diagnostics: []*pv.Diagnostic{
				{
					Severity: pv.SeverityError,
					Summary:  "failed to create Docker client",
					Detail:   err.Error(),
				},
			},
		}, nil
	}
	return &pv.ConfigureResponse{}, nil
}

func (p *Provider) Plan(ctx context.Context, req *pv.PlanRequest) (*pv.PlanResponse, error) {
	if len(req.DesiredConfig) == 0 && len(req.PriorState) > 0 {
		return &pv.PlanResponse{Action: pv.ActionDelete}, nil
	}
	if len(req.PriorState) == 0 {
		return &pv.PlanResponse{Action: pv.ActionCreate}, nil
	}

	switch req.Type {
	case "docker_container":
		var desired ContainerConfig
		if err := json.Unmarshal(req.DesiredConfig, &desired); err != nil {
			return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
		}
		var prior ContainerState
		if err := json.Unmarshal(req.PriorState, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}

		if desired.Image != prior.ImageName {
			return &pv.PlanResponse{
				Action:            pv.ActionReplace,
				ChangedAttributes: []string{"image"},
			}, nil
		}
		return &pv.PlanResponse{Action: pv.ActionNoop}, nil

	case "docker_image":
		return &pv.PlanResponse{Action: pv.ActionNoop}, nil
	}

	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) Apply(ctx context.Context, req *pv.ApplyRequest) (*pv.ApplyResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	switch req.Type {
	case "docker_container":
		return p.applyContainer(ctx, req)
	case "docker_image":
		return p.applyImage(ctx, req)
	}

	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) applyImage(ctx context.Context, req *pv.ApplyRequest) (*pv.ApplyResponse, error) {
	if len(req.DesiredConfig) == 0 {
		var prior ImageState
		if err := json.Unmarshal(req.PriorState, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		if prior.ID != "" {
			_, err := p.client.ImageRemove(ctx, prior.ID, image.RemoveOptions{Force: true})
			if err != nil && !client.IsErrNotFound(err) {
				return nil, fmt.Errorf("failed to remove image: %w", err)
			}
		}
		return &pv.ApplyResponse{}, nil
	}

	var desired ImageConfig
	if err := json.Unmarshal(req.DesiredConfig, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	reader, err := p.client.ImagePull(ctx, desired.Name, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", desired.Name, err)
	}
	io.Copy(os.Stdout, reader)
	reader.Close()

	inspect, _, err := p.client.ImageInspectWithRaw(ctx, desired.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect pulled image: %w", err)
	}

	newState := ImageState{
		ID:   inspect.ID,
		Name: desired.Name,
	}
	stateJSON, err := json.Marshal(newState)
	if err != nil {
		return nil, err
	}
	return &pv.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) applyContainer(ctx context.Context, req *pv.ApplyRequest) (*pv.ApplyResponse, error) {
	if len(req.DesiredConfig) == 0 {
		var prior ContainerState
		if err := json.Unmarshal(req.PriorState, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		if prior.ID != "" {
			timeout := 10 // seconds
			_ = p.client.ContainerStop(ctx, prior.ID, container.StopOptions{Timeout: &timeout})
			if err := p.client.ContainerRemove(ctx, prior.ID, container.RemoveOptions{Force: true}); err != nil {
				if !client.IsErrNotFound(err) {
					return nil, fmt.Errorf("failed to remove container: %w", err)
				}
			}
		}
		return &pv.ApplyResponse{}, nil
	}

	var desired ContainerConfig
	if err := json.Unmarshal(req.DesiredConfig, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	reader, err := p.client.ImagePull(ctx, desired.Image, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", desired.Image, err)
	}
	io.Copy(os.Stdout, reader)
	reader.Close()

	portBindings := nat.PortMap{}
	for hostPort, containerPort := range desired.Ports {
		cp := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		portBindings[cp] = []nat.PortBinding{
			{
				HostIP:   "0.0.0.0",
				HostPort: hostPort,
			},
		}
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
	}
	if desired.Restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(desired.Restart),
		}
	}

	config := &container.Config{
		Image:  desired.Image,
		Cmd:    desired.Command,
		Env:    mapToEnvList(desired.Env),
		Labels: desired.Labels,
	}

	// The container name is fixed. If a container with this name already
	// exists the daemon rejects the create call, and that error propagates.
	resp, err := p.client.ContainerCreate(ctx,
		config,
		hostConfig,
		&network.NetworkingConfig{},
		&v1.Platform{},
		desired.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container %q: %w", desired.Name, err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	newState := ContainerState{
		ID:        resp.ID,
		Name:      desired.Name,
		ImageName: desired.Image,
	}
	stateJSON, err := json.Marshal(newState)
	if err != nil {
		return nil, err
	}
	return &pv.ApplyResponse{NewState: stateJSON}, nil
}

func mapToEnvList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

type ContainerConfig struct {
	Image   string            `json:"image"`
	Name    string            `json:"name"`
	Command []string          `json:"command"`
	Ports   map[string]int    `json:"ports"`
	Env     map[string]string `json:"env"`
	Labels  map[string]string `json:"labels"`
	Restart string            `json:"restart"`
}

type ContainerState struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImageName string `json:"image"`
}

type ImageConfig struct {
	Name string `json:"name"`
}

type ImageState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
