package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"github.com/stackplan-io/stackplan/internal/bootstrap"
	pv "github.com/stackplan-io/stackplan/pkg/provider"
)

type InstanceConfig struct {
	AMI              string            `json:"ami"`
	InstanceType     string            `json:"instanceType"`
	SecurityGroupIDs []string          `json:"securityGroups"`
	SubnetID         string            `json:"subnetId"`
	KeyName          string            `json:"keyName"`
	UserData         string            `json:"userData"` // base64-encoded
	Bootstrap        bool              `json:"bootstrap"`
	Tags             map[string]string `json:"tags"`
}

type InstanceState struct {
	ID           string            `json:"id"`
	AMI          string            `json:"ami"`
	InstanceType string            `json:"instanceType"`
	PublicIP     string            `json:"public_ip"`
	PrivateIP    string            `json:"private_ip"`
	Tags         map[string]string `json:"tags"`
}

func (p *Provider) planInstance(ctx context.Context, req *pv.PlanRequest) (*pv.PlanResponse, error) {
	if len(req.DesiredConfig) == 0 && len(req.PriorState) > 0 {
		return &pv.PlanResponse{Action: pv.ActionDelete}, nil
	}
	if len(req.PriorState) == 0 {
		return &pv.PlanResponse{Action: pv.ActionCreate}, nil
	}

	var prior InstanceState
	if err := json.Unmarshal(req.PriorState, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	var desired InstanceConfig
	if err := json.Unmarshal(req.DesiredConfig, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	// Drift check against the real instance.
	resp, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{prior.ID},
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "InvalidInstanceID.NotFound" {
			return &pv.PlanResponse{Action: pv.ActionCreate}, nil
		}
		return nil, fmt.Errorf("failed to describe instance: %w", err)
	}

	if len(resp.Reservations) == 0 || len(resp.Reservations[0].Instances) == 0 {
		return &pv.PlanResponse{Action: pv.ActionCreate}, nil
	}

	instance := resp.Reservations[0].Instances[0]
	if instance.State.Name == types.InstanceStateNameTerminated {
		return &pv.PlanResponse{Action: pv.ActionCreate}, nil
	}

	// AMI is immutable.
	if aws.ToString(instance.ImageId) != desired.AMI {
		return &pv.PlanResponse{Action: pv.ActionReplace, ChangedAttributes: []string{"ami"}}, nil
	}

	// Instance type changes need a stop/start cycle; treated as replacement.
	if string(instance.InstanceType) != desired.InstanceType {
		return &pv.PlanResponse{Action: pv.ActionReplace, ChangedAttributes: []string{"instanceType"}}, nil
	}

	// Tags are mutable in place.
	if !tagsEqual(prior.Tags, desired.Tags) {
		return &pv.PlanResponse{Action: pv.ActionUpdate, ChangedAttributes: []string{"tags"}}, nil
	}

	return &pv.PlanResponse{Action: pv.ActionNoop}, nil
}

func (p *Provider) applyInstance(ctx context.Context, req *pv.ApplyRequest) (*pv.ApplyResponse, error) {
	// DELETE
	if len(req.DesiredConfig) == 0 {
		var prior InstanceState
		if err := json.Unmarshal(req.PriorState, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		if prior.ID != "" {
			_, err := p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
				InstanceIds: []string{prior.ID},
			})
			if err != nil {
				var ae smithy.APIError
				if !errors.As(err, &ae) || ae.ErrorCode() != "InvalidInstanceID.NotFound" {
					return nil, fmt.Errorf("failed to terminate instance: %w", err)
				}
			}
		}
		return &pv.ApplyResponse{}, nil
	}

	var desired InstanceConfig
	if err := json.Unmarshal(req.DesiredConfig, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	// UPDATE: only tags change in place.
	if len(req.PriorState) > 0 {
		var prior InstanceState
		if err := json.Unmarshal(req.PriorState, &prior); err == nil && prior.ID != "" {
			if len(desired.Tags) > 0 {
				_, err := p.ec2Client.CreateTags(ctx, &ec2.CreateTagsInput{
					Resources: []string{prior.ID},
					Tags:      ec2Tags(desired.Tags),
				})
				if err != nil {
					return nil, fmt.Errorf("failed to update tags: %w", err)
				}
			}
			prior.Tags = desired.Tags
			stateJSON, err := json.Marshal(prior)
			if err != nil {
				return nil, err
			}
			return &pv.ApplyResponse{NewState: stateJSON}, nil
		}
	}

	// CREATE
	runInput := &ec2.RunInstancesInput{
		ImageId:      &desired.AMI,
		InstanceType: types.InstanceType(desired.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
	}
	if len(desired.SecurityGroupIDs) > 0 {
		runInput.SecurityGroupIds = desired.SecurityGroupIDs
	}
	if desired.SubnetID != "" {
		runInput.SubnetId = &desired.SubnetID
	}
	if desired.KeyName != "" {
		runInput.KeyName = &desired.KeyName
	}
	// The bootstrap flag attaches the stock first-boot script; explicit
	// userData takes precedence.
	userData := desired.UserData
	if userData == "" && desired.Bootstrap {
		userData = bootstrap.UserData()
	}
	if userData != "" {
		runInput.UserData = &userData
	}
	if len(desired.Tags) > 0 {
		runInput.TagSpecifications = []types.TagSpecification{
			{ResourceType: types.ResourceTypeInstance, Tags: ec2Tags(desired.Tags)},
		}
	}

	resp, err := p.ec2Client.RunInstances(ctx, runInput)
	if err != nil {
		return nil, fmt.Errorf("failed to run instance: %w", err)
	}
	if len(resp.Instances) == 0 {
		return nil, fmt.Errorf("no instances created")
	}

	instanceID := aws.ToString(resp.Instances[0].InstanceId)

	waiter := ec2.NewInstanceRunningWaiter(p.ec2Client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}, 5*time.Minute); err != nil {
		return nil, fmt.Errorf("failed to wait for instance running: %w", err)
	}

	// Re-describe so the state captures the assigned IPs.
	desc, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance after launch: %w", err)
	}
	if len(desc.Reservations) == 0 || len(desc.Reservations[0].Instances) == 0 {
		return nil, fmt.Errorf("instance %s disappeared after launch", instanceID)
	}
	instance := desc.Reservations[0].Instances[0]

	newState := InstanceState{
		ID:           instanceID,
		AMI:          desired.AMI,
		InstanceType: desired.InstanceType,
		PublicIP:     aws.ToString(instance.PublicIpAddress),
		PrivateIP:    aws.ToString(instance.PrivateIpAddress),
		Tags:         desired.Tags,
	}
	stateJSON, err := json.Marshal(newState)
	if err != nil {
		return nil, err
	}
	return &pv.ApplyResponse{NewState: stateJSON}, nil
}

func tagsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
