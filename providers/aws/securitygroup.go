package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	pv "github.com/stackplan-io/stackplan/pkg/provider"
)

type SecurityGroupConfig struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	VpcID       string              `json:"vpcId"`
	Ingress     []SecurityGroupRule `json:"ingress"`
	Egress      []SecurityGroupRule `json:"egress"`
	Tags        map[string]string   `json:"tags"`
}

type SecurityGroupRule struct {
	FromPort   int      `json:"fromPort"`
	ToPort     int      `json:"toPort"`
	Protocol   string   `json:"protocol"`
	CidrBlocks []string `json:"cidrBlocks"`
}

type SecurityGroupState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *Provider) planSecurityGroup(ctx context.Context, req *pv.PlanRequest) (*pv.PlanResponse, error) {
	if len(req.DesiredConfig) == 0 && len(req.PriorState) > 0 {
		return &pv.PlanResponse{Action: pv.ActionDelete}, nil
	}
	if len(req.PriorState) == 0 {
		return &pv.PlanResponse{Action: pv.ActionCreate}, nil
	}

	var prior SecurityGroupState
	if err := json.Unmarshal(req.PriorState, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	// Drift check: a group deleted out of band must be recreated.
	resp, err := p.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{prior.ID},
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "InvalidGroup.NotFound" {
			return &pv.PlanResponse{Action: pv.ActionCreate}, nil
		}
		return nil, fmt.Errorf("failed to describe security group: %w", err)
	}
	if len(resp.SecurityGroups) == 0 {
		return &pv.PlanResponse{Action: pv.ActionCreate}, nil
	}

	var desired SecurityGroupConfig
	if err := json.Unmarshal(req.DesiredConfig, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	// Group name is immutable; rules are replaced wholesale, so any config
	// difference forces replacement.
	if desired.Name != prior.Name {
		return &pv.PlanResponse{Action: pv.ActionReplace, ChangedAttributes: []string{"name"}}, nil
	}

	return &pv.PlanResponse{Action: pv.ActionNoop}, nil
}

func (p *Provider) applySecurityGroup(ctx context.Context, req *pv.ApplyRequest) (*pv.ApplyResponse, error) {
	if len(req.DesiredConfig) == 0 {
		var prior SecurityGroupState
		if err := json.Unmarshal(req.PriorState, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		if prior.ID != "" {
			_, err := p.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: &prior.ID})
			if err != nil {
				var ae smithy.APIError
				if !errors.As(err, &ae) || ae.ErrorCode() != "InvalidGroup.NotFound" {
					return nil, fmt.Errorf("failed to delete security group: %w", err)
				}
			}
		}
		return &pv.ApplyResponse{}, nil
	}

	var desired SecurityGroupConfig
	if err := json.Unmarshal(req.DesiredConfig, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	input := &ec2.CreateSecurityGroupInput{
		GroupName:   &desired.Name,
		Description: &desired.Description,
	}
	if desired.VpcID != "" {
		input.VpcId = &desired.VpcID
	}
	if len(desired.Tags) > 0 {
		input.TagSpecifications = []types.TagSpecification{
			{ResourceType: types.ResourceTypeSecurityGroup, Tags: ec2Tags(desired.Tags)},
		}
	}

	resp, err := p.ec2Client.CreateSecurityGroup(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create security group: %w", err)
	}
	groupID := *resp.GroupId

	if len(desired.Ingress) > 0 {
		_, err := p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       &groupID,
			IpPermissions: ipPermissions(desired.Ingress),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to authorize ingress rules: %w", err)
		}
	}

	if len(desired.Egress) > 0 {
		_, err := p.ec2Client.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       &groupID,
			IpPermissions: ipPermissions(desired.Egress),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to authorize egress rules: %w", err)
		}
	}

	newState := SecurityGroupState{
		ID:   groupID,
		Name: desired.Name,
	}
	stateJSON, err := json.Marshal(newState)
	if err != nil {
		return nil, err
	}
	return &pv.ApplyResponse{NewState: stateJSON}, nil
}

func ipPermissions(rules []SecurityGroupRule) []types.IpPermission {
	var perms []types.IpPermission
	for _, rule := range rules {
		var ipRanges []types.IpRange
		for _, cidr := range rule.CidrBlocks {
			ipRanges = append(ipRanges, types.IpRange{CidrIp: aws.String(cidr)})
		}
		perms = append(perms, types.IpPermission{
			IpProtocol: aws.String(rule.Protocol),
			FromPort:   aws.Int32(int32(rule.FromPort)),
			ToPort:     aws.Int32(int32(rule.ToPort)),
			IpRanges:   ipRanges,
		})
	}
	return perms
}

func ec2Tags(tags map[string]string) []types.Tag {
	var out []types.Tag
	for k, v := range tags {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out
}
