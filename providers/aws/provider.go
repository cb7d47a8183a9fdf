// Package aws implements the AWS provider. It provisions EC2 security
// groups and instances through the AWS SDK. The region always comes from
// Configure; resource operations fail if the provider has not been
// configured first.
package aws

import (
	"context"
	"fmt"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	pv "github.com/stackplan-io/stackplan/pkg/provider"
)

type Provider struct {
	pv.Unimplemented

	mu        sync.Mutex
	region    string
	ec2Client *ec2.Client
}

func New() *Provider {
	return &Provider{}
}

// Configure initializes AWS clients for the region passed in settings.
// Credentials come from the standard AWS credential chain.
func (p *Provider) Configure(ctx context.Context, req *pv.ConfigureRequest) (*pv.ConfigureResponse, error) {
	region := req.Settings["region"]
	if region == "" {
		return &pv.ConfigureResponse{
			Diagnostics: []*pv.Diagnostic{
				{
					Severity: pv.SeverityError,
					Summary:  "missing region",
					Detail:   "the aws provider requires a 'region' setting; declare a 'region' parameter or set STACKPLAN_REGION",
				},
			},
		}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ec2Client != nil && p.region == region {
		return &pv.ConfigureResponse{}, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	p.region = region
	p.ec2Client = ec2.NewFromConfig(cfg)
	return &pv.ConfigureResponse{}, nil
}

func (p *Provider) client() (*ec2.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ec2Client == nil {
		return nil, fmt.Errorf("aws provider is not configured")
	}
	return p.ec2Client, nil
}

func (p *Provider) Plan(ctx context.Context, req *pv.PlanRequest) (*pv.PlanResponse, error) {
	if _, err := p.client(); err != nil {
		return nil, err
	}

	switch req.Type {
	case "aws:EC2.Instance":
		return p.planInstance(ctx, req)
	case "aws:EC2.SecurityGroup":
		return p.planSecurityGroup(ctx, req)
	}
	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) Apply(ctx context.Context, req *pv.ApplyRequest) (*pv.ApplyResponse, error) {
	if _, err := p.client(); err != nil {
		return nil, err
	}

	switch req.Type {
	case "aws:EC2.Instance":
		return p.applyInstance(ctx, req)
	case "aws:EC2.SecurityGroup":
		return p.applySecurityGroup(ctx, req)
	}
	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}
