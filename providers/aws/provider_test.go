package aws

import (
	"context"
	"testing"

	pv "github.com/stackplan-io/stackplan/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_RequiresRegion(t *testing.T) {
	p := New()

	resp, err := p.Configure(context.Background(), &pv.ConfigureRequest{
		Settings: map[string]string{},
	})
	require.NoError(t, err)
	require.Len(t, resp.Diagnostics, 1)
	assert.Equal(t, pv.SeverityError, resp.Diagnostics[0].Severity)
	assert.Contains(t, resp.Diagnostics[0].Summary, "region")
}

func TestPlan_RequiresConfigure(t *testing.T) {
	p := New()

	_, err := p.Plan(context.Background(), &pv.PlanRequest{
		Type: "aws:EC2.Instance",
		Name: "web",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestApply_RequiresConfigure(t *testing.T) {
	p := New()

	_, err := p.Apply(context.Background(), &pv.ApplyRequest{
		Type: "aws:EC2.Instance",
		Name: "web",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestIpPermissions(t *testing.T) {
	perms := ipPermissions([]SecurityGroupRule{
		{
			FromPort:   22,
			ToPort:     22,
			Protocol:   "tcp",
			CidrBlocks: []string{"0.0.0.0/0", "10.0.0.0/8"},
		},
	})

	require.Len(t, perms, 1)
	assert.Equal(t, int32(22), *perms[0].FromPort)
	assert.Equal(t, int32(22), *perms[0].ToPort)
	assert.Equal(t, "tcp", *perms[0].IpProtocol)
	require.Len(t, perms[0].IpRanges, 2)
	assert.Equal(t, "0.0.0.0/0", *perms[0].IpRanges[0].CidrIp)
}

func TestEc2Tags(t *testing.T) {
	tags := ec2Tags(map[string]string{"Name": "web-server"})
	require.Len(t, tags, 1)
	assert.Equal(t, "Name", *tags[0].Key)
	assert.Equal(t, "web-server", *tags[0].Value)
}

func TestTagsEqual(t *testing.T) {
	assert.True(t, tagsEqual(nil, nil))
	assert.True(t, tagsEqual(map[string]string{"a": "1"}, map[string]string{"a": "1"}))
	assert.False(t, tagsEqual(map[string]string{"a": "1"}, map[string]string{"a": "2"}))
	assert.False(t, tagsEqual(map[string]string{"a": "1"}, map[string]string{}))
}
