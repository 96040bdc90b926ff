package aws

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zalando-incubator/e2s/pkg/cluster"
	"github.com/zalando-incubator/e2s/pkg/log"
)

// AuthorizeMember grants the given member TCP ingress on [client_port,
// peer_port] in every configured region's stack security group, skipping
// regions that match the member's own (ingress from a same-region peer is
// already covered by the security group's self-referencing rule). Failures
// are logged and swallowed: this is best-effort, not part of the
// reconciliation correctness argument.
func (c *Client) AuthorizeMember(ctx context.Context, clusterToken string, m *cluster.Member) {
	c.adjustMemberIngress(ctx, clusterToken, m, true)
}

// RevokeMember is the inverse of AuthorizeMember, called when a member is
// evicted from the cluster.
func (c *Client) RevokeMember(ctx context.Context, clusterToken string, m *cluster.Member) {
	c.adjustMemberIngress(ctx, clusterToken, m, false)
}

func (c *Client) adjustMemberIngress(ctx context.Context, clusterToken string, m *cluster.Member, authorize bool) {
	for _, region := range crossRegions(c.Regions, m.Region) {
		if err := c.adjustIngressInRegion(ctx, region, clusterToken, m, authorize); err != nil {
			log.Warn("cross-region security group update failed",
				zap.String("region", region),
				zap.String("instance_id", m.InstanceID),
				zap.Bool("authorize", authorize),
				zap.Error(err),
			)
		}
	}
}

// crossRegions returns the regions whose security group should be adjusted
// for a member in selfRegion: every configured region except selfRegion
// itself (ingress from a same-region peer is already covered by the
// security group's own rules). With no regions configured, there is nothing
// cross-region to do.
func crossRegions(regions []string, selfRegion string) []string {
	out := make([]string, 0, len(regions))
	for _, region := range regions {
		if region == selfRegion {
			continue
		}
		out = append(out, region)
	}
	return out
}

func (c *Client) adjustIngressInRegion(ctx context.Context, region, clusterToken string, m *cluster.Member, authorize bool) error {
	groupID, err := c.securityGroupID(ctx, region, clusterToken)
	if err != nil {
		return err
	}

	addr := m.RoutableAddr(true)
	if addr == "" {
		addr = m.PrivateIP
	}
	perm := &ec2.IpPermission{
		IpProtocol: aws.String("tcp"),
		FromPort:   aws.Int64(int64(m.ClientPort)),
		ToPort:     aws.Int64(int64(m.PeerPort)),
		IpRanges: []*ec2.IpRange{
			{CidrIp: aws.String(addr + "/32")},
		},
	}

	e := c.ec2For(region)
	if authorize {
		_, err = e.AuthorizeSecurityGroupIngressWithContext(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: []*ec2.IpPermission{perm},
		})
	} else {
		_, err = e.RevokeSecurityGroupIngressWithContext(ctx, &ec2.RevokeSecurityGroupIngressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: []*ec2.IpPermission{perm},
		})
	}
	return err
}

func (c *Client) securityGroupID(ctx context.Context, region, clusterToken string) (string, error) {
	resp, err := c.ec2For(region).DescribeSecurityGroupsWithContext(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []*ec2.Filter{
			{
				Name:   aws.String("tag:" + stackTag),
				Values: aws.StringSlice([]string{clusterToken}),
			},
		},
	})
	if err != nil {
		return "", err
	}
	for _, g := range resp.SecurityGroups {
		return aws.StringValue(g.GroupId), nil
	}
	return "", errors.Errorf("no security group tagged %s=%s in region %s", stackTag, clusterToken, region)
}
