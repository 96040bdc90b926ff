package aws

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/pkg/errors"

	"github.com/zalando-incubator/e2s/pkg/cluster"
	netutil "github.com/zalando-incubator/e2s/pkg/util/net"
)

// Fleet enumerates every running instance tagged with me's cluster token,
// across every configured region. An instance outside me's home region is
// only included once it has a public IP, since cross-region peers must be
// reachable over the public internet. Instances whose cloud-reported
// private IP is not actually routable (e.g. still mid-boot, or a pathological
// 0.0.0.0 reported by a misbehaving API response) are skipped entirely:
// they would only ever show up as unmatchable zombies in the merge.
func (c *Client) Fleet(ctx context.Context, me *cluster.Member) ([]*cluster.Member, error) {
	regions := c.Regions
	if len(regions) == 0 {
		regions = []string{me.Region}
	}

	members := make([]*cluster.Member, 0)
	for _, region := range regions {
		found, err := c.instancesByTag(ctx, region, me.ClusterToken)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot enumerate instances in region %s", region)
		}
		for _, m := range found {
			if !netutil.IsRoutableIPv4(m.PrivateIP) {
				continue
			}
			if region != me.Region && m.PublicIP == "" {
				continue
			}
			members = append(members, m)
		}
	}
	return members, nil
}

func (c *Client) instancesByTag(ctx context.Context, region, clusterToken string) ([]*cluster.Member, error) {
	e := c.ec2For(region)
	input := &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{
				Name:   aws.String("tag:" + stackTag),
				Values: aws.StringSlice([]string{clusterToken}),
			},
			{
				Name:   aws.String("instance-state-name"),
				Values: aws.StringSlice([]string{ec2.InstanceStateNameRunning}),
			},
		},
	}

	members := make([]*cluster.Member, 0)
	err := e.DescribeInstancesPagesWithContext(ctx, input, func(page *ec2.DescribeInstancesOutput, lastPage bool) bool {
		for _, r := range page.Reservations {
			for _, i := range r.Instances {
				members = append(members, memberFromInstance(i, region))
			}
		}
		return !lastPage
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}
