// Package aws adapts the AWS APIs this supervisor depends on (EC2 instance
// metadata and tags, autoscaling group membership, Route53 DNS, and
// security-group ingress) behind the discovery.CloudProvider and
// housekeeper-facing interfaces. It generalizes the teacher's
// internal/provider/aws/client.go (which returned bare peer addresses for a
// single-region gossip bootstrap) into a provider returning fully enriched
// cluster.Member values across one or more regions.
package aws

import (
	"context"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/arn"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zalando-incubator/e2s/pkg/cluster"
	"github.com/zalando-incubator/e2s/pkg/log"
)

const (
	stackTag = "aws:cloudformation:stack-name"
	asgTag   = "aws:autoscaling:groupName"
)

// Client is an AWS-backed discovery.CloudProvider. It holds one shared
// session and builds region-scoped service clients on demand, since a
// multi-region fleet must be enumerated one region at a time.
type Client struct {
	sess *session.Session
	meta *ec2metadata.EC2Metadata

	// Regions is the immutable, process-wide list of regions to search for
	// fleet members, captured once at startup per DESIGN NOTES
	// ("global-region-list state"). Populated from ACTIVE_REGIONS; when it
	// is empty, Fleet searches only the given member's home region.
	Regions []string
}

// NewClient returns a Client using the default AWS credential chain, or, if
// E2S_ASSUME_ROLE_ARN is set, credentials obtained by assuming that role.
// Cross-account fleets run the daemon under an instance role that can only
// assume a shared management role in another account; everything else
// (DNS, cross-region security groups) then runs under that assumed
// identity instead of the instance's own.
func NewClient() (*Client, error) {
	roleARN := os.Getenv(assumeRoleEnv)
	if roleARN == "" {
		sess, err := session.NewSession()
		if err != nil {
			return nil, errors.Wrap(err, "cannot create aws session")
		}
		return &Client{
			sess: sess,
			meta: ec2metadata.New(sess),
		}, nil
	}

	bootstrap, err := session.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create aws session")
	}
	sessionName, err := roleSessionName(bootstrap, roleARN)
	if err != nil {
		return nil, errors.Wrap(err, "cannot derive assume-role session name")
	}
	cfg, err := NewConfigWithRoleSession(roleARN, sessionName)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot assume role %s", roleARN)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create aws session with assumed role")
	}
	return &Client{
		sess: sess,
		meta: ec2metadata.New(sess),
	}, nil
}

// roleSessionName derives an STS RoleSessionName from this instance's own
// IAM role, falling back to the last path segment of the target role ARN
// when the instance has no attached profile to name the session after.
func roleSessionName(sess *session.Session, targetRoleARN string) (string, error) {
	self, err := getRoleNameFromInstanceMetadata(sess)
	if err == nil {
		a, err := arn.Parse(self)
		if err == nil {
			parts := strings.Split(a.Resource, "/")
			return "e2s-" + parts[len(parts)-1], nil
		}
	}
	log.Debugf("no instance role to name assume-role session after: %v", err)
	parts := strings.Split(targetRoleARN, "/")
	return "e2s-" + parts[len(parts)-1], nil
}

// MultiRegion reports whether more than one region is active.
func (c *Client) MultiRegion() bool {
	return len(c.Regions) > 1
}

func (c *Client) ec2For(region string) *ec2.EC2 {
	return ec2.New(c.sess, aws.NewConfig().WithRegion(region))
}

func (c *Client) asgFor(region string) *autoscaling.AutoScaling {
	return autoscaling.New(c.sess, aws.NewConfig().WithRegion(region))
}

func (c *Client) route53() *route53.Route53 {
	return route53.New(c.sess)
}

func tagsToMap(tags []*ec2.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[aws.StringValue(t.Key)] = aws.StringValue(t.Value)
	}
	return m
}

func memberFromInstance(i *ec2.Instance, region string) *cluster.Member {
	tags := tagsToMap(i.Tags)
	m := cluster.NewMember()
	m.InstanceID = aws.StringValue(i.InstanceId)
	m.PrivateIP = aws.StringValue(i.PrivateIpAddress)
	m.PublicIP = aws.StringValue(i.PublicIpAddress)
	m.PrivateDNS = aws.StringValue(i.PrivateDnsName)
	m.PublicDNS = aws.StringValue(i.PublicDnsName)
	m.Region = region
	m.ClusterToken = tags[stackTag]
	m.AutoScalingGroup = tags[asgTag]
	return m
}

// Identity resolves "me" from the instance identity document plus this
// instance's own EC2 tags.
func (c *Client) Identity(ctx context.Context) (*cluster.Member, error) {
	doc, err := c.meta.GetInstanceIdentityDocumentWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read instance identity document")
	}
	e := c.ec2For(doc.Region)
	resp, err := e.DescribeInstancesWithContext(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: aws.StringSlice([]string{doc.InstanceID}),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot describe own instance %s", doc.InstanceID)
	}
	for _, r := range resp.Reservations {
		for _, i := range r.Instances {
			m := memberFromInstance(i, doc.Region)
			if m.ClusterToken == "" {
				return nil, errors.Errorf("instance %s is missing the %s tag", doc.InstanceID, stackTag)
			}
			if asg, err := c.autoScalingGroupName(ctx, doc.Region, doc.InstanceID); err != nil {
				log.Debugf("cannot corroborate autoscaling group membership for %s: %v", doc.InstanceID, err)
			} else if m.AutoScalingGroup != "" && asg != m.AutoScalingGroup {
				log.Warn("instance tag and autoscaling API disagree on group membership",
					zap.String("instance_id", doc.InstanceID),
					zap.String("tag", m.AutoScalingGroup),
					zap.String("api", asg),
				)
			}
			return m, nil
		}
	}
	return nil, errors.Errorf("own instance not found: %s", doc.InstanceID)
}

// autoScalingGroupName cross-checks that the instance is still a member of
// an autoscaling group, the way the teacher's getGroupName does; used only
// to corroborate identity resolution, since fleet enumeration itself goes
// by EC2 tag rather than ASG membership (a node may briefly show up in one
// and not the other during a scaling event).
func (c *Client) autoScalingGroupName(ctx context.Context, region, instanceID string) (string, error) {
	resp, err := c.asgFor(region).DescribeAutoScalingInstancesWithContext(ctx, &autoscaling.DescribeAutoScalingInstancesInput{
		InstanceIds: aws.StringSlice([]string{instanceID}),
	})
	if err != nil {
		return "", err
	}
	for _, i := range resp.AutoScalingInstances {
		return aws.StringValue(i.AutoScalingGroupName), nil
	}
	return "", errors.Errorf("cannot find autoscaling group for instance: %s", instanceID)
}
