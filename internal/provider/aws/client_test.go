package aws

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/google/go-cmp/cmp"

	"github.com/zalando-incubator/e2s/pkg/cluster"
)

func TestTagsToMap(t *testing.T) {
	tags := []*ec2.Tag{
		{Key: aws.String(stackTag), Value: aws.String("my-stack-v3")},
		{Key: aws.String(asgTag), Value: aws.String("my-asg")},
	}
	got := tagsToMap(tags)
	want := map[string]string{stackTag: "my-stack-v3", asgTag: "my-asg"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tagsToMap mismatch (-want +got):\n%s", diff)
	}
}

func TestMemberFromInstance(t *testing.T) {
	instance := &ec2.Instance{
		InstanceId:       aws.String("i-0123456789"),
		PrivateIpAddress: aws.String("10.0.0.5"),
		PublicIpAddress:  aws.String("52.1.1.1"),
		PrivateDnsName:   aws.String("ip-10-0-0-5.ec2.internal"),
		PublicDnsName:    aws.String("ec2-52-1-1-1.compute.amazonaws.com"),
		Tags: []*ec2.Tag{
			{Key: aws.String(stackTag), Value: aws.String("my-stack-v3")},
			{Key: aws.String(asgTag), Value: aws.String("my-asg")},
		},
	}
	m := memberFromInstance(instance, "eu-west-1")
	if m.InstanceID != "i-0123456789" {
		t.Errorf("InstanceID = %q", m.InstanceID)
	}
	if m.Region != "eu-west-1" {
		t.Errorf("Region = %q", m.Region)
	}
	if m.ClusterToken != "my-stack-v3" {
		t.Errorf("ClusterToken = %q", m.ClusterToken)
	}
	if m.AutoScalingGroup != "my-asg" {
		t.Errorf("AutoScalingGroup = %q", m.AutoScalingGroup)
	}
	if m.ClientPort != cluster.DefaultClientPort || m.PeerPort != cluster.DefaultPeerPort {
		t.Errorf("expected default ports applied by cluster.NewMember, got client=%d peer=%d", m.ClientPort, m.PeerPort)
	}
}
