package aws

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/pkg/errors"

	"github.com/zalando-incubator/e2s/pkg/cluster"
)

const dnsTTL = 60

// stackVersion returns the text after the final '-' in a cluster token,
// used to namespace DNS records per stack version.
func stackVersion(clusterToken string) string {
	i := strings.LastIndex(clusterToken, "-")
	if i < 0 {
		return clusterToken
	}
	return clusterToken[i+1:]
}

// PublishDNS UPSERTs the SRV/SRV/A record triple for members present in
// both the cloud fleet and the cluster view, ordered deterministically by
// routable DNS name.
func (c *Client) PublishDNS(ctx context.Context, hostedZone, clusterToken string, multiRegion bool, members []*cluster.Member) error {
	if hostedZone == "" {
		return errors.New("cannot publish DNS records: no hosted zone configured")
	}

	joined := make([]*cluster.Member, 0, len(members))
	for _, m := range members {
		if m.HasInstanceID() && m.HasJoined() {
			joined = append(joined, m)
		}
	}
	sort.Slice(joined, func(i, j int) bool {
		return joined[i].RoutableDNS(multiRegion) < joined[j].RoutableDNS(multiRegion)
	})

	zoneID, err := c.hostedZoneID(ctx, hostedZone)
	if err != nil {
		return err
	}

	ver := stackVersion(clusterToken)
	zone := strings.TrimSuffix(hostedZone, ".")

	serverSRV := make([]*route53.ResourceRecord, 0, len(joined))
	clientSRV := make([]*route53.ResourceRecord, 0, len(joined))
	aRecords := make([]*route53.ResourceRecord, 0, len(joined))
	for _, m := range joined {
		dns := m.RoutableDNS(multiRegion)
		addr := m.RoutableAddr(multiRegion)
		serverSRV = append(serverSRV, &route53.ResourceRecord{
			Value: aws.String(srvValue(m.PeerPort, dns)),
		})
		clientSRV = append(clientSRV, &route53.ResourceRecord{
			Value: aws.String(srvValue(m.ClientPort, dns)),
		})
		aRecords = append(aRecords, &route53.ResourceRecord{
			Value: aws.String(addr),
		})
	}

	changes := []*route53.Change{
		upsert(recordName("_etcd-server._tcp", ver, zone), route53.RRTypeSrv, serverSRV),
		upsert(recordName("_etcd-client._tcp", ver, zone), route53.RRTypeSrv, clientSRV),
		upsert(recordName("etcd-server", ver, zone), route53.RRTypeA, aRecords),
	}

	_, err = c.route53().ChangeResourceRecordSetsWithContext(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &route53.ChangeBatch{
			Changes: changes,
		},
	})
	if err != nil {
		return errors.Wrap(err, "cannot publish DNS records")
	}
	return nil
}

// hostedZoneID resolves a hosted zone's id from its domain name. The
// housekeeper is only handed a human-readable zone (HOSTED_ZONE), not a
// Route53 zone id, so every publish does a name lookup first.
func (c *Client) hostedZoneID(ctx context.Context, zone string) (string, error) {
	name := strings.TrimSuffix(zone, ".") + "."
	resp, err := c.route53().ListHostedZonesByNameWithContext(ctx, &route53.ListHostedZonesByNameInput{
		DNSName: aws.String(name),
	})
	if err != nil {
		return "", errors.Wrapf(err, "cannot resolve hosted zone %s", zone)
	}
	for _, hz := range resp.HostedZones {
		if aws.StringValue(hz.Name) == name {
			return aws.StringValue(hz.Id), nil
		}
	}
	return "", errors.Errorf("hosted zone not found: %s", zone)
}

func srvValue(port int, dns string) string {
	return "1 1 " + strconv.Itoa(port) + " " + dns
}

func recordName(prefix, ver, zone string) string {
	return prefix + "." + ver + "." + zone
}

func upsert(name, recordType string, records []*route53.ResourceRecord) *route53.Change {
	return &route53.Change{
		Action: aws.String(route53.ChangeActionUpsert),
		ResourceRecordSet: &route53.ResourceRecordSet{
			Name:            aws.String(name),
			Type:            aws.String(recordType),
			TTL:             aws.Int64(dnsTTL),
			ResourceRecords: records,
		},
	}
}
