// Package cluster holds the data model shared by the supervisor and
// housekeeper: the merged view of cloud instances and etcd membership rows,
// and the small set of predicates used to reconcile the two.
package cluster

import (
	"fmt"
	"strings"
)

// Default port assignments, per the wire conventions of the daemon this
// supervisor manages.
const (
	DefaultClientPort  = 2379
	DefaultPeerPort    = 2380
	DefaultMetricsPort = 2381
)

// Member is the unified view of one node in the fleet, built by merging a
// cloud-instance record with a cluster-membership record. Any field may be
// its zero value when that half of the merge did not contribute a row; see
// MergeMembers.
type Member struct {
	// cloud-sourced fields
	InstanceID        string
	PrivateIP         string
	PublicIP          string
	PrivateDNS        string
	PublicDNS         string
	AutoScalingGroup  string
	ClusterToken      string
	Region            string

	// cluster-sourced fields
	ID         uint64
	Name       string
	ClientURLs []string
	PeerURLs   []string

	ClientPort  int
	PeerPort    int
	MetricsPort int
}

// NewMember returns a Member with the standard port defaults applied.
func NewMember() *Member {
	return &Member{
		ClientPort:  DefaultClientPort,
		PeerPort:    DefaultPeerPort,
		MetricsPort: DefaultMetricsPort,
	}
}

// HasInstanceID reports whether this Member has a cloud-sourced instance id,
// i.e. whether it was seen in the cloud fleet view.
func (m *Member) HasInstanceID() bool {
	return m != nil && m.InstanceID != ""
}

// HasJoined reports whether this Member has a cluster-sourced id, i.e.
// whether it is present in the etcd membership list in any form.
func (m *Member) HasJoined() bool {
	return m != nil && m.ID != 0
}

// IsHalfJoined reports whether this Member is a "registered but not yet
// joined" row: a membership-change was applied (it has an id) but the new
// member has not yet contacted the cluster (name and client URLs are still
// empty).
func (m *Member) IsHalfJoined() bool {
	return m.HasJoined() && m.Name == "" && len(m.ClientURLs) == 0
}

// AdvertiseAddr returns the address this member should be reached at for
// cluster configuration purposes: the private IP in single-region mode, the
// public DNS name when spanning multiple regions.
func (m *Member) AdvertiseAddr(multiRegion bool) string {
	if multiRegion {
		return m.PublicDNS
	}
	return m.PrivateIP
}

// RoutableDNS returns the DNS name clients should resolve to reach this
// member: the private DNS name in single-region mode, the public DNS name
// when spanning multiple regions.
func (m *Member) RoutableDNS(multiRegion bool) string {
	if multiRegion {
		return m.PublicDNS
	}
	return m.PrivateDNS
}

// RoutableAddr returns the address clients should use to reach this member:
// the private IP in single-region mode, the public IP when spanning multiple
// regions.
func (m *Member) RoutableAddr(multiRegion bool) string {
	if multiRegion {
		return m.PublicIP
	}
	return m.PrivateIP
}

func (m *Member) peerPort() int {
	if m.PeerPort == 0 {
		return DefaultPeerPort
	}
	return m.PeerPort
}

func (m *Member) clientPort() int {
	if m.ClientPort == 0 {
		return DefaultClientPort
	}
	return m.ClientPort
}

// PeerAddr returns the <dns-or-ip>:<peer-port> form of this member's peer
// address, as used to populate -initial-advertise-peer-urls and the DNS SRV
// record targets.
func (m *Member) PeerAddr(multiRegion bool) string {
	host := m.RoutableDNS(multiRegion)
	if host == "" {
		host = m.AdvertiseAddr(multiRegion)
	}
	return fmt.Sprintf("%s:%d", host, m.peerPort())
}

// PeerURL returns the http:// peer URL for this member.
func (m *Member) PeerURL(multiRegion bool) string {
	return fmt.Sprintf("http://%s", m.PeerAddr(multiRegion))
}

// ClientURL returns the http:// client URL for this member.
func (m *Member) ClientURL(multiRegion bool) string {
	return fmt.Sprintf("http://%s:%d", m.AdvertiseAddr(multiRegion), m.clientPort())
}

// ShortName returns a shortened, lowercased identifier suitable for log
// lines, preferring the cluster name and falling back to the instance id.
func (m *Member) ShortName() string {
	name := m.Name
	if name == "" {
		name = m.InstanceID
	}
	if len(name) > 8 {
		name = name[:8]
	}
	return strings.ToLower(name)
}

// hostForms returns the four host strings a peer URL might advertise this
// member under: private IP, public IP, private DNS, public DNS.
func (m *Member) hostForms() []string {
	return []string{m.PrivateIP, m.PublicIP, m.PrivateDNS, m.PublicDNS}
}
