package cluster

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// EtcdMember is the raw shape of one row in the etcd v2 membership list, as
// returned by GET /v2/members and decoded by pkg/etcdclient.
type EtcdMember struct {
	ID         uint64
	Name       string
	PeerURLs   []string
	ClientURLs []string
}

// AddrMatches reports whether the given peer URL identifies the given cloud
// member, by comparing the URL's host (ignoring port) plus its port against
// the member's peer port, against each of the member's four host forms
// (private IP, public IP, private DNS, public DNS). This is the single
// predicate used everywhere the cloud and cluster views are joined; keeping
// it in one place means both directions of the merge, member eviction, and
// security-group upkeep all agree on what "the same node" means.
func AddrMatches(peerURL string, m *Member) bool {
	if m == nil || peerURL == "" {
		return false
	}
	u, err := url.Parse(peerURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(m.peerPort())
	}
	if port != strconv.Itoa(m.peerPort()) {
		return false
	}
	for _, h := range m.hostForms() {
		if h != "" && h == host {
			return true
		}
	}
	return false
}

// anyAddrMatches reports whether any of the member's peer URLs matches the
// given cloud Member via AddrMatches.
func anyAddrMatches(peerURLs []string, cloud *Member) bool {
	for _, u := range peerURLs {
		if AddrMatches(u, cloud) {
			return true
		}
	}
	return false
}

// MergeMembers produces a single, deterministically sorted list of Members
// from the cloud fleet view and the raw cluster membership rows, per the
// merge algorithm: seed a map keyed by peer address with the cloud members,
// then for each cluster row find a matching cloud member (enriching it in
// place) or insert a cluster-only Member when none matches.
func MergeMembers(ec2Members []*Member, etcdMembers []*EtcdMember, multiRegion bool) []*Member {
	byKey := make(map[string]*Member, len(ec2Members))
	order := make([]string, 0, len(ec2Members))
	keyFor := func(m *Member) string {
		return m.PeerAddr(multiRegion)
	}
	for _, m := range ec2Members {
		k := keyFor(m)
		byKey[k] = m
		order = append(order, k)
	}

	for _, row := range etcdMembers {
		matched := false
		for _, k := range order {
			cloud := byKey[k]
			if cloud.HasJoined() {
				// already enriched by an earlier row (shouldn't normally
				// happen, but keep the merge idempotent)
				continue
			}
			if anyAddrMatches(row.PeerURLs, cloud) {
				enrich(cloud, row)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		m := clusterOnlyMember(row)
		k := keyFor(m)
		if _, exists := byKey[k]; exists {
			// a cluster-only row that happens to collide with a cloud key
			// (can occur transiently with half-joined rows); enrich instead
			// of overwriting so no cloud facts are lost.
			enrich(byKey[k], row)
			continue
		}
		byKey[k] = m
		order = append(order, k)
	}

	members := make([]*Member, 0, len(byKey))
	for _, k := range order {
		members = append(members, byKey[k])
	}

	sort.SliceStable(members, func(i, j int) bool {
		return sortKey(members[i]) < sortKey(members[j])
	})
	return members
}

func sortKey(m *Member) string {
	if m.InstanceID != "" {
		return m.InstanceID
	}
	return m.Name
}

func enrich(cloud *Member, row *EtcdMember) {
	cloud.ID = row.ID
	cloud.Name = row.Name
	cloud.ClientURLs = row.ClientURLs
	cloud.PeerURLs = row.PeerURLs
}

func clusterOnlyMember(row *EtcdMember) *Member {
	m := NewMember()
	m.ID = row.ID
	m.Name = row.Name
	m.ClientURLs = row.ClientURLs
	m.PeerURLs = row.PeerURLs
	return m
}

// InitialCluster builds the comma-joined name=peer_url list used to
// bootstrap the daemon's -initial-cluster flag. When includeEC2Instances is
// true (cold start), every member with a cloud instance id is included even
// if it has not yet joined the cluster; otherwise only members with
// cluster-sourced peer URLs are included (steady state).
func InitialCluster(members []*Member, includeEC2Instances bool, multiRegion bool) string {
	parts := make([]string, 0, len(members))
	for _, m := range members {
		if includeEC2Instances && m.HasInstanceID() {
			name := m.InstanceID
			parts = append(parts, name+"="+m.PeerURL(multiRegion))
			continue
		}
		if len(m.PeerURLs) > 0 {
			name := m.Name
			if name == "" {
				name = m.InstanceID
			}
			peerURL := m.PeerURLs[0]
			parts = append(parts, name+"="+peerURL)
		}
	}
	return strings.Join(parts, ",")
}
