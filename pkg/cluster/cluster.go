package cluster

// Snapshot is the transient view assembled each supervisor/housekeeper
// tick: which peer (if any) answered our membership query, who that peer
// believes the leader is, the cluster's reported version, and the merged
// member list.
type Snapshot struct {
	// AccessibleMember is the instance id of whichever peer (other than
	// self) first returned a non-empty member list; cluster-mutation calls
	// (add, remove, lock) are issued against this peer. Empty when no peer
	// answered.
	AccessibleMember string

	// LeaderID is the cluster-reported leader id, or 0 when unknown.
	LeaderID uint64

	// ClusterVersion is the etcd major.minor.patch string reported by
	// /version, or empty when unavailable.
	ClusterVersion string

	Members []*Member
}

// Unbootstrapped reports whether no peer answered our membership query this
// tick ("unbootstrapped-from-our-view").
func (s *Snapshot) Unbootstrapped() bool {
	return s.AccessibleMember == ""
}

// IsUpgraded reports whether the cluster-reported version's major.minor
// matches the given target version's major.minor prefix.
func (s *Snapshot) IsUpgraded(targetVersion string) bool {
	return versionPrefix(s.ClusterVersion) == versionPrefix(targetVersion)
}

func versionPrefix(v string) string {
	dot := 0
	for i, c := range v {
		if c == '.' {
			dot++
			if dot == 2 {
				return v[:i]
			}
		}
	}
	return v
}

// IsHealthy implements the healthy-to-join check: scan members in order.
//
//   - If any member has name == me.InstanceID, self is already known to the
//     cluster: healthy.
//   - Else if any member has no cloud instance id (a cluster row outside our
//     fleet, i.e. a zombie), unhealthy: wait for the housekeeper to evict it.
//   - Else if any member is half-joined, healthy iff that row's peer URLs
//     match self's own peer URL (it is our own half-finished join).
//   - Otherwise, healthy.
func IsHealthy(me *Member, members []*Member) bool {
	for _, m := range members {
		if m.Name != "" && m.Name == me.InstanceID {
			return true
		}
	}
	for _, m := range members {
		if !m.HasInstanceID() {
			return false
		}
	}
	for _, m := range members {
		if m.IsHalfJoined() {
			return anyAddrMatches(m.PeerURLs, me)
		}
	}
	return true
}
