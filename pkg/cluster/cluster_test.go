package cluster

import "testing"

func TestIsHealthy_SelfKnownByName(t *testing.T) {
	me := cloudMember("i-1", "10.0.0.1")
	members := []*Member{
		{InstanceID: "i-1", Name: "i-1"},
		{InstanceID: "i-2", Name: "i-2"},
	}
	if !IsHealthy(me, members) {
		t.Fatal("expected healthy: self known by name")
	}
}

func TestIsHealthy_ZombieRowMakesUnhealthy(t *testing.T) {
	me := cloudMember("i-1", "10.0.0.1")
	members := []*Member{
		{InstanceID: "i-2", Name: "i-2"},
		{Name: "zombie"}, // no InstanceID: not in our fleet
	}
	if IsHealthy(me, members) {
		t.Fatal("expected unhealthy: cluster row not present in cloud fleet")
	}
}

func TestIsHealthy_HalfJoinedMatchingSelf(t *testing.T) {
	me := cloudMember("i-1", "10.0.0.1")
	me.PeerPort = DefaultPeerPort
	members := []*Member{
		{InstanceID: "i-2", Name: "i-2"},
		{InstanceID: "i-1", ID: 7, PeerURLs: []string{"http://10.0.0.1:2380"}},
	}
	if !IsHealthy(me, members) {
		t.Fatal("expected healthy: half-joined row matches self's own peer url")
	}
}

func TestIsHealthy_HalfJoinedNotMatchingSelf(t *testing.T) {
	me := cloudMember("i-1", "10.0.0.1")
	members := []*Member{
		{InstanceID: "i-2", Name: "i-2"},
		{InstanceID: "i-3", ID: 7, PeerURLs: []string{"http://10.0.0.3:2380"}},
	}
	if IsHealthy(me, members) {
		t.Fatal("expected unhealthy: half-joined row belongs to a different member")
	}
}

func TestIsHealthy_AllOtherMembersHaveCloudFacts(t *testing.T) {
	me := cloudMember("i-1", "10.0.0.1")
	members := []*Member{
		{InstanceID: "i-2", Name: "i-2", ID: 2},
		{InstanceID: "i-3", Name: "i-3", ID: 3},
	}
	if !IsHealthy(me, members) {
		t.Fatal("expected healthy: all rows carry cloud instance ids")
	}
}

func TestSnapshot_IsUpgraded(t *testing.T) {
	s := &Snapshot{ClusterVersion: "3.3.10"}
	if !s.IsUpgraded("3.3.13") {
		t.Fatal("expected major.minor match to report upgraded")
	}
	if s.IsUpgraded("3.4.0") {
		t.Fatal("expected major.minor mismatch to report not upgraded")
	}
}
