package cluster

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func cloudMember(instanceID, privateIP string) *Member {
	m := NewMember()
	m.InstanceID = instanceID
	m.PrivateIP = privateIP
	m.PrivateDNS = instanceID + ".internal"
	m.ClusterToken = "stack-v1"
	return m
}

func TestMergeMembers_ClusterOnlyRowInserted(t *testing.T) {
	ec2 := []*Member{cloudMember("i-1", "10.0.0.1"), cloudMember("i-2", "10.0.0.2")}
	rows := []*EtcdMember{
		{ID: 1, Name: "i-1", PeerURLs: []string{"http://10.0.0.1:2380"}, ClientURLs: []string{"http://10.0.0.1:2379"}},
		{ID: 2, Name: "zombie", PeerURLs: []string{"http://10.0.0.99:2380"}},
	}
	merged := MergeMembers(ec2, rows, false)
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged members, got %d: %+v", len(merged), merged)
	}
	var i1, zombie *Member
	for _, m := range merged {
		switch {
		case m.InstanceID == "i-1":
			i1 = m
		case m.Name == "zombie":
			zombie = m
		}
	}
	if i1 == nil || i1.ID != 1 {
		t.Fatalf("expected i-1 to be enriched with cluster id 1, got %+v", i1)
	}
	if zombie == nil || zombie.HasInstanceID() {
		t.Fatalf("expected zombie row to be cluster-only, got %+v", zombie)
	}
}

func TestMergeMembers_DeterministicRegardlessOfInsertionOrder(t *testing.T) {
	ec2a := []*Member{cloudMember("i-1", "10.0.0.1"), cloudMember("i-2", "10.0.0.2"), cloudMember("i-3", "10.0.0.3")}
	ec2b := []*Member{cloudMember("i-3", "10.0.0.3"), cloudMember("i-1", "10.0.0.1"), cloudMember("i-2", "10.0.0.2")}
	rows := []*EtcdMember{
		{ID: 2, Name: "i-2", PeerURLs: []string{"http://10.0.0.2:2380"}, ClientURLs: []string{"http://10.0.0.2:2379"}},
	}

	a := MergeMembers(ec2a, rows, false)
	b := MergeMembers(ec2b, rows, false)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("merge result depends on insertion order (-a +b):\n%s", diff)
	}
}

func TestMergeMembers_SortedByInstanceIDThenName(t *testing.T) {
	ec2 := []*Member{cloudMember("i-3", "10.0.0.3"), cloudMember("i-1", "10.0.0.1")}
	rows := []*EtcdMember{
		{ID: 9, Name: "aaa-only", PeerURLs: []string{"http://10.0.0.55:2380"}},
	}
	merged := MergeMembers(ec2, rows, false)
	got := make([]string, 0, len(merged))
	for _, m := range merged {
		got = append(got, sortKey(m))
	}
	want := []string{"aaa-only", "i-1", "i-3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected sort order (-want +got):\n%s", diff)
	}
}

func TestAddrMatches_AllFourHostForms(t *testing.T) {
	m := NewMember()
	m.PrivateIP = "10.0.0.1"
	m.PublicIP = "52.0.0.1"
	m.PrivateDNS = "ip-10-0-0-1.ec2.internal"
	m.PublicDNS = "ec2-52-0-0-1.compute.amazonaws.com"

	cases := []string{
		"http://10.0.0.1:2380",
		"http://52.0.0.1:2380",
		"http://ip-10-0-0-1.ec2.internal:2380",
		"http://ec2-52-0-0-1.compute.amazonaws.com:2380",
	}
	for _, peerURL := range cases {
		if !AddrMatches(peerURL, m) {
			t.Errorf("expected %q to match member %+v", peerURL, m)
		}
	}
	if AddrMatches("http://1.2.3.4:2380", m) {
		t.Errorf("expected unrelated address not to match")
	}
	if AddrMatches("http://10.0.0.1:9999", m) {
		t.Errorf("expected mismatched port not to match")
	}
}

func TestInitialCluster_ColdStartIncludesAllCloudInstances(t *testing.T) {
	ec2 := []*Member{cloudMember("i-1", "10.0.0.1"), cloudMember("i-2", "10.0.0.2"), cloudMember("i-3", "10.0.0.3")}
	merged := MergeMembers(ec2, nil, false)
	got := InitialCluster(merged, true, false)
	want := "i-1=http://i-1.internal:2380,i-2=http://i-2.internal:2380,i-3=http://i-3.internal:2380"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
