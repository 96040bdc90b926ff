package supervisor

import (
	"testing"

	"github.com/zalando-incubator/e2s/pkg/cluster"
)

func member(instanceID string) *cluster.Member {
	m := cluster.NewMember()
	m.InstanceID = instanceID
	m.PrivateIP = "10.0.0.1"
	m.PrivateDNS = instanceID + ".internal"
	m.ClusterToken = "stack-v1"
	return m
}

func TestDecide_ColdStart_NoDataDir(t *testing.T) {
	me := member("i-1")
	snap := &cluster.Snapshot{} // Unbootstrapped: no peer answered
	plan, err := decide(me, snap, false)
	if err != nil {
		t.Fatal(err)
	}
	if !plan.IncludeEC2Instances {
		t.Fatal("expected cold start to include EC2 instances in -initial-cluster")
	}
	if plan.ClusterState != stateNew {
		t.Fatalf("expected cluster-state new on a true cold start, got %q", plan.ClusterState)
	}
	if plan.AddMember || plan.RemoveMember || plan.WipeDataDir {
		t.Fatalf("expected no membership mutation or wipe on cold start, got %+v", plan)
	}
}

func TestDecide_ColdStart_DataDirSurvivedARestart(t *testing.T) {
	me := member("i-1")
	snap := &cluster.Snapshot{}
	plan, err := decide(me, snap, true)
	if err != nil {
		t.Fatal(err)
	}
	if plan.ClusterState != stateExisting {
		t.Fatalf("expected cluster-state existing when the data dir survived, got %q", plan.ClusterState)
	}
}

func TestDecide_WarmRejoin_AlreadyJoinedDataPresent(t *testing.T) {
	me := member("i-1")
	me.ID = 7
	me.ClientURLs = []string{"http://10.0.0.1:2379"}
	snap := &cluster.Snapshot{AccessibleMember: "i-2", LeaderID: 2}
	plan, err := decide(me, snap, true)
	if err != nil {
		t.Fatal(err)
	}
	if plan.AddMember || plan.RemoveMember || plan.WipeDataDir {
		t.Fatalf("expected a quiet restart with matching data dir to take no action, got %+v", plan)
	}
	if plan.ClusterState != stateExisting {
		t.Fatalf("expected cluster-state existing, got %q", plan.ClusterState)
	}
}

func TestDecide_ReplacedInstance_KnownToClusterButDataDirGone(t *testing.T) {
	// Same instance is still known to the cluster (has client URLs) but its
	// data directory is gone, e.g. replaced by an ASG without an EBS volume
	// surviving. It must re-register under a fresh id.
	me := member("i-1")
	me.ID = 7
	me.ClientURLs = []string{"http://10.0.0.1:2379"}
	snap := &cluster.Snapshot{AccessibleMember: "i-2", LeaderID: 2}
	plan, err := decide(me, snap, false)
	if err != nil {
		t.Fatal(err)
	}
	if !plan.AddMember || !plan.RemoveMember || !plan.WipeDataDir {
		t.Fatalf("expected add+remove+wipe when the data dir is gone but the cluster still knows us, got %+v", plan)
	}
}

func TestDecide_AddRemoveRequiresKnownLeader(t *testing.T) {
	me := member("i-1")
	me.ID = 7
	me.ClientURLs = []string{"http://10.0.0.1:2379"}
	snap := &cluster.Snapshot{AccessibleMember: "i-2", LeaderID: 0} // no leader known
	_, err := decide(me, snap, false)
	if err == nil {
		t.Fatal("expected an error when a membership mutation is required but no leader is known")
	}
	if !isClusterError(err) {
		t.Fatalf("expected a ClusterError (tick-abort), got %T: %v", err, err)
	}
}

func TestDecide_NotYetRegistered_AddsSelf(t *testing.T) {
	// We have no cluster id and no client URLs (never registered), and our
	// data dir is gone: the decision table wipes it and routes this through
	// AddMember.
	me := member("i-1")
	snap := &cluster.Snapshot{AccessibleMember: "i-2", LeaderID: 2}
	plan, err := decide(me, snap, false)
	if err != nil {
		t.Fatal(err)
	}
	if !plan.WipeDataDir {
		t.Fatal("expected data dir wipe when it does not exist but a wipe is harmless")
	}
	if !plan.AddMember {
		t.Fatal("expected AddMember for a node with no client URLs and no prior join")
	}
}

func TestDecide_ZombieSelf_HasJoinedWithName(t *testing.T) {
	me := member("i-1")
	me.ID = 7
	me.Name = "i-1"
	snap := &cluster.Snapshot{AccessibleMember: "i-2", LeaderID: 2}
	plan, err := decide(me, snap, false)
	if err != nil {
		t.Fatal(err)
	}
	if plan.ClusterState != stateNew {
		t.Fatalf("expected cluster-state new for a named-but-dataless rejoin, got %q", plan.ClusterState)
	}
	if plan.AddMember {
		t.Fatal("a member already joined under its own name should not re-register")
	}
}

func TestDecide_ZombieSelf_HasJoinedWithoutName(t *testing.T) {
	me := member("i-1")
	me.ID = 7
	snap := &cluster.Snapshot{AccessibleMember: "i-2", LeaderID: 2}
	plan, err := decide(me, snap, false)
	if err != nil {
		t.Fatal(err)
	}
	if plan.ClusterState != stateExisting {
		t.Fatalf("expected cluster-state existing when joined but unnamed, got %q", plan.ClusterState)
	}
}
