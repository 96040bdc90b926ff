package supervisor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zalando-incubator/e2s/pkg/cluster"
	"github.com/zalando-incubator/e2s/pkg/etcdclient"
	"github.com/zalando-incubator/e2s/pkg/log"
)

// ClusterError is raised when a cluster-topology precondition is unmet (no
// known leader when a membership change is required, or a mutation call
// itself fails). Per DESIGN NOTES it is a tick-abort signal, not a process
// error: the caller logs it and sleeps for NAPTIME.
type ClusterError struct {
	msg string
}

func (e *ClusterError) Error() string { return e.msg }

func clusterErrorf(format string, args ...interface{}) error {
	return &ClusterError{msg: errors.Errorf(format, args...).Error()}
}

// JoinPlan is the outcome of the join-plan state machine: what state to ask
// the daemon to bootstrap as, and which (if any) membership mutation to
// perform first.
type JoinPlan struct {
	ClusterState        string // "new" or "existing"
	IncludeEC2Instances bool
	AddMember           bool
	RemoveMember        bool
	WipeDataDir         bool
	RunOld              bool
	InitialCluster      string
}

const (
	stateNew      = "new"
	stateExisting = "existing"
)

// decide computes the join plan per the decision table, without performing
// any of the side effects (membership mutation, data-dir wipe, sleeping)
// that executing the plan requires. Those are applied by Supervisor.tick.
func decide(me *cluster.Member, snap *cluster.Snapshot, dataExists bool) (*JoinPlan, error) {
	plan := &JoinPlan{ClusterState: stateExisting}

	switch {
	case snap.Unbootstrapped():
		plan.IncludeEC2Instances = true
		if dataExists {
			plan.ClusterState = stateExisting
		} else {
			plan.ClusterState = stateNew
		}
	case len(me.ClientURLs) > 0:
		if !dataExists {
			plan.AddMember = true
			plan.RemoveMember = true
			plan.WipeDataDir = true
		}
	default:
		plan.WipeDataDir = true
		if me.HasJoined() {
			if me.Name != "" {
				plan.ClusterState = stateNew
			} else {
				plan.ClusterState = stateExisting
			}
		} else {
			plan.AddMember = true
		}
	}

	if plan.AddMember || plan.RemoveMember {
		if snap.LeaderID == 0 {
			return nil, clusterErrorf("etcd cluster does not have a leader yet, cannot add/remove myself")
		}
	}

	return plan, nil
}

// SGAuthorizer adjusts cross-region security-group ingress when this node's
// own membership changes; satisfied by internal/provider/aws.Client. A nil
// SGAuthorizer is valid and simply skips the best-effort adjustment.
type SGAuthorizer interface {
	AuthorizeMember(ctx context.Context, clusterToken string, m *cluster.Member)
	RevokeMember(ctx context.Context, clusterToken string, m *cluster.Member)
}

// executePlan performs the membership mutation(s) a plan calls for, sleeping
// NAPTIME after each one to let the cluster apply the configuration change.
// On add it records the member id the cluster assigned in me.ID; the caller
// then lists the new registration when it builds -initial-cluster.
func executePlan(ctx context.Context, plan *JoinPlan, me *cluster.Member, multiRegion bool, accessible *etcdclient.Client, sg SGAuthorizer, sleep func()) error {
	if plan.RemoveMember {
		if err := accessible.RemoveMember(ctx, me.ID); err != nil {
			return &ClusterError{msg: errors.Wrap(err, "cannot remove my old instance from the cluster").Error()}
		}
		if sg != nil {
			sg.RevokeMember(ctx, me.ClusterToken, me)
		}
		sleep()
	}
	if plan.AddMember {
		row, err := accessible.AddMember(ctx, me.PeerURL(multiRegion))
		if err != nil {
			return &ClusterError{msg: errors.Wrap(err, "cannot register myself in the cluster").Error()}
		}
		me.ID = row.NumericID()
		log.Debugf("registered as member id %x", me.ID)
		if sg != nil {
			sg.AuthorizeMember(ctx, me.ClusterToken, me)
		}
		sleep()
	}
	return nil
}

// isClusterError reports whether err is a tick-abort ClusterError, as
// opposed to some other kind of failure.
func isClusterError(err error) bool {
	_, ok := err.(*ClusterError)
	return ok
}
