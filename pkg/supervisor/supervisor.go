// Package supervisor implements the per-node main loop: discover the
// intended fleet, reconcile cluster membership, and babysit the daemon
// child process.
package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zalando-incubator/e2s/pkg/cluster"
	"github.com/zalando-incubator/e2s/pkg/config"
	"github.com/zalando-incubator/e2s/pkg/discovery"
	"github.com/zalando-incubator/e2s/pkg/etcdclient"
	"github.com/zalando-incubator/e2s/pkg/log"
)

// Supervisor owns the daemon child process, the data directory, and the
// run_old flag; the Housekeeper only ever reads them through SharedState.
type Supervisor struct {
	cfg   *config.Config
	cloud discovery.CloudProvider
	sg    SGAuthorizer
	state *cluster.SharedState

	me     *cluster.Member
	runOld bool
	child  *Child
}

// New returns a Supervisor for the given configuration, cloud provider, and
// (optional) security-group authorizer, publishing its shared, read-only
// state into state.
func New(cfg *config.Config, cloud discovery.CloudProvider, sg SGAuthorizer, state *cluster.SharedState) *Supervisor {
	return &Supervisor{cfg: cfg, cloud: cloud, sg: sg, state: state}
}

// Run resolves this node's identity and then loops forever, sleeping
// config.NAPTIME on any error or after the child exits, until ctx is
// cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	me, err := s.cloud.Identity(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot resolve own identity")
	}
	s.me = me
	s.state.SetMe(me)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		default:
		}

		if err := s.tick(ctx); err != nil {
			if isClusterError(err) {
				log.Warn("cluster precondition unmet, will retry", zap.Error(err))
			} else {
				log.Error("tick failed", zap.Error(err))
			}
			sleep(ctx, config.NAPTIME)
			continue
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) error {
	fleet, err := s.cloud.Fleet(ctx, s.me)
	if err != nil {
		return errors.Wrap(err, "cannot enumerate cloud fleet")
	}

	snap, accessible, err := s.buildSnapshot(ctx, fleet)
	if err != nil {
		return errors.Wrap(err, "cannot build cluster snapshot")
	}
	snap.Members = cluster.MergeMembers(fleet, snap.rawMembers, s.cfg.MultiRegion())
	s.updateSelf(snap)

	if !cluster.IsHealthy(s.me, snap.Members) {
		log.Warn("fleet contains an unhealthy row, skipping this tick", zap.String("self", s.me.ShortName()))
		sleep(ctx, config.NAPTIME)
		return nil
	}

	dataExists := s.dataDirExists()
	plan, err := decide(s.me, snap.Snapshot, dataExists)
	if err != nil {
		return err
	}

	if plan.WipeDataDir {
		if err := wipeDataDir(s.cfg.DataDir); err != nil {
			log.Error("cannot wipe data directory", zap.Error(err))
		}
	}

	if accessible != nil {
		if err := executePlan(ctx, plan, s.me, s.cfg.MultiRegion(), accessible, s.sg, func() { sleep(ctx, config.NAPTIME) }); err != nil {
			return err
		}
		if plan.AddMember {
			// the merged view predates the add: carry the new registration
			// into it so -initial-cluster lists self
			for _, m := range snap.Members {
				if m.InstanceID == s.me.InstanceID {
					m.ID = s.me.ID
					m.PeerURLs = []string{s.me.PeerURL(s.cfg.MultiRegion())}
				}
			}
		}
	}

	s.runOld = plan.AddMember && plan.ClusterState == stateExisting && !snap.IsUpgraded(s.cfg.EtcdVersion) && s.cfg.EtcdVersionPrev != ""
	s.state.SetRunOld(s.runOld)

	initialCluster := plan.InitialCluster
	if initialCluster == "" {
		initialCluster = cluster.InitialCluster(snap.Members, plan.IncludeEC2Instances, s.cfg.MultiRegion())
	}

	targetVersion := s.cfg.EtcdVersion
	binPath := BinaryPath(s.cfg.Binary, s.runOld)
	if s.runOld {
		targetVersion = s.cfg.EtcdVersionPrev
	}
	args := BuildArgs(s.me, initialCluster, plan.ClusterState, s.cfg.DataDir, targetVersion, s.cfg.MultiRegion())

	child, err := Start(binPath, args)
	if err != nil {
		return errors.Wrap(err, "cannot start child")
	}
	s.child = child
	s.state.SetChild(child.PID(), true)
	go func() {
		select {
		case <-ctx.Done():
			child.Terminate()
		case <-child.done:
		}
	}()
	child.Wait()
	s.state.SetChild(0, false)
	sleep(ctx, config.NAPTIME)
	return nil
}

// snapshotResult bundles the merged cluster.Snapshot with the raw rows it
// was built from, so MergeMembers can be re-applied after the cloud fleet
// is fetched.
type snapshotResult struct {
	*cluster.Snapshot
	rawMembers []*cluster.EtcdMember
}

// buildSnapshot finds the first cloud fleet member other than self with a
// reachable client URL and queries it for the current cluster view. Self is
// never consulted: per spec.md §3, accessible_member is whichever peer
// *other than self* first answers, and treating self as accessible would
// turn a true cold start (nothing else up yet) into a false steady-state
// view of the cluster. If no peer answers, the snapshot is
// unbootstrapped-from-our-view and the returned client is nil.
func (s *Supervisor) buildSnapshot(ctx context.Context, fleet []*cluster.Member) (*snapshotResult, *etcdclient.Client, error) {
	for _, m := range fleet {
		if m.InstanceID == s.me.InstanceID {
			continue
		}
		c := etcdclient.New(m.ClientURL(s.cfg.MultiRegion()))
		rows, err := c.Members(ctx)
		if err != nil || rows == nil {
			continue
		}
		leader := c.Leader(ctx)
		version := c.Version(ctx)
		return &snapshotResult{
			Snapshot: &cluster.Snapshot{
				AccessibleMember: m.InstanceID,
				LeaderID:         leader,
				ClusterVersion:   version,
			},
			rawMembers: toRawMembers(rows),
		}, c, nil
	}

	return &snapshotResult{Snapshot: &cluster.Snapshot{}}, nil, nil
}

func toRawMembers(rows []etcdclient.MemberRow) []*cluster.EtcdMember {
	out := make([]*cluster.EtcdMember, 0, len(rows))
	for _, r := range rows {
		out = append(out, &cluster.EtcdMember{
			ID:         r.NumericID(),
			Name:       r.Name,
			ClientURLs: r.ClientURLs,
			PeerURLs:   r.PeerURLs,
		})
	}
	return out
}

// updateSelf refreshes s.me's cluster-sourced fields (id, name, URLs) from
// the merged view, keeping its cloud-sourced fields untouched.
func (s *Supervisor) updateSelf(snap *snapshotResult) {
	for _, m := range snap.Members {
		if m.InstanceID == s.me.InstanceID {
			s.me.ID = m.ID
			s.me.Name = m.Name
			s.me.ClientURLs = m.ClientURLs
			s.me.PeerURLs = m.PeerURLs
			return
		}
	}
}

func (s *Supervisor) dataDirExists() bool {
	_, err := os.Stat(filepath.Join(s.cfg.DataDir, "member"))
	return err == nil
}

// wipeDataDir removes the data directory: a symlink is unlinked, a regular
// file removed, and a directory removed recursively, matching the three
// filesystem shapes the original cleanup handled.
func wipeDataDir(dir string) error {
	fi, err := os.Lstat(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return os.Remove(dir)
	}
	if fi.IsDir() {
		return os.RemoveAll(dir)
	}
	return os.Remove(dir)
}

// shutdown performs best-effort terminal cleanup on SIGTERM: remove self
// from the cluster and terminate the child. Failures are logged, not
// returned, since the process is exiting regardless.
func (s *Supervisor) shutdown() {
	log.Info("shutting down", zap.String("self", s.me.ShortName()))
	s.removeSelf(context.Background())
	if s.child != nil {
		s.child.Terminate()
	}
}

// removeSelf is the terminal-cleanup counterpart to the join-plan's own
// add/remove handling: it rebuilds a snapshot against an accessible peer
// and, if self is present there by name, issues a best-effort RemoveMember
// so a node killed by SIGTERM does not leave a stale membership row behind
// for the Housekeeper to evict later.
func (s *Supervisor) removeSelf(ctx context.Context) {
	fleet, err := s.cloud.Fleet(ctx, s.me)
	if err != nil {
		log.Debugf("shutdown: cannot enumerate cloud fleet, skipping self-removal: %v", err)
		return
	}
	snap, accessible, err := s.buildSnapshot(ctx, fleet)
	if err != nil || accessible == nil {
		log.Debug("shutdown: no accessible peer, skipping self-removal")
		return
	}
	snap.Members = cluster.MergeMembers(fleet, snap.rawMembers, s.cfg.MultiRegion())
	for _, m := range snap.Members {
		if m.Name != "" && m.Name == s.me.InstanceID {
			if err := accessible.RemoveMember(ctx, m.ID); err != nil {
				log.Warn("shutdown: cannot remove self from the cluster", zap.Error(err))
			}
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
