// Package housekeeper implements the leader-elected background loop:
// evicting dead members, publishing DNS records, and driving rolling
// upgrades, all gated behind a short-TTL distributed lock.
package housekeeper

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zalando-incubator/e2s/pkg/cluster"
	"github.com/zalando-incubator/e2s/pkg/config"
	"github.com/zalando-incubator/e2s/pkg/discovery"
	"github.com/zalando-incubator/e2s/pkg/etcdclient"
	"github.com/zalando-incubator/e2s/pkg/log"
	"github.com/zalando-incubator/e2s/pkg/supervisor"
)

const (
	selfMaintenanceLockKey = "_self_maintenance_lock"
	upgradeLockKey         = "_upgrade_lock"
)

// DNSPublisher publishes the SRV/A record triple for a cluster's joined
// members; satisfied by internal/provider/aws.Client.
type DNSPublisher interface {
	PublishDNS(ctx context.Context, hostedZone, clusterToken string, multiRegion bool, members []*cluster.Member) error
}

// SGRevoker revokes a member's cross-region security-group ingress on
// eviction; satisfied by internal/provider/aws.Client.
type SGRevoker interface {
	RevokeMember(ctx context.Context, clusterToken string, m *cluster.Member)
}

// Housekeeper is the leader-elected maintenance loop. It only ever reads
// Supervisor-owned state through a cluster.SharedState snapshot.
type Housekeeper struct {
	cfg   *config.Config
	cloud discovery.CloudProvider
	dns   DNSPublisher
	sg    SGRevoker
	state *cluster.SharedState

	lastMembers map[uint64]*cluster.EtcdMember
	dirty       bool
}

// New returns a Housekeeper for the given configuration and collaborators.
func New(cfg *config.Config, cloud discovery.CloudProvider, dns DNSPublisher, sg SGRevoker, state *cluster.SharedState) *Housekeeper {
	return &Housekeeper{cfg: cfg, cloud: cloud, dns: dns, sg: sg, state: state}
}

// Run ticks every cfg.TickInterval until ctx is cancelled.
func (h *Housekeeper) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Housekeeper) tick(ctx context.Context) {
	snap := h.state.Snapshot()
	if !snap.Running || snap.Me == nil {
		h.passiveTick(ctx, snap)
		return
	}

	c := etcdclient.New(snap.Me.ClientURL(h.cfg.MultiRegion()))
	if !c.IsLeader(ctx) {
		h.passiveTick(ctx, snap)
		return
	}

	h.activeTick(ctx, c, snap)
}

// activeTick runs the leader-only maintenance path: acquire the
// maintenance lock, evict unhealthy members, publish DNS.
func (h *Housekeeper) activeTick(ctx context.Context, c *etcdclient.Client, snap cluster.StateSnapshot) {
	rows, err := c.Members(ctx)
	if err != nil || rows == nil {
		log.Debug("housekeeper: leader unreachable on its own client url")
		return
	}

	changed := h.membersChanged(rows)
	unhealthy := h.clusterUnhealthy()

	if !h.dirty && !changed && !unhealthy {
		return
	}

	if c.LockHeld(ctx, upgradeLockKey) {
		log.Debug("housekeeper: upgrade lock held, deferring maintenance")
		return
	}

	acquired, err := c.AcquireLock(ctx, selfMaintenanceLockKey, int(config.NAPTIME/time.Second), snap.Me.InstanceID)
	if err != nil || !acquired {
		return
	}
	h.dirty = true

	fleet, err := h.cloud.Fleet(ctx, snap.Me)
	if err != nil {
		log.Error("housekeeper: cannot enumerate cloud fleet", zap.Error(err))
		return
	}
	if len(fleet) == 0 {
		return
	}

	members := cluster.MergeMembers(fleet, toRawMembers(rows), h.cfg.MultiRegion())
	h.evictUnhealthy(ctx, c, snap.Me.ClusterToken, members)

	if err := h.dns.PublishDNS(ctx, h.cfg.HostedZone, snap.Me.ClusterToken, h.cfg.MultiRegion(), members); err != nil {
		log.Error("housekeeper: cannot publish DNS records", zap.Error(err))
	}
	h.dirty = false

	log.Info("housekeeper tick summary",
		zap.Int("members", len(members)),
		zap.Uint64("leader_id", snap.Me.ID),
		zap.Bool("dirty", h.dirty),
	)
}

// evictUnhealthy removes any cluster member whose peer URLs match no cloud
// instance in the merged view, revoking its cross-region security-group
// ingress as it goes.
func (h *Housekeeper) evictUnhealthy(ctx context.Context, c *etcdclient.Client, clusterToken string, members []*cluster.Member) {
	for _, m := range members {
		if m.HasInstanceID() || !m.HasJoined() {
			continue
		}
		log.Warn("evicting member with no matching cloud instance",
			zap.String("member", m.ShortName()),
		)
		if err := c.RemoveMember(ctx, m.ID); err != nil {
			log.Error("housekeeper: cannot remove unhealthy member", zap.Error(err))
			continue
		}
		if h.sg != nil {
			h.sg.RevokeMember(ctx, clusterToken, m)
		}
	}
}

// passiveTick clears the membership cache and, when this node is running
// the old binary and the cluster is healthy, attempts the rolling-upgrade
// handoff.
func (h *Housekeeper) passiveTick(ctx context.Context, snap cluster.StateSnapshot) {
	h.lastMembers = nil
	h.dirty = false

	if !snap.RunOld || snap.Me == nil {
		return
	}
	if h.clusterUnhealthy() {
		return
	}

	c := etcdclient.New(snap.Me.ClientURL(h.cfg.MultiRegion()))
	acquired, err := c.AcquireLock(ctx, upgradeLockKey, int(config.UpgradeLockTTL/time.Second), snap.Me.InstanceID)
	if err != nil || !acquired {
		return
	}

	log.Info("housekeeper: taking upgrade lock, restarting child on new binary", zap.String("self", snap.Me.ShortName()))

	if snap.ChildPID != 0 {
		supervisor.SignalTerminate(snap.ChildPID)
	}

	const pollInterval = 10 * time.Second
	const maxPolls = 59
	for i := 0; i < maxPolls; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
		if !h.clusterUnhealthy() {
			c.ReleaseLock(ctx, upgradeLockKey)
			log.Info("housekeeper: upgrade complete, released upgrade lock")
			return
		}
	}
	log.Warn("housekeeper: upgrade health check timed out, abandoning upgrade lock to expire by TTL")
}

// membersChanged reports whether the raw membership rows differ from the
// last tick's, keyed by id. It is idempotent: a second consecutive call
// with no changes returns false.
func (h *Housekeeper) membersChanged(rows []etcdclient.MemberRow) bool {
	current := toRawMembers(rows)
	byID := make(map[uint64]*cluster.EtcdMember, len(current))
	for _, m := range current {
		byID[m.ID] = m
	}

	changed := len(byID) != len(h.lastMembers)
	if !changed {
		for id, m := range byID {
			prev, ok := h.lastMembers[id]
			if !ok || prev.Name != m.Name || !sameURLs(prev.PeerURLs, m.PeerURLs) || !sameURLs(prev.ClientURLs, m.ClientURLs) {
				changed = true
				break
			}
		}
	}
	h.lastMembers = byID
	return changed
}

func sameURLs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// clusterUnhealthy shells out to the daemon's companion CLI and scans its
// output for the substrings "unhealthy" or "unreachable". This textual
// scan is brittle but preserved deliberately: a future revision could
// parse a structured health endpoint instead.
func (h *Housekeeper) clusterUnhealthy() bool {
	cmd := exec.Command(h.cfg.CtlBinary, "cluster-health")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		log.Debugf("cluster-health: %v", err)
	}
	text := strings.ToLower(out.String())
	return strings.Contains(text, "unhealthy") || strings.Contains(text, "unreachable")
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

