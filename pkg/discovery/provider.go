// Package discovery defines the interface the supervisor and housekeeper
// use to learn about the intended fleet from the cloud, so that the
// reconciliation logic in pkg/supervisor and pkg/housekeeper never imports
// a concrete cloud SDK directly. Adapted from the teacher's PeerProvider
// (which returned bare gossip addresses) into a provider that returns fully
// enriched cluster.Member values, since this system has no gossip layer of
// its own.
package discovery

import (
	"context"

	"github.com/zalando-incubator/e2s/pkg/cluster"
)

// CloudProvider resolves this node's own identity from instance metadata
// and enumerates the rest of the intended fleet.
type CloudProvider interface {
	// Identity resolves "me" from instance metadata and tags: instance id,
	// region, private/public addresses, autoscaling group, and cluster
	// token. Called once at startup.
	Identity(ctx context.Context) (*cluster.Member, error)

	// Fleet enumerates every running instance sharing me's cluster token,
	// across every configured region, applying the multi-region
	// public-IP rule.
	Fleet(ctx context.Context, me *cluster.Member) ([]*cluster.Member, error)
}
