package supervisor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zalando-incubator/e2s/pkg/cluster"
)

// metricsMinVersion is the version at which the daemon gained a dedicated
// metrics listener; -listen-metrics-urls is only appended at or above it.
var metricsMinVersion = [2]int{3, 3}

// BuildArgs constructs the daemon child-process arguments for the given
// member, initial-cluster string, cluster state, data directory, and
// target version, per the external-interfaces contract.
func BuildArgs(me *cluster.Member, initialCluster, clusterState, dataDir, targetVersion string, multiRegion bool) []string {
	args := []string{
		"-name", me.InstanceID,
		"--data-dir", dataDir,
		"-listen-peer-urls", fmt.Sprintf("http://0.0.0.0:%d", me.PeerPort),
		"-initial-advertise-peer-urls", me.PeerURL(multiRegion),
		"-listen-client-urls", fmt.Sprintf("http://0.0.0.0:%d", me.ClientPort),
		"-advertise-client-urls", me.ClientURL(multiRegion),
		"-initial-cluster", initialCluster,
		"-initial-cluster-token", me.ClusterToken,
		"-initial-cluster-state", clusterState,
	}
	if major, minor, ok := parseMajorMinor(targetVersion); ok {
		if major > metricsMinVersion[0] || (major == metricsMinVersion[0] && minor >= metricsMinVersion[1]) {
			args = append(args, "-listen-metrics-urls", fmt.Sprintf("http://0.0.0.0:%d", me.MetricsPort))
		}
	}
	return args
}

func parseMajorMinor(version string) (int, int, bool) {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

// BinaryPath returns the daemon binary path to exec, switching to the
// ".old" suffix when running the previous version.
func BinaryPath(base string, runOld bool) string {
	if runOld {
		return base + ".old"
	}
	return base
}
