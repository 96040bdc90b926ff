// Package config holds the supervisor's runtime configuration, bound from
// both CLI flags and environment variables (cmd/e2s/app wires cobra +
// viper), in the style of the teacher's pkg/manager.Config.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// NAPTIME is the sleep interval between ticks on error, after the child
// exits, and the TTL of the self-maintenance lock.
const NAPTIME = 30 * time.Second

// UpgradeLockTTL is how long the housekeeper's upgrade lock is held across
// a child restart.
const UpgradeLockTTL = 600 * time.Second

// Config is the supervisor's complete runtime configuration.
type Config struct {
	// DataDir is the daemon's data directory, owned exclusively by the
	// Supervisor.
	DataDir string

	// Binary is the path to the daemon executable; ".old" is appended when
	// running the previous version.
	Binary string

	// CtlBinary is the path to the daemon's companion CLI, used by the
	// Housekeeper to shell out to "cluster-health".
	CtlBinary string

	// HostedZone is the DNS suffix records are published under. Empty
	// disables DNS publication.
	HostedZone string

	// ActiveRegions is the full region list to search for fleet members.
	// More than one region enables multi-region mode.
	ActiveRegions []string

	// EtcdVersion is the target daemon version.
	EtcdVersion string

	// EtcdVersionPrev is the version run when RunOld is set.
	EtcdVersionPrev string

	// TickInterval is how often the Housekeeper ticks.
	TickInterval time.Duration
}

// MultiRegion reports whether more than one region is configured.
func (c *Config) MultiRegion() bool {
	return len(c.ActiveRegions) > 1
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Binary == "" {
		c.Binary = "/bin/etcd"
	}
	if c.CtlBinary == "" {
		c.CtlBinary = c.Binary + "ctl"
	}
	if c.TickInterval == 0 {
		c.TickInterval = NAPTIME
	}
	if c.EtcdVersion == "" {
		return errors.New("ETCDVERSION must be set")
	}
	return nil
}

// New validates and returns cfg, applying defaults for unset fields.
func New(cfg *Config) (*Config, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseRegions splits a comma-separated ACTIVE_REGIONS value, trimming
// whitespace and dropping empty entries.
func ParseRegions(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	regions := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			regions = append(regions, p)
		}
	}
	return regions
}
