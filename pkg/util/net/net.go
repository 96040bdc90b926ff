// Package net holds the handful of address predicates shared by the cloud
// adapter and the data model, generalized from the teacher's own
// pkg/util/net (there used to pick a gossip bind address; here used to
// sanity-check the addresses the cloud API hands back).
package net

import "net"

// IsRoutableIPv4 checks that the passed string can be parsed as a valid
// IPv4 address, and that it is not a loopback or unspecified address that
// would be unreachable from outside the host it names. Used to discard EC2
// instances whose cloud-reported address is not actually usable as a peer
// or client address (e.g. mid-boot instances the API has not yet assigned
// an address to).
func IsRoutableIPv4(s string) bool {
	if ip := net.ParseIP(s); ip.To4() != nil && !ip.IsLoopback() && !ip.IsUnspecified() {
		return true
	}
	return false
}
