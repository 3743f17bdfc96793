package resolver

import "time"

// Policy controls which resolved addresses the filtering resolver accepts.
type Policy struct {
	LoopbackAllowed        bool
	PrivateNetworksAllowed bool
	CacheTTL               time.Duration
}

// DefaultPolicy rejects loopback and private-network addresses, matching
// the engine's documented defaults (both flags default false).
var DefaultPolicy = Policy{
	CacheTTL: 5 * time.Minute,
}

type cacheEntry struct {
	addrs     []string
	expiresAt time.Time
}
