package resolver

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/idna"
)

// Resolver resolves a host (or host:port) to a non-empty list of
// admissible addresses, filtering loopback/private/multicast ranges per
// Policy before they ever reach the HTTP transport's dialer.
type Resolver interface {
	Resolve(ctx context.Context, hostOrHostPort string) ([]string, error)
}

// DelegateResolver is the subset of *net.Resolver this package depends on,
// so tests can substitute a fake without touching real DNS.
type DelegateResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// FilteringResolver wraps a DelegateResolver, applying Policy to its
// results and caching positive lookups for Policy.CacheTTL. It is the
// single point through which the HTTP client wrapper's transport dials,
// so that filtering cannot be bypassed by a later DNS rebind.
type FilteringResolver struct {
	delegate DelegateResolver
	policy   Policy

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New returns a FilteringResolver backed by net.DefaultResolver.
func New(policy Policy) *FilteringResolver {
	return NewWithDelegate(net.DefaultResolver, policy)
}

// NewWithDelegate allows injecting a DelegateResolver for tests.
func NewWithDelegate(delegate DelegateResolver, policy Policy) *FilteringResolver {
	return &FilteringResolver{
		delegate: delegate,
		policy:   policy,
		cache:    make(map[string]cacheEntry),
	}
}

// Resolve implements Resolver. hostOrHostPort's port, if present, is
// stripped for the lookup and ignored otherwise — port admissibility is
// not this component's concern.
func (r *FilteringResolver) Resolve(ctx context.Context, hostOrHostPort string) ([]string, error) {
	host := hostOrHostPort
	if h, _, err := net.SplitHostPort(hostOrHostPort); err == nil {
		host = h
	}

	asciiHost, err := toASCII(host)
	if err != nil {
		return nil, &ResolverError{Host: host, Cause: ErrCauseInvalidHost, Wrapped: err}
	}

	if addrs, ok := r.cached(asciiHost); ok {
		return addrs, nil
	}

	addrs, err := r.delegate.LookupHost(ctx, asciiHost)
	if err != nil {
		return nil, &ResolverError{Host: asciiHost, Cause: ErrCauseLookupFailed, Wrapped: err}
	}

	filtered := r.filter(addrs)
	if len(filtered) == 0 {
		return nil, &ResolverError{Host: asciiHost, Cause: ErrCauseAllFiltered}
	}

	r.store(asciiHost, filtered)
	return filtered, nil
}

func toASCII(host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(strings.ToLower(host))
	if err != nil {
		return strings.ToLower(host), nil
	}
	return ascii, nil
}

// filter drops addresses disallowed by Policy, preserving the delegate's
// ordering among those that survive.
func (r *FilteringResolver) filter(addrs []string) []string {
	kept := make([]string, 0, len(addrs))
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		if r.admits(ip) {
			kept = append(kept, a)
		}
	}
	return kept
}

func (r *FilteringResolver) admits(ip net.IP) bool {
	if ip.IsLoopback() {
		return r.policy.LoopbackAllowed
	}
	if isDisallowedPrivate(ip) {
		return r.policy.PrivateNetworksAllowed
	}
	return true
}

var cgnatBlock = mustParseCIDR("100.64.0.0/10")
var allZerosBlock = mustParseCIDR("0.0.0.0/8")

func mustParseCIDR(s string) *net.IPNet {
	_, block, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return block
}

// isDisallowedPrivate reports RFC1918, link-local, ULA, CGNAT, multicast,
// and 0.0.0.0/8 addresses — every range spec.md §4.2 names besides
// loopback, which is handled separately.
func isDisallowedPrivate(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		cgnatBlock.Contains(ip) ||
		allZerosBlock.Contains(ip)
}

func (r *FilteringResolver) cached(host string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[host]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.addrs, true
}

func (r *FilteringResolver) store(host string, addrs []string) {
	if r.policy.CacheTTL <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[host] = cacheEntry{addrs: addrs, expiresAt: time.Now().Add(r.policy.CacheTTL)}
}
