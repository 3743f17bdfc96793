package resolver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// NewTransport builds an *http.Transport whose DialContext resolves every
// host through res before dialing, so callers that don't need the fetcher
// package's full Options (robots.txt and sitemap fetches, which still run
// the request through the standard library's redirect-following
// http.Client) still get the same DNS-filtering guarantee that
// internal/fetcher wires for page fetches. Every dial — including ones
// http.Client issues mid-redirect — goes through res, never Go's default
// resolver.
func NewTransport(res Resolver, dialTimeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: dialTimeout}
	return &http.Transport{
		DialContext: resolvingDialContext(dialer, res),
	}
}

func resolvingDialContext(dialer *net.Dialer, res Resolver) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid dial address %s: %w", addr, err)
		}

		addrs, err := res.Resolve(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dns resolution denied for %s: %w", host, err)
		}

		var lastErr error
		for _, ip := range addrs {
			conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if dialErr == nil {
				return conn, nil
			}
			lastErr = dialErr
		}
		return nil, fmt.Errorf("failed to dial any resolved address for %s: %w", host, lastErr)
	}
}
