package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/crawlkit/engine/internal/resolver"
)

/*
buildTransport wires DNS resolution through a resolver.Resolver so that
the same loopback/private-network filtering protects every dial the
fetcher makes, not just the initial connection (a redirect or a DNS
rebind after the first lookup cannot bypass the filter because every
dial, on every connection this transport opens, goes through the same
DialContext).
*/
func buildTransport(res resolver.Resolver, opts Options) *http.Transport {
	dialer := &net.Dialer{Timeout: opts.Timeouts.Connect}

	transport := &http.Transport{
		DialContext:           resolvingDialContext(dialer, res),
		TLSClientConfig:       opts.TLS.clientConfig(),
		IdleConnTimeout:       opts.Timeouts.SocketIdle,
		ResponseHeaderTimeout: opts.Timeouts.RequestTotal,
		DisableCompression:    !opts.CompressionEnabled,
	}

	if opts.Proxy.Enabled {
		transport.Proxy = func(*http.Request) (*url.URL, error) {
			proxyURL := &url.URL{
				Scheme: opts.Proxy.Scheme,
				Host:   fmt.Sprintf("%s:%d", opts.Proxy.Host, opts.Proxy.Port),
			}
			if opts.Proxy.Username != "" {
				proxyURL.User = url.UserPassword(opts.Proxy.Username, opts.Proxy.Password)
			}
			return proxyURL, nil
		}
	}

	return transport
}

// resolvingDialContext returns a DialContext that resolves the dial
// target through res before handing the filtered address to dialer,
// preserving the original host:port string for anything downstream
// that inspects it (TLS SNI is set from the request URL by net/http
// itself, independent of the address actually dialed).
func resolvingDialContext(dialer *net.Dialer, res resolver.Resolver) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, &FetchError{Message: "invalid dial address " + addr, Cause: ErrCauseInvalidHost, Retryable: false}
		}

		addrs, err := res.Resolve(ctx, host)
		if err != nil {
			return nil, &FetchError{Message: "dns resolution denied for " + host + ": " + err.Error(), Cause: ErrCauseInvalidHost, Retryable: false}
		}

		var lastErr error
		for _, ip := range addrs {
			conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if dialErr == nil {
				return conn, nil
			}
			lastErr = dialErr
		}
		return nil, &FetchError{Message: "failed to dial any resolved address for " + host + ": " + fmt.Sprint(lastErr), Cause: ErrCauseNetworkFailure, Retryable: true}
	}
}

// buildCheckRedirect enforces RedirectPolicy.MaxRedirects and the
// authority-allowlist rule on every hop net/http is about to follow.
func buildCheckRedirect(policy RedirectPolicy) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > policy.MaxRedirects {
			return &FetchError{
				Message:   fmt.Sprintf("redirect limit of %d exceeded", policy.MaxRedirects),
				Retryable: false,
				Cause:     ErrCauseRedirectLimitExceeded,
			}
		}
		if !policy.authorityAllowed(req.URL.Hostname()) {
			return &FetchError{
				Message:   fmt.Sprintf("redirect to disallowed authority %s", req.URL.Hostname()),
				Retryable: false,
				Cause:     ErrCauseRedirectLimitExceeded,
			}
		}
		return nil
	}
}
