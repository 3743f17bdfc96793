package fetcher

import (
	"crypto/tls"
	"crypto/x509"
	"time"
)

// TLSVerificationMode controls how aggressively the transport validates
// server certificates.
type TLSVerificationMode int

const (
	// TLSVerifyFull validates the certificate chain and hostname, the
	// default net/http behavior.
	TLSVerifyFull TLSVerificationMode = iota
	// TLSVerifyCertificate validates the chain against TrustedCAs but
	// skips hostname verification.
	TLSVerifyCertificate
	// TLSVerifyNone disables certificate validation entirely. Only
	// meant for crawling internal/self-signed targets under operator
	// control; never the default.
	TLSVerifyNone
)

// TLSPolicy configures certificate validation for the fetcher's
// transport.
type TLSPolicy struct {
	VerificationMode TLSVerificationMode
	TrustedCAs       *x509.CertPool
}

// clientConfig builds the *tls.Config implied by the policy.
func (p TLSPolicy) clientConfig() *tls.Config {
	cfg := &tls.Config{RootCAs: p.TrustedCAs}
	switch p.VerificationMode {
	case TLSVerifyNone:
		cfg.InsecureSkipVerify = true
	case TLSVerifyCertificate:
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = verifyChainOnly(p.TrustedCAs)
	}
	return cfg
}

// verifyChainOnly validates the presented chain against roots without
// checking that it matches the dialed hostname (TLSVerifyCertificate
// mode — trust the cert, not the name).
func verifyChainOnly(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return &FetchError{Message: "no certificate presented", Cause: ErrCauseTlsError}
		}
		leaf, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return &FetchError{Message: "failed to parse server certificate: " + err.Error(), Cause: ErrCauseTlsError}
		}
		intermediates := x509.NewCertPool()
		for _, raw := range rawCerts[1:] {
			if cert, err := x509.ParseCertificate(raw); err == nil {
				intermediates.AddCert(cert)
			}
		}
		_, err = leaf.Verify(x509.VerifyOptions{Roots: roots, Intermediates: intermediates})
		if err != nil {
			return &FetchError{Message: "certificate chain verification failed: " + err.Error(), Cause: ErrCauseTlsError}
		}
		return nil
	}
}

// ProxyPolicy configures an upstream HTTP(S) proxy. Zero value means no
// proxy.
type ProxyPolicy struct {
	Enabled  bool
	Scheme   string
	Host     string
	Port     int
	Username string
	Password string
}

// RedirectPolicy bounds how many 3xx hops the client follows and which
// authorities a redirect is allowed to land on.
type RedirectPolicy struct {
	MaxRedirects int

	// AuthorityAllowed reports whether a redirect may change the
	// request's authority to host. Nil means any authority is allowed.
	AuthorityAllowed func(host string) bool
}

func (p RedirectPolicy) authorityAllowed(host string) bool {
	if p.AuthorityAllowed == nil {
		return true
	}
	return p.AuthorityAllowed(host)
}

// Timeouts bounds connect, idle, and total request duration.
type Timeouts struct {
	Connect      time.Duration
	SocketIdle   time.Duration
	RequestTotal time.Duration
}

// DefaultTimeouts matches the teacher's implicit zero-value http.Client
// behavior with an added sane request ceiling.
var DefaultTimeouts = Timeouts{
	Connect:      10 * time.Second,
	SocketIdle:   30 * time.Second,
	RequestTotal: 60 * time.Second,
}

// Options bundles every policy the fetcher's transport and client honor.
// Decoupled from internal/config.Config so this package does not need to
// know about the config file's shape; the CLI wiring layer translates
// config into an Options value.
type Options struct {
	Redirect             RedirectPolicy
	TLS                  TLSPolicy
	Proxy                ProxyPolicy
	Timeouts             Timeouts
	CompressionEnabled   bool
	HeadPreflightEnabled bool
	MaxResponseSizeBytes int64
}

// DefaultOptions follows at most 3 redirect hops, uses no proxy and
// full TLS verification, plus a conservative size cap.
var DefaultOptions = Options{
	Redirect:             RedirectPolicy{MaxRedirects: 3},
	TLS:                  TLSPolicy{VerificationMode: TLSVerifyFull},
	Timeouts:             DefaultTimeouts,
	CompressionEnabled:   true,
	MaxResponseSizeBytes: 20 * 1024 * 1024,
}
