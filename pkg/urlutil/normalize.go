package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/idna"
	"lukechampine.com/blake3"
)

// NormalizedURL is the value object the engine operates on once a raw
// string has been normalized: a stable string form plus its fingerprint.
type NormalizedURL struct {
	raw       url.URL
	authority string
	str       string
	fp        [16]byte
}

// URL returns the parsed, normalized net/url.URL.
func (n NormalizedURL) URL() url.URL { return n.raw }

// String returns the canonical normalized form.
func (n NormalizedURL) String() string { return n.str }

// Authority returns the scheme+host+port triple used for robots scoping
// and allowlist comparison.
func (n NormalizedURL) Authority() string { return n.authority }

// Fingerprint returns the stable 128-bit fingerprint of the normalized
// form, truncated from a BLAKE3 digest.
func (n NormalizedURL) Fingerprint() [16]byte { return n.fp }

// FingerprintHex returns Fingerprint as a lowercase hex string, convenient
// as a map/set key or log field.
func (n NormalizedURL) FingerprintHex() string {
	return fmt.Sprintf("%x", n.fp)
}

// Normalize parses raw and applies the normalization order: lowercase
// scheme/host, IDN to punycode, path dot-segment resolution and
// duplicate-slash collapse, trailing-dot-in-host removal, default port
// removal, fragment removal, and query canonicalization (empty-pair
// removal, value percent-decoding, first-seen key order preserved).
//
// Rejects inputs whose path segment count, query parameter count, or
// total length exceed limits, returning a *URLError with
// ErrCauseTooComplex.
func Normalize(raw string, limits Limits) (NormalizedURL, error) {
	if len(raw) > limits.MaxLength {
		return NormalizedURL{}, &URLError{Message: raw, Cause: ErrCauseTooComplex}
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return NormalizedURL{}, &URLError{Message: err.Error(), Cause: ErrCauseUnparseable}
	}

	scheme := lowerASCII(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return NormalizedURL{}, &URLError{Message: scheme, Cause: ErrCauseBadScheme}
	}

	host, err := normalizeHost(parsed.Hostname())
	if err != nil {
		return NormalizedURL{}, &URLError{Message: err.Error(), Cause: ErrCauseUnparseable}
	}

	authorityHost := host
	if port := parsed.Port(); port != "" && !isDefaultPort(scheme, port) {
		authorityHost = host + ":" + port
	}

	normalizedPath := normalizePath(parsed.EscapedPath())
	segments := pathSegments(normalizedPath)
	if len(segments) > limits.MaxSegments {
		return NormalizedURL{}, &URLError{Message: raw, Cause: ErrCauseTooComplex}
	}

	query, paramCount, err := normalizeQuery(parsed.RawQuery)
	if err != nil {
		return NormalizedURL{}, &URLError{Message: err.Error(), Cause: ErrCauseUnparseable}
	}
	if paramCount > limits.MaxParams {
		return NormalizedURL{}, &URLError{Message: raw, Cause: ErrCauseTooComplex}
	}

	out := url.URL{
		Scheme:   scheme,
		Host:     authorityHost,
		Path:     normalizedPath,
		RawQuery: query,
	}

	str := out.String()
	if len(str) > limits.MaxLength {
		return NormalizedURL{}, &URLError{Message: raw, Cause: ErrCauseTooComplex}
	}

	return NormalizedURL{
		raw:       out,
		authority: scheme + "://" + authorityHost,
		str:       str,
		fp:        fingerprint(str),
	}, nil
}

func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(lowerASCII(host), ".")
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		// Not every hostname seen in the wild round-trips through strict
		// IDNA lookup (e.g. already-ASCII hosts with underscores); fall
		// back to the lowercased form rather than rejecting the URL.
		return host, nil
	}
	return ascii, nil
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// normalizePath collapses duplicate slashes and resolves "." / ".."
// segments, the way path.Clean does, while keeping a leading slash and
// restoring a trailing slash path.Clean would otherwise strip.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	hadTrailingSlash := strings.HasSuffix(p, "/") && p != "/"
	cleaned := path.Clean(p)
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	if hadTrailingSlash && !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	return cleaned
}

func pathSegments(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// normalizeQuery removes empty k=v pairs, percent-decodes values, and
// preserves the first-seen order of keys and, within a key, the relative
// order of repeated values (see SPEC_FULL.md's Open Question decision).
func normalizeQuery(raw string) (string, int, error) {
	if raw == "" {
		return "", 0, nil
	}

	var pairs []string
	count := 0
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")

		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			return "", 0, err
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			return "", 0, err
		}

		if decodedKey == "" && decodedValue == "" {
			continue
		}

		count++
		pairs = append(pairs, url.QueryEscape(decodedKey)+"="+url.QueryEscape(decodedValue))
	}

	return strings.Join(pairs, "&"), count, nil
}

func fingerprint(normalized string) [16]byte {
	digest := blake3.Sum256([]byte(normalized))
	var fp [16]byte
	copy(fp[:], digest[:16])
	return fp
}
