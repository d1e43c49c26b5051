// Package urlkey normalizes origin URLs the same way everywhere a cache
// key or a Wayback archive URL is derived from one, so the proxy, the
// crawler, and the cache store can never disagree about what "the same
// URL" means.
package urlkey

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
)

// Normalize lowercases scheme and host, strips default ports, and leaves
// path, query, fragment, and trailing-slash-or-not untouched. It is
// idempotent: Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	host = stripDefaultPort(host, u.Scheme)
	u.Host = host
	return u.String(), nil
}

func stripDefaultPort(host, scheme string) string {
	i := strings.LastIndex(host, ":")
	if i < 0 {
		return host
	}
	port := host[i+1:]
	switch {
	case scheme == "http" && port == "80":
		return host[:i]
	case scheme == "https" && port == "443":
		return host[:i]
	default:
		return host
	}
}

// Hash returns the first 16 hex characters of sha256(normalizedURL), the
// hashing input for a CacheKey.
func Hash(normalizedURL string) string {
	sum := sha256.Sum256([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])[:16]
}

// Key builds the "tier:hash" cache key for a normalized URL.
func Key(tier model.Tier, normalizedURL string) string {
	return string(tier) + ":" + Hash(normalizedURL)
}

// RegistrableDomain returns a naive last-two-labels approximation of the
// registrable domain for rawURL, used to key view counts. This
// misclassifies domains like "example.co.uk" (yields "co.uk"); spec.md
// calls this out as a known, accepted limitation rather than pulling in
// a public-suffix-list dependency for a counting feature.
func RegistrableDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host, nil
	}
	return strings.Join(labels[len(labels)-2:], "."), nil
}
