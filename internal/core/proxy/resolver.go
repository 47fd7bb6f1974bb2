package proxy

import (
	"net"
	"strings"
)

// DefaultHosts is the set of hostnames served by the platform itself.
// Requests for these bypass custom domain resolution.
// Pure type - no I/O.
type DefaultHosts map[string]struct{}

// NewDefaultHosts returns the loopback names plus the given platform hosts.
// Entries may carry a scheme or port; only the hostname is kept.
func NewDefaultHosts(platformHosts ...string) DefaultHosts {
	h := DefaultHosts{
		"localhost": {},
		"127.0.0.1": {},
		"::1":       {},
	}
	for _, raw := range platformHosts {
		if host := HostOnly(raw); host != "" {
			h[host] = struct{}{}
		}
	}
	return h
}

// Contains reports whether host (with or without port) is a default host.
func (h DefaultHosts) Contains(host string) bool {
	_, ok := h[HostOnly(host)]
	return ok
}

// HostOnly lowercases host and strips any scheme, path, port and trailing dot.
// "Shop.Example.com:8080" → "shop.example.com"
// "[::1]:80" → "::1"
func HostOnly(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.Index(host, "://"); i != -1 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i != -1 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return strings.TrimRight(host, ".")
}
