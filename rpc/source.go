package rpc

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// maxForwardedForAddrs caps the X-Forwarded-For chain a trusted proxy may
// present. Longer chains fall back to the proxy address.
const maxForwardedForAddrs = 16

// ParseTrustedProxies accepts bare IP addresses and CIDR prefixes.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		if strings.Contains(trimmed, "/") {
			prefix, err := netip.ParsePrefix(trimmed)
			if err != nil {
				return nil, fmt.Errorf("rpc: trusted proxy %q: %w", entry, err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(trimmed)
		if err != nil {
			return nil, fmt.Errorf("rpc: trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// clientSource identifies the caller for rate limiting and logs. Forwarding
// headers are only honoured when the peer is a trusted proxy; the client is
// then the nearest untrusted hop in X-Forwarded-For.
func (s *Server) clientSource(r *http.Request) string {
	remote, ok := parseHost(r.RemoteAddr)
	if !ok {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !s.trustsProxy(remote) {
		return remote.String()
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if strings.TrimSpace(forwarded) == "" {
		return remote.String()
	}
	hops := strings.Split(forwarded, ",")
	if len(hops) > maxForwardedForAddrs {
		return remote.String()
	}
	client := remote
	for i := len(hops) - 1; i >= 0; i-- {
		hop, ok := parseHost(hops[i])
		if !ok {
			continue
		}
		client = hop
		if !s.trustsProxy(hop) {
			break
		}
	}
	return client.String()
}

func (s *Server) trustsProxy(addr netip.Addr) bool {
	if s.trustProxyHeaders {
		return true
	}
	for _, prefix := range s.trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// parseHost extracts the IP from "ip", "ip:port" or "[ipv6]:port".
func parseHost(raw string) (netip.Addr, bool) {
	trimmed := strings.TrimSpace(raw)
	if host, _, err := net.SplitHostPort(trimmed); err == nil {
		trimmed = host
	}
	addr, err := netip.ParseAddr(strings.Trim(trimmed, "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
