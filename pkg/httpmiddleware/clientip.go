package httpmiddleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/go-faster/errors"
)

// ParseTrustedProxies parses CIDR prefixes or bare addresses of reverse
// proxies whose forwarding headers may be believed.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, s := range entries {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, errors.Wrapf(err, "parse trusted proxy %q", s)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, errors.Wrapf(err, "parse trusted proxy %q", s)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// ClientIP returns a key function that identifies the client by its peer
// address. X-Forwarded-For is consulted only when the peer is one of the
// trusted proxies; the chain is walked from the right and the first hop that
// is not itself trusted is the client. With no trusted proxies forwarding
// headers are ignored.
func ClientIP(trusted []netip.Prefix) func(*http.Request) string {
	isTrusted := func(a netip.Addr) bool {
		for _, p := range trusted {
			if p.Contains(a) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) string {
		peer := remoteHost(r)
		addr, err := netip.ParseAddr(peer)
		if err != nil || len(trusted) == 0 || !isTrusted(addr.Unmap()) {
			return peer
		}

		hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				// Garbage in the chain; stop at the last hop we could verify.
				return addr.String()
			}
			hop = hop.Unmap()
			if !isTrusted(hop) {
				return hop.String()
			}
			addr = hop
		}
		return addr.String()
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
