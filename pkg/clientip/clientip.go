package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// DefaultHeaders are consulted in order when proxy headers are trusted.
var DefaultHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// Resolver finds the client address of a request.
type Resolver struct {
	// Headers are read in order; the first valid address wins. For
	// X-Forwarded-For that is the left-most entry. Nil means the peer
	// address only, which is the right choice without a trusted proxy.
	Headers []string
}

// Trusted returns a resolver that believes DefaultHeaders.
func Trusted() Resolver {
	return Resolver{Headers: DefaultHeaders}
}

// IP returns the normalized client address, or "" when none is valid.
func (res Resolver) IP(r *http.Request) string {
	for _, name := range res.Headers {
		for part := range strings.SplitSeq(r.Header.Get(name), ",") {
			if ip := parse(part); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return parse(host)
}

func parse(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.Unmap().WithZone("").String()
}
