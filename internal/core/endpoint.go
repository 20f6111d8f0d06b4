package core

import (
	"net"
	"net/url"
	"strings"
)

// NormalizeEndpoint turns a relay address into the host:port form handed to
// the transport. http and https URLs are reduced to host plus explicit or
// default port, with IPv6 hosts bracketed. Anything else is passed through
// with only surrounding space and trailing slashes removed.
func NormalizeEndpoint(raw string) string {
	s := strings.TrimRight(strings.TrimSpace(raw), "/")
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return s
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if strings.EqualFold(u.Scheme, "http") {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
