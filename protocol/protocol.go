// Package protocol models the application protocol and authority of a
// request target, and infers the protocol of a URI from its scheme and the
// request method.
package protocol

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
)

// Protocol is a lower-case URI scheme such as "https" or "wss".
type Protocol string

// Well-known protocols.
const (
	HTTP  Protocol = "http"
	HTTPS Protocol = "https"
	WS    Protocol = "ws"
	WSS   Protocol = "wss"
)

// Parse validates scheme (RFC 3986 syntax) and returns it as a Protocol.
func Parse(scheme string) (Protocol, error) {
	if scheme == "" {
		return "", fmt.Errorf("protocol: empty scheme")
	}
	for i, c := range scheme {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return "", fmt.Errorf("protocol: invalid scheme %q", scheme)
		}
	}
	return Protocol(strings.ToLower(scheme)), nil
}

// Infer derives the protocol of a request from its URI scheme and method.
// A CONNECT over http(s) is an extended-CONNECT websocket bootstrap and
// therefore maps to ws(s).
func Infer(scheme, method string) (Protocol, bool) {
	p, err := Parse(scheme)
	if err != nil {
		return "", false
	}
	if method == http.MethodConnect {
		switch p {
		case HTTP:
			return WS, true
		case HTTPS:
			return WSS, true
		}
	}
	return p, true
}

// Secure reports whether the protocol runs over TLS.
func (p Protocol) Secure() bool {
	return p == HTTPS || p == WSS
}

// DefaultPort returns the well-known port of p, if it has one.
func (p Protocol) DefaultPort() (uint16, bool) {
	switch p {
	case HTTPS, WSS:
		return 443, true
	case HTTP, WS:
		return 80, true
	}
	return 0, false
}

// Authority is a host and port pair.  Host is lower-cased; IPv6 literals are
// stored without brackets.
type Authority struct {
	Host string
	Port uint16
}

// IsZero reports whether a is unset.
func (a Authority) IsZero() bool { return a.Host == "" && a.Port == 0 }

// String formats a as host:port.
func (a Authority) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// Addr returns the parsed IP address when Host is an IP literal.
func (a Authority) Addr() (netip.Addr, bool) {
	addr, err := netip.ParseAddr(a.Host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// ParseAuthority parses hostport (as found in a URL or Host header).  When
// no port is present the default port of p is used; it fails if neither is
// available.
func ParseAuthority(hostport string, p Protocol) (Authority, error) {
	if hostport == "" {
		return Authority{}, fmt.Errorf("protocol: empty authority")
	}
	host, portStr := splitHostPort(hostport)
	if host == "" {
		return Authority{}, fmt.Errorf("protocol: authority %q has no host", hostport)
	}
	a := Authority{Host: strings.ToLower(host)}
	if portStr != "" {
		n, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return Authority{}, fmt.Errorf("protocol: invalid port in %q: %w", hostport, err)
		}
		a.Port = uint16(n)
		return a, nil
	}
	port, ok := p.DefaultPort()
	if !ok {
		return Authority{}, fmt.Errorf("protocol: no port in %q and no default for %q", hostport, p)
	}
	a.Port = port
	return a, nil
}

// splitHostPort is net.SplitHostPort without the requirement that a port is
// present.
func splitHostPort(hostport string) (host, port string) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return "", ""
		}
		host = hostport[1:end]
		rest := hostport[end+1:]
		if strings.HasPrefix(rest, ":") {
			port = rest[1:]
		}
		return host, port
	}
	if i := strings.LastIndexByte(hostport, ':'); i >= 0 {
		// A bare IPv6 literal has more than one colon.
		if strings.IndexByte(hostport[:i], ':') >= 0 {
			return hostport, ""
		}
		return hostport[:i], hostport[i+1:]
	}
	return hostport, ""
}

// FromRequest derives the target protocol and authority of req.  Requests
// in origin form (no scheme in the URL) fall back to req.TLS and req.Host.
func FromRequest(req *http.Request) (Protocol, Authority, error) {
	scheme := req.URL.Scheme
	if scheme == "" {
		scheme = string(HTTP)
		if req.TLS != nil {
			scheme = string(HTTPS)
		}
	}
	p, ok := Infer(scheme, req.Method)
	if !ok {
		return "", Authority{}, fmt.Errorf("protocol: invalid scheme %q", scheme)
	}
	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	a, err := ParseAuthority(host, p)
	if err != nil {
		return p, Authority{}, err
	}
	return p, a, nil
}
