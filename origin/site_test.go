package origin_test

import (
	"net/http"
	"testing"

	"github.com/firasghr/uaemulate/origin"
	"github.com/firasghr/uaemulate/protocol"
)

func TestComparator_Compute(t *testing.T) {
	target := protocol.Authority{Host: "www.example.com", Port: 443}

	cases := []struct {
		name      string
		referer   string
		method    string
		proto     protocol.Protocol
		authority protocol.Authority
		want      origin.Site
	}{
		{"no referer", "", http.MethodGet, protocol.HTTPS, target, origin.None},
		{"relative referer", "/search?q=1", http.MethodGet, protocol.HTTPS, target, origin.None},
		{"garbage referer", "://::nope", http.MethodGet, protocol.HTTPS, target, origin.None},
		{"custom scheme without port", "gopher://www.example.com/", http.MethodGet, protocol.HTTPS, target, origin.None},
		{"same origin", "https://www.example.com/a", http.MethodGet, protocol.HTTPS, target, origin.SameOrigin},
		{"same origin explicit default port", "https://WWW.example.com:443/", http.MethodGet, protocol.HTTPS, target, origin.SameOrigin},
		{"same site other subdomain", "https://shop.example.com/", http.MethodGet, protocol.HTTPS, target, origin.SameSite},
		{"same site other port", "https://www.example.com:8443/", http.MethodGet, protocol.HTTPS, target, origin.SameSite},
		{"different protocol same host", "http://www.example.com/", http.MethodGet, protocol.HTTPS, target, origin.CrossSite},
		{"different site", "https://www.example.org/", http.MethodGet, protocol.HTTPS, target, origin.CrossSite},
		{"public suffix boundary", "https://a.co.uk/", http.MethodGet, protocol.HTTPS, protocol.Authority{Host: "b.co.uk", Port: 443}, origin.CrossSite},
		{"connect upgrades referer to wss", "https://www.example.com/", http.MethodConnect, protocol.WSS, target, origin.SameOrigin},
		{"absent target", "https://www.example.com/", http.MethodGet, "", protocol.Authority{}, origin.CrossSite},
	}

	var c origin.Comparator
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Compute(tc.referer, tc.method, tc.proto, tc.authority)
			if got != tc.want {
				t.Errorf("Compute(%q): got %q, want %q", tc.referer, got, tc.want)
			}
		})
	}
}

func TestSameRegistrableDomain(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"www.example.com", "api.example.com", true},
		{"example.com", "EXAMPLE.com.", true},
		{"a.example.co.uk", "b.example.co.uk", true},
		{"example.co.uk", "other.co.uk", false},
		{"example.com", "example.org", false},
		{"127.0.0.1", "127.0.0.1", true},
		{"127.0.0.1", "127.0.0.2", false},
		{"::1", "::1", true},
		{"127.0.0.1", "localhost", false},
		{"localhost", "localhost", true},
		{"", "example.com", false},
	}
	for _, c := range cases {
		if got := origin.SameRegistrableDomain(c.a, c.b); got != c.want {
			t.Errorf("SameRegistrableDomain(%q, %q): got %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
