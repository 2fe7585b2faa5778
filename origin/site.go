// Package origin classifies how a request's referrer relates to its target,
// producing the value of the Sec-Fetch-Site header.
package origin

import (
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/firasghr/uaemulate/logger"
	"github.com/firasghr/uaemulate/protocol"
)

// Site is a Sec-Fetch-Site value.
type Site string

// Sec-Fetch-Site values.
const (
	None       Site = "none"
	SameOrigin Site = "same-origin"
	SameSite   Site = "same-site"
	CrossSite  Site = "cross-site"
)

// Comparator computes Sec-Fetch-Site.  The zero value is ready to use.
type Comparator struct {
	// Log receives debug diagnostics for referrers that cannot be used.
	Log *logger.Logger
}

// Compute classifies referer against the target.  Empty arguments stand for
// absent values.  Failures never surface: anything that cannot be compared
// yields None or CrossSite.
func (c Comparator) Compute(referer, method string, target protocol.Protocol, authority protocol.Authority) Site {
	if referer == "" {
		return None
	}
	u, err := url.Parse(referer)
	if err != nil || !u.IsAbs() || u.Host == "" {
		c.Log.Debugf("sec-fetch-site: referer %q is not an absolute URI: %v", referer, err)
		return None
	}
	refProto, ok := protocol.Infer(u.Scheme, method)
	if !ok {
		c.Log.Debugf("sec-fetch-site: no protocol for referer scheme %q", u.Scheme)
		return None
	}
	refAuth, err := protocol.ParseAuthority(u.Host, refProto)
	if err != nil {
		c.Log.Debugf("sec-fetch-site: referer authority: %v", err)
		return None
	}

	if refProto != target {
		return CrossSite
	}
	if refAuth == authority {
		return SameOrigin
	}
	if SameRegistrableDomain(refAuth.Host, authority.Host) {
		return SameSite
	}
	return CrossSite
}

// SameRegistrableDomain reports whether a and b belong to the same site.
// Names are compared by their public-suffix-aware registrable domain (eTLD+1);
// IP literals must match exactly; an IP never matches a name.
func SameRegistrableDomain(a, b string) bool {
	a = strings.TrimSuffix(strings.ToLower(a), ".")
	b = strings.TrimSuffix(strings.ToLower(b), ".")
	if a == "" || b == "" {
		return false
	}

	addrA, errA := netip.ParseAddr(a)
	addrB, errB := netip.ParseAddr(b)
	switch {
	case errA == nil && errB == nil:
		return addrA.Unmap() == addrB.Unmap()
	case errA == nil || errB == nil:
		return false
	}

	siteA, errA := publicsuffix.EffectiveTLDPlusOne(a)
	siteB, errB := publicsuffix.EffectiveTLDPlusOne(b)
	if errA != nil || errB != nil {
		// Hosts that are themselves a public suffix (or single labels such
		// as "localhost") have no registrable domain; only identity counts.
		return a == b
	}
	return siteA == siteB
}
