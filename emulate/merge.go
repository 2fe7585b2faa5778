package emulate

import (
	"net/http"
	"net/textproto"
	"sort"
	"strings"

	"github.com/firasghr/uaemulate/client"
	"github.com/firasghr/uaemulate/clienthint"
	"github.com/firasghr/uaemulate/fingerprint"
	"github.com/firasghr/uaemulate/logger"
	"github.com/firasghr/uaemulate/origin"
	"github.com/firasghr/uaemulate/protocol"
)

// Header classes of the merge, keyed by lower-case name.
var (
	// negotiableHeaders take the caller's value when present.
	negotiableHeaders = map[string]bool{
		"accept":                   true,
		"accept-language":          true,
		"sec-websocket-key":        true,
		"sec-websocket-extensions": true,
		"sec-websocket-protocol":   true,
	}
	// optInHeaders are only sent when the caller sent them.
	optInHeaders = map[string]bool{
		"referer":        true,
		"cookie":         true,
		"authorization":  true,
		"host":           true,
		"origin":         true,
		"content-length": true,
		"content-type":   true,
	}
)

// MergeContext is the per-request input of Merge.
type MergeContext struct {
	// Original holds the caller's headers.  Keys need not be canonical; the
	// raw key is kept for headers that are not in the template.
	Original http.Header
	// OriginalOrder is the caller's declared order for headers the template
	// does not cover.
	OriginalOrder []string

	PreserveUserAgent bool

	Method          string
	TargetProtocol  protocol.Protocol
	TargetAuthority protocol.Authority
	// Referer feeds Sec-Fetch-Site.  When empty, the Referer of Original
	// is used.
	Referer string

	RequestedHints []clienthint.Hint

	Log *logger.Logger
}

// Merge combines template with the caller's headers:
//
//	[template before the marker] ++ [caller leftovers] ++ [template after the marker]
//
// Template entries keep their casing.  Referer, Cookie, Authorization, Host,
// Origin, Content-Length and Content-Type are only sent when the caller sent
// them.  Sec-Fetch-* and client hints are dropped over insecure transports,
// and Sec-Fetch-Site is always computed from the referer and the target.
//
// Leftovers are emitted in OriginalOrder first, then sorted by canonical
// name, so Merge is deterministic.
func Merge(template fingerprint.TemplateHeaderList, mc MergeContext) *client.OrderedHeader {
	pool := newHeaderPool(mc.Original)
	allowed := mc.allowFilter(pool)

	var pre, post client.OrderedHeader
	out := &pre
	for _, th := range template {
		if th.IsMarker() {
			out = &post
			continue
		}
		lower := strings.ToLower(th.Name)
		switch {
		case negotiableHeaders[lower]:
			if v, ok := pool.take(th.Name); ok {
				out.Add(th.Name, v)
			} else {
				out.Add(th.Name, th.Value)
			}
		case optInHeaders[lower]:
			if v, ok := pool.take(th.Name); ok {
				out.Add(th.Name, v)
			}
		case lower == "user-agent":
			if v, ok := pool.take(th.Name); ok && mc.PreserveUserAgent {
				out.Add(th.Name, v)
			} else {
				out.Add(th.Name, th.Value)
			}
		default:
			if !allowed(th.Name) {
				continue
			}
			pool.take(th.Name)
			if lower == "sec-fetch-site" {
				out.Add(th.Name, string(mc.secFetchSite()))
			} else {
				out.Add(th.Name, th.Value)
			}
		}
	}

	for _, name := range mc.OriginalOrder {
		if _, hint := clienthint.Match(name); hint || !allowed(name) {
			continue
		}
		if v, ok := pool.take(name); ok {
			pre.Add(name, v)
		}
	}
	for _, e := range pool.rest() {
		if allowed(e.Name) {
			pre.Add(e.Name, e.Value)
		}
	}
	for _, e := range post.Entries() {
		pre.Add(e.Name, e.Value)
	}
	return &pre
}

// allowFilter returns the predicate deciding whether a header may be sent
// at all over the target transport.
func (mc *MergeContext) allowFilter(pool *headerPool) func(string) bool {
	secure := mc.TargetProtocol.Secure()
	return func(name string) bool {
		if hint, ok := clienthint.Match(name); ok {
			return secure && (hint.IsLowEntropy() ||
				clienthint.Contains(mc.RequestedHints, hint) ||
				pool.sentHint(hint))
		}
		return secure || !hasPrefixFold(name, "sec-fetch")
	}
}

func (mc *MergeContext) secFetchSite() origin.Site {
	referer := mc.Referer
	if referer == "" {
		referer = headerValue(mc.Original, "Referer")
	}
	cmp := origin.Comparator{Log: mc.Log}
	return cmp.Compute(referer, mc.Method, mc.TargetProtocol, mc.TargetAuthority)
}

// headerPool is a scratch copy of the caller's headers from which values
// are taken one at a time.
type headerPool struct {
	keys   []string // canonical, sorted
	raw    map[string]string
	values map[string][]string
	hints  map[clienthint.Hint]bool
}

func newHeaderPool(h http.Header) *headerPool {
	rawKeys := make([]string, 0, len(h))
	for k := range h {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	p := &headerPool{
		raw:    make(map[string]string, len(h)),
		values: make(map[string][]string, len(h)),
		hints:  make(map[clienthint.Hint]bool),
	}
	for _, k := range rawKeys {
		if len(h[k]) == 0 {
			continue
		}
		canon := textproto.CanonicalMIMEHeaderKey(k)
		if _, seen := p.raw[canon]; !seen {
			p.raw[canon] = k
			p.keys = append(p.keys, canon)
		}
		p.values[canon] = append(p.values[canon], h[k]...)
		if hint, ok := clienthint.Match(k); ok {
			p.hints[hint] = true
		}
	}
	sort.Strings(p.keys)
	return p
}

// take removes and returns the first remaining value of name.
func (p *headerPool) take(name string) (string, bool) {
	canon := textproto.CanonicalMIMEHeaderKey(name)
	vals := p.values[canon]
	if len(vals) == 0 {
		return "", false
	}
	p.values[canon] = vals[1:]
	return vals[0], true
}

// sentHint reports whether the caller sent a header of hint, consumed or
// not.
func (p *headerPool) sentHint(hint clienthint.Hint) bool {
	return p.hints[hint]
}

// rest returns every value not taken yet, under the caller's own key.
func (p *headerPool) rest() []client.HeaderEntry {
	var out []client.HeaderEntry
	for _, canon := range p.keys {
		for _, v := range p.values[canon] {
			out = append(out, client.HeaderEntry{Name: p.raw[canon], Value: v})
		}
	}
	return out
}

// headerValue is http.Header.Get that also matches non-canonical keys.
func headerValue(h http.Header, name string) string {
	if v := h.Get(name); v != "" {
		return v
	}
	for k, vals := range h {
		if len(vals) > 0 && strings.EqualFold(k, name) {
			return vals[0]
		}
	}
	return ""
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
