package client

import (
	"context"
	"net/http"
	"strings"
)

// HeaderEntry is one header with the exact name casing it is sent with.
type HeaderEntry struct {
	Name  string
	Value string
}

// OrderedHeader is a companion to http.Header that preserves the exact
// capitalisation and insertion order of HTTP headers.
//
// Unlike http.Header (which is a map and therefore unordered), OrderedHeader
// stores entries in a slice so iteration always returns them in the order
// they were added.  Fingerprinting servers inspect both the capitalisation
// and the ordering of headers such as "accept-language", "sec-ch-ua-*" and
// "user-agent".
//
// OrderedHeader is NOT safe for concurrent use.  The emulation layer builds
// one per request before the request is handed to the transport.
type OrderedHeader struct {
	entries []HeaderEntry
}

// Add appends key/value to the header list, preserving the exact casing of
// key.  Multiple calls with the same key produce multiple entries.
func (h *OrderedHeader) Add(key, value string) {
	h.entries = append(h.entries, HeaderEntry{Name: key, Value: value})
}

// Set replaces the first entry whose key matches key (case-insensitively) with
// the new value and removes any subsequent duplicates.  If no entry with that
// key exists, Set behaves like Add.
//
// The casing of the surviving entry is updated to key, so callers can use Set
// to change capitalisation as well as value.
func (h *OrderedHeader) Set(key, value string) {
	replaced := false
	out := h.entries[:0]
	for _, e := range h.entries {
		if strings.EqualFold(e.Name, key) {
			if !replaced {
				out = append(out, HeaderEntry{Name: key, Value: value})
				replaced = true
			}
			// Skip duplicates.
		} else {
			out = append(out, e)
		}
	}
	if !replaced {
		out = append(out, HeaderEntry{Name: key, Value: value})
	}
	h.entries = out
}

// Del removes all entries whose key matches key (case-insensitively).
func (h *OrderedHeader) Del(key string) {
	out := h.entries[:0]
	for _, e := range h.entries {
		if !strings.EqualFold(e.Name, key) {
			out = append(out, e)
		}
	}
	h.entries = out
}

// Get returns the value of the first entry whose key matches key
// (case-insensitively), or an empty string if no such entry exists.
func (h *OrderedHeader) Get(key string) string {
	for _, e := range h.entries {
		if strings.EqualFold(e.Name, key) {
			return e.Value
		}
	}
	return ""
}

// Has reports whether an entry named key exists (case-insensitively).
func (h *OrderedHeader) Has(key string) bool {
	for _, e := range h.entries {
		if strings.EqualFold(e.Name, key) {
			return true
		}
	}
	return false
}

// Len returns the number of header entries (including duplicates).
func (h *OrderedHeader) Len() int { return len(h.entries) }

// Entries returns a copy of the entries in order.
func (h *OrderedHeader) Entries() []HeaderEntry {
	return append([]HeaderEntry(nil), h.entries...)
}

// Names returns the entry names in order.
func (h *OrderedHeader) Names() []string {
	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Name
	}
	return out
}

// Clone returns a shallow copy of the receiver.
func (h *OrderedHeader) Clone() *OrderedHeader {
	c := &OrderedHeader{entries: make([]HeaderEntry, len(h.entries))}
	copy(c.entries, h.entries)
	return c
}

// ApplyToRequest replaces req.Header with the entries of h.
//
// http.Header is keyed by canonical names; ApplyToRequest writes the raw
// names into the map instead so the original capitalisation survives.  The
// Transport of this package additionally honours the order (see
// WithOrderedHeader); net/http's own writer sorts keys.
func (h *OrderedHeader) ApplyToRequest(req *http.Request) {
	req.Header = h.ToHTTPHeader()
}

// ToHTTPHeader converts the OrderedHeader to a standard http.Header map.
// Insertion order is NOT preserved, but the exact key casing IS preserved.
func (h *OrderedHeader) ToHTTPHeader() http.Header {
	out := make(http.Header, len(h.entries))
	for _, e := range h.entries {
		out[e.Name] = append(out[e.Name], e.Value)
	}
	return out
}

// orderKeys returns the lower-cased entry names in order, each name once.
// This is the form fhttp expects under HeaderOrderKey.
func (h *OrderedHeader) orderKeys() []string {
	seen := make(map[string]bool, len(h.entries))
	out := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		k := strings.ToLower(e.Name)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

type orderedHeaderKey struct{}

// WithOrderedHeader attaches the exact header order to use for a request.
// Transport writes req.Header in this order over HTTP/1 and HTTP/2; entries
// no longer present in req.Header are skipped and headers added to
// req.Header afterwards follow the ordered ones.
func WithOrderedHeader(ctx context.Context, h *OrderedHeader) context.Context {
	return context.WithValue(ctx, orderedHeaderKey{}, h)
}

// OrderedHeaderFromContext returns the header attached by WithOrderedHeader.
func OrderedHeaderFromContext(ctx context.Context) (*OrderedHeader, bool) {
	h, ok := ctx.Value(orderedHeaderKey{}).(*OrderedHeader)
	return h, ok && h != nil
}
