package fingerprint

import (
	"fmt"
	"net/http"
	"strings"
)

// RequestInitiator is the semantic purpose of a request.
type RequestInitiator int

// Request initiators.
const (
	Navigate RequestInitiator = iota
	XHR
	Fetch
	Form
	WS
)

func (r RequestInitiator) String() string {
	switch r {
	case Navigate:
		return "navigate"
	case XHR:
		return "xhr"
	case Fetch:
		return "fetch"
	case Form:
		return "form"
	case WS:
		return "ws"
	}
	return fmt.Sprintf("initiator(%d)", int(r))
}

// ParseInitiator parses the lower-case name of an initiator ("navigate",
// "xhr", "fetch", "form", "ws"); case is ignored.
func ParseInitiator(s string) (RequestInitiator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "navigate":
		return Navigate, nil
	case "xhr":
		return XHR, nil
	case "fetch":
		return Fetch, nil
	case "form":
		return Form, nil
	case "ws", "websocket":
		return WS, nil
	}
	return Navigate, fmt.Errorf("fingerprint: unknown request initiator %q", s)
}

// Classify picks the initiator of a request.  An explicit hint always wins;
// otherwise the method and a few well-known headers decide.
func Classify(hint *RequestInitiator, method string, version HTTPVersion, h http.Header) RequestInitiator {
	if hint != nil {
		return *hint
	}
	xrw := headerContainsFold(h, "X-Requested-With", "XmlHttpRequest")
	switch method {
	case http.MethodPost:
		switch {
		case xrw:
			return XHR
		case headerContainsFold(h, "Content-Type", "form-"):
			return Form
		}
		return Fetch
	case http.MethodGet, "":
		switch {
		case xrw:
			return XHR
		case headerContainsFold(h, "Sec-WebSocket-Version", "13"):
			return WS
		}
		return Navigate
	}
	switch {
	case xrw:
		return XHR
	case version == HTTP2 && method == http.MethodConnect && headerContainsFold(h, "Sec-WebSocket-Version", "13"):
		return WS
	}
	return Fetch
}

// ResolveTemplate picks the template for init from set, following the
// fallback chains Form→Navigate, XHR→Fetch→Navigate and Fetch→XHR→Navigate.
// Websocket requests have no fallback; ok is false when set.WS is nil.
func ResolveTemplate(set *HeaderTemplateSet, init RequestInitiator) (TemplateHeaderList, bool) {
	if set == nil {
		return nil, false
	}
	switch init {
	case Form:
		if set.Form != nil {
			return set.Form, true
		}
	case XHR:
		if set.XHR != nil {
			return set.XHR, true
		}
		if set.Fetch != nil {
			return set.Fetch, true
		}
	case Fetch:
		if set.Fetch != nil {
			return set.Fetch, true
		}
		if set.XHR != nil {
			return set.XHR, true
		}
	case WS:
		return set.WS, set.WS != nil
	}
	return set.Navigate, true
}

// headerContainsFold reports whether any value of the header name (matched
// case-insensitively, including non-canonical map keys) contains sub,
// ignoring case.
func headerContainsFold(h http.Header, name, sub string) bool {
	for k, vals := range h {
		if !strings.EqualFold(k, name) {
			continue
		}
		for _, v := range vals {
			if indexFold(v, sub) >= 0 {
				return true
			}
		}
	}
	return false
}

// indexFold is an ASCII case-insensitive strings.Index.
func indexFold(s, sub string) int {
	n := len(sub)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], sub) {
			return i
		}
	}
	return -1
}
