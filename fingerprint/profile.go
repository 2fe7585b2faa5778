// Package fingerprint holds the user-agent profiles used for HTTP emulation.
//
// Anti-bot systems correlate the header shape of a request (which headers,
// in which order and casing) with the HTTP/2 connection preface and the TLS
// ClientHello.  A Profile bundles everything needed to reproduce one real
// browser at the HTTP level:
//
//   - per HTTP version, an ordered header template for each request
//     initiator (navigation, fetch, XHR, form submit, websocket);
//   - per HTTP version, connection settings (HTTP/1 title casing, HTTP/2
//     pseudo-header order and early frames);
//   - the name of the uTLS ClientHello the outbound transport should use;
//   - optional navigator/screen data for JavaScript runtimes.
//
// Profiles are immutable once loaded and are shared by every request that
// selects them, so no locking is needed to read one.
package fingerprint

import (
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/net/http2"
)

// CustomHeaderMarker is the template sentinel that separates headers emitted
// before the caller's own headers from those emitted after them.  It is never
// sent on the wire.
const CustomHeaderMarker = "X-Custom-Header-Marker"

// HTTPVersion is the protocol version of a request.
type HTTPVersion int

// HTTP versions.  VersionUnknown covers anything net/http cannot express.
const (
	VersionUnknown HTTPVersion = iota
	HTTP09
	HTTP10
	HTTP11
	HTTP2
	HTTP3
)

// VersionOf maps the ProtoMajor/ProtoMinor pair of a request.
func VersionOf(major, minor int) HTTPVersion {
	switch {
	case major == 0 && minor == 9:
		return HTTP09
	case major == 1 && minor == 0:
		return HTTP10
	case major == 1 && minor == 1:
		return HTTP11
	case major == 2:
		return HTTP2
	case major == 3:
		return HTTP3
	}
	return VersionUnknown
}

// IsHTTP1 reports whether v is HTTP/0.9, 1.0 or 1.1.
func (v HTTPVersion) IsHTTP1() bool {
	return v == HTTP09 || v == HTTP10 || v == HTTP11
}

func (v HTTPVersion) String() string {
	switch v {
	case HTTP09:
		return "HTTP/0.9"
	case HTTP10:
		return "HTTP/1.0"
	case HTTP11:
		return "HTTP/1.1"
	case HTTP2:
		return "HTTP/2"
	case HTTP3:
		return "HTTP/3"
	}
	return "HTTP/?"
}

// TemplateHeader is one header of a template, with the exact casing the
// browser uses on the wire.
type TemplateHeader struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// IsMarker reports whether h is the CustomHeaderMarker sentinel.
func (h TemplateHeader) IsMarker() bool {
	return strings.EqualFold(h.Name, CustomHeaderMarker)
}

// TemplateHeaderList is an ordered header template.
type TemplateHeaderList []TemplateHeader

// Names returns the header names of l in order.
func (l TemplateHeaderList) Names() []string {
	out := make([]string, len(l))
	for i, h := range l {
		out[i] = h.Name
	}
	return out
}

// HeaderTemplateSet holds one template per request initiator.  Navigate is
// mandatory (though it may be empty); a nil list means the profile has no
// template for that initiator.
type HeaderTemplateSet struct {
	Navigate TemplateHeaderList `json:"navigate" yaml:"navigate"`
	Fetch    TemplateHeaderList `json:"fetch" yaml:"fetch"`
	XHR      TemplateHeaderList `json:"xhr" yaml:"xhr"`
	Form     TemplateHeaderList `json:"form" yaml:"form"`
	WS       TemplateHeaderList `json:"ws" yaml:"ws"`
}

// HTTP1Settings are the HTTP/1.x connection settings of a profile.
type HTTP1Settings struct {
	TitleCaseHeaders bool `json:"title_case_headers" yaml:"title_case_headers"`
}

// PseudoHeader is an HTTP/2 pseudo-header name.
type PseudoHeader string

// HTTP/2 request pseudo-headers.
const (
	PseudoMethod    PseudoHeader = ":method"
	PseudoScheme    PseudoHeader = ":scheme"
	PseudoAuthority PseudoHeader = ":authority"
	PseudoPath      PseudoHeader = ":path"
	PseudoProtocol  PseudoHeader = ":protocol"
)

func (p PseudoHeader) valid() bool {
	switch p {
	case PseudoMethod, PseudoScheme, PseudoAuthority, PseudoPath, PseudoProtocol:
		return true
	}
	return false
}

// WindowUpdate is a WINDOW_UPDATE frame sent as part of the preface.
type WindowUpdate struct {
	StreamID  uint32 `json:"stream_id" yaml:"stream_id"`
	Increment uint32 `json:"increment" yaml:"increment"`
}

// PriorityFrame is a PRIORITY frame sent as part of the preface.
type PriorityFrame struct {
	StreamID uint32              `json:"stream_id" yaml:"stream_id"`
	Param    http2.PriorityParam `json:"param" yaml:"param"`
}

// EarlyFrame is one frame a browser sends right after the HTTP/2 client
// preface.  Exactly one of the fields is set.
type EarlyFrame struct {
	Settings     []http2.Setting `json:"settings,omitempty" yaml:"settings,omitempty"`
	WindowUpdate *WindowUpdate   `json:"window_update,omitempty" yaml:"window_update,omitempty"`
	Priority     *PriorityFrame  `json:"priority,omitempty" yaml:"priority,omitempty"`
}

func (f EarlyFrame) validate() error {
	n := 0
	if f.Settings != nil {
		n++
		for _, s := range f.Settings {
			if err := s.Valid(); err != nil {
				return fmt.Errorf("settings frame: %w", err)
			}
		}
	}
	if f.WindowUpdate != nil {
		n++
	}
	if f.Priority != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("early frame must set exactly one of settings, window_update, priority (got %d)", n)
	}
	return nil
}

// HTTP2Settings are the HTTP/2 connection settings of a profile.  Both
// fields are optional.
type HTTP2Settings struct {
	PseudoHeaderOrder []PseudoHeader `json:"pseudo_header_order,omitempty" yaml:"pseudo_header_order,omitempty"`
	EarlyFrames       []EarlyFrame   `json:"early_frames,omitempty" yaml:"early_frames,omitempty"`
}

// Setting returns the value of the first SETTINGS entry with the given id
// across the early frames.
func (s HTTP2Settings) Setting(id http2.SettingID) (uint32, bool) {
	for _, f := range s.EarlyFrames {
		for _, st := range f.Settings {
			if st.ID == id {
				return st.Val, true
			}
		}
	}
	return 0, false
}

// HTTP1Profile is the HTTP/1.x part of a profile.
type HTTP1Profile struct {
	Headers  HeaderTemplateSet `json:"headers" yaml:"headers"`
	Settings HTTP1Settings     `json:"settings" yaml:"settings"`
}

// HTTP2Profile is the HTTP/2 part of a profile.
type HTTP2Profile struct {
	Headers  HeaderTemplateSet `json:"headers" yaml:"headers"`
	Settings HTTP2Settings     `json:"settings" yaml:"settings"`
}

// HTTPProfile holds one sub-profile per HTTP major version.
type HTTPProfile struct {
	H1 HTTP1Profile `json:"h1" yaml:"h1"`
	H2 HTTP2Profile `json:"h2" yaml:"h2"`
}

// Templates returns the template set for v, or nil when v cannot be
// emulated.
func (p *HTTPProfile) Templates(v HTTPVersion) *HeaderTemplateSet {
	switch {
	case v.IsHTTP1():
		return &p.H1.Headers
	case v == HTTP2:
		return &p.H2.Headers
	}
	return nil
}

// TLSProfile names the uTLS ClientHello the outbound transport should use
// (e.g. "chrome_120", "firefox_auto").  The engine itself never touches TLS.
type TLSProfile struct {
	ClientHello string `json:"client_hello" yaml:"client_hello"`
}

// Profile is one emulated user agent.
type Profile struct {
	Name      string      `json:"name" yaml:"name"`
	UAKind    UAKind      `json:"ua_kind" yaml:"ua_kind"`
	UAVersion int         `json:"ua_version,omitempty" yaml:"ua_version,omitempty"`
	Platform  Platform    `json:"platform,omitempty" yaml:"platform,omitempty"`
	HTTP      HTTPProfile `json:"http" yaml:"http"`
	TLS       TLSProfile  `json:"tls" yaml:"tls"`
	JS        *JSProfile  `json:"js,omitempty" yaml:"js,omitempty"`
}

// String identifies the profile in logs.
func (p *Profile) String() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Platform != "" {
		return fmt.Sprintf("%s/%d (%s)", p.UAKind, p.UAVersion, p.Platform)
	}
	return fmt.Sprintf("%s/%d", p.UAKind, p.UAVersion)
}

// Validate checks the structural rules a profile must satisfy before it is
// shared: a known UA kind, valid template header names with at most one
// marker per list, and well-formed HTTP/2 settings.
func (p *Profile) Validate() error {
	if !p.UAKind.valid() {
		return fmt.Errorf("fingerprint: profile %s: unknown ua_kind %q", p, p.UAKind)
	}
	if p.Platform != "" && !p.Platform.valid() {
		return fmt.Errorf("fingerprint: profile %s: unknown platform %q", p, p.Platform)
	}
	for _, set := range []struct {
		version string
		set     *HeaderTemplateSet
	}{{"h1", &p.HTTP.H1.Headers}, {"h2", &p.HTTP.H2.Headers}} {
		for init, list := range set.set.byInitiator() {
			if err := validateList(list); err != nil {
				return fmt.Errorf("fingerprint: profile %s: %s %s headers: %w", p, set.version, init, err)
			}
		}
	}
	seen := make(map[PseudoHeader]bool)
	for _, ph := range p.HTTP.H2.Settings.PseudoHeaderOrder {
		if !ph.valid() {
			return fmt.Errorf("fingerprint: profile %s: invalid pseudo-header %q", p, ph)
		}
		if seen[ph] {
			return fmt.Errorf("fingerprint: profile %s: duplicate pseudo-header %q", p, ph)
		}
		seen[ph] = true
	}
	for i, f := range p.HTTP.H2.Settings.EarlyFrames {
		if err := f.validate(); err != nil {
			return fmt.Errorf("fingerprint: profile %s: early frame %d: %w", p, i, err)
		}
	}
	return nil
}

func (s *HeaderTemplateSet) byInitiator() map[RequestInitiator]TemplateHeaderList {
	return map[RequestInitiator]TemplateHeaderList{
		Navigate: s.Navigate,
		Fetch:    s.Fetch,
		XHR:      s.XHR,
		Form:     s.Form,
		WS:       s.WS,
	}
}

func validateList(l TemplateHeaderList) error {
	markers := 0
	for _, h := range l {
		if !httpguts.ValidHeaderFieldName(h.Name) {
			return fmt.Errorf("invalid header name %q", h.Name)
		}
		if !httpguts.ValidHeaderFieldValue(h.Value) {
			return fmt.Errorf("invalid value for header %q", h.Name)
		}
		if h.IsMarker() {
			markers++
		}
	}
	if markers > 1 {
		return fmt.Errorf("%d custom header markers, at most one allowed", markers)
	}
	return nil
}
