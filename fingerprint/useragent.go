package fingerprint

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// UAKind is a browser family.
type UAKind string

// Browser families.
const (
	Chromium UAKind = "chromium"
	Firefox  UAKind = "firefox"
	Safari   UAKind = "safari"
)

func (k UAKind) valid() bool {
	return k == Chromium || k == Firefox || k == Safari
}

// ParseUserAgentKind parses a browser family name, ignoring case.
func ParseUserAgentKind(s string) (UAKind, error) {
	k := UAKind(strings.ToLower(strings.TrimSpace(s)))
	if k == "chrome" {
		k = Chromium
	}
	if !k.valid() {
		return "", fmt.Errorf("fingerprint: unknown user agent kind %q", s)
	}
	return k, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *UAKind) UnmarshalText(b []byte) error {
	v, err := ParseUserAgentKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Platform is an operating system family.
type Platform string

// Platforms.
const (
	Windows Platform = "windows"
	MacOS   Platform = "macos"
	Linux   Platform = "linux"
	Android Platform = "android"
	IOS     Platform = "ios"
)

func (p Platform) valid() bool {
	switch p {
	case Windows, MacOS, Linux, Android, IOS:
		return true
	}
	return false
}

// ParsePlatform parses a platform name, ignoring case.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.valid() {
		return "", fmt.Errorf("fingerprint: unknown platform %q", s)
	}
	return p, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Platform) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = ""
		return nil
	}
	v, err := ParsePlatform(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Device is a coarse device class, used when no platform is recognised.
type Device string

// Device classes.
const (
	Desktop Device = "desktop"
	Mobile  Device = "mobile"
)

// HTTPAgent overrides which browser's HTTP behaviour to emulate.
type HTTPAgent string

// HTTP agents.  HTTPAgentPreserve disables header emulation.
const (
	HTTPAgentChromium HTTPAgent = "chromium"
	HTTPAgentFirefox  HTTPAgent = "firefox"
	HTTPAgentSafari   HTTPAgent = "safari"
	HTTPAgentPreserve HTTPAgent = "preserve"
)

// ParseHTTPAgent parses an HTTP agent name, ignoring case.
func ParseHTTPAgent(s string) (HTTPAgent, error) {
	a := HTTPAgent(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case HTTPAgentChromium, HTTPAgentFirefox, HTTPAgentSafari, HTTPAgentPreserve:
		return a, nil
	}
	return "", fmt.Errorf("fingerprint: unknown http agent %q", s)
}

// Kind maps the agent onto a browser family; Preserve has none.
func (a HTTPAgent) Kind() (UAKind, bool) {
	switch a {
	case HTTPAgentChromium:
		return Chromium, true
	case HTTPAgentFirefox:
		return Firefox, true
	case HTTPAgentSafari:
		return Safari, true
	}
	return "", false
}

// TLSAgent overrides which TLS stack to emulate.
type TLSAgent string

// TLS agents.  TLSAgentPreserve keeps the transport's own ClientHello.
const (
	TLSAgentBoringSSL TLSAgent = "boringssl"
	TLSAgentNSS       TLSAgent = "nss"
	TLSAgentRustls    TLSAgent = "rustls"
	TLSAgentPreserve  TLSAgent = "preserve"
)

// ParseTLSAgent parses a TLS agent name, ignoring case.
func ParseTLSAgent(s string) (TLSAgent, error) {
	a := TLSAgent(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case TLSAgentBoringSSL, TLSAgentNSS, TLSAgentRustls, TLSAgentPreserve:
		return a, nil
	}
	return "", fmt.Errorf("fingerprint: unknown tls agent %q", s)
}

// UserAgent is what could be learned from a User-Agent header, plus optional
// agent overrides supplied by the caller.
type UserAgent struct {
	Header    string
	Kind      UAKind
	Version   int
	Platform  Platform
	Device    Device
	HTTPAgent HTTPAgent
	TLSAgent  TLSAgent
}

// maxUALength bounds how much of a User-Agent header is inspected.  Real
// browsers stay well under 300 bytes.
const maxUALength = 512

// ParseUserAgent extracts the browser family, major version and platform
// from a User-Agent header.  It is tuned for popular browsers, not for
// completeness; unknown parts are left empty.
//
// Safari versions are encoded as major*100+minor (e.g. 17.2 → 1702).
func ParseUserAgent(header string) UserAgent {
	ua := UserAgent{Header: header}
	s := header
	if len(s) > maxUALength {
		s = s[:maxUALength]
	}

	var platform Platform
	if loc := indexFold(s, "Firefox"); loc >= 0 {
		ua.Kind, ua.Version = Firefox, slashVersion(s[loc:])
	} else if loc := indexFold(s, "Chrom"); loc >= 0 {
		ua.Kind, ua.Version = Chromium, slashVersion(s[loc:])
	} else if indexFold(s, "Safari") >= 0 {
		switch {
		case indexFold(s, "FxiOS") >= 0:
			loc := indexFold(s, "FxiOS")
			ua.Kind, ua.Version, platform = Firefox, slashVersion(s[loc:]), IOS
		case indexFold(s, "CriOS") >= 0:
			loc := indexFold(s, "CriOS")
			ua.Kind, ua.Version, platform = Chromium, slashVersion(s[loc:]), IOS
		case indexFold(s, "Opera") >= 0:
			loc := indexFold(s, "Opera")
			ua.Kind, ua.Version = Chromium, slashVersion(s[loc:])
		default:
			ua.Kind, ua.Version = Safari, safariVersion(s)
		}
	}

	if platform != "" {
		ua.Platform = platform
		return ua
	}
	ua.Platform, ua.Device = detectPlatform(s)
	return ua
}

func detectPlatform(s string) (Platform, Device) {
	has := func(subs ...string) bool {
		for _, sub := range subs {
			if indexFold(s, sub) >= 0 {
				return true
			}
		}
		return false
	}
	switch {
	case has("Windows"):
		if has("X11") {
			return "", Mobile
		}
		return Windows, ""
	case has("Android"):
		if has("iOS") {
			return IOS, ""
		}
		return Android, ""
	case has("Linux"):
		if has("Mobile", "UCW") {
			return Android, ""
		}
		return Linux, ""
	case has("iOS", "iPad", "iPod", "iPhone"):
		return IOS, ""
	case has("Mac"):
		return MacOS, ""
	case has("Darwin"):
		if has("86") {
			return MacOS, ""
		}
		return IOS, ""
	case has("Mobile", "Phone", "Tablet", "Zune"):
		return "", Mobile
	case has("Desktop"):
		return "", Desktop
	}
	return "", ""
}

// slashVersion parses the major version following the first '/' in s.
func slashVersion(s string) int {
	i := strings.IndexByte(s, '/')
	if i < 0 {
		return 0
	}
	rest := s[i+1:]
	if end := strings.IndexAny(rest, ". "); end >= 0 {
		rest = rest[:end]
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// safariVersion parses "Version/major.minor" into major*100+minor.
func safariVersion(s string) int {
	i := strings.Index(s, "Version/")
	if i < 0 {
		return 0
	}
	parts := strings.FieldsFunc(s[i+len("Version/"):], func(r rune) bool { return r == '.' || r == ' ' })
	if len(parts) == 0 {
		return 0
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return 0
	}
	minor := 0
	if len(parts) > 1 {
		if n, err := strconv.Atoi(parts[1]); err == nil && n >= 0 {
			minor = n
		}
	}
	return major*100 + minor
}

type userAgentKey struct{}

// WithUserAgent attaches ua to ctx; profile selection and the emulation
// transport read it back with UserAgentFromContext.
func WithUserAgent(ctx context.Context, ua UserAgent) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

// UserAgentFromContext returns the UserAgent attached by WithUserAgent.
func UserAgentFromContext(ctx context.Context) (UserAgent, bool) {
	ua, ok := ctx.Value(userAgentKey{}).(UserAgent)
	return ua, ok
}
