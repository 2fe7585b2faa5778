// Package clienthint is the static registry of User-Agent Client Hints.
//
// Every hint maps to one or more request header names (the canonical
// "Sec-CH-*" form plus legacy aliases such as "Save-Data" or "DPR") and is
// classified by entropy.  Low-entropy hints are sent by browsers on every
// secure request; high-entropy hints only after the origin asked for them.
package clienthint

import (
	"fmt"
	"strings"
)

// Hint identifies a single client hint.
type Hint int

// Known client hints.  The order matches All().
const (
	Ua Hint = iota
	FullVersion
	FullVersionList
	Platform
	PlatformVersion
	Arch
	Bitness
	Wow64
	Model
	Mobile
	FormFactors
	Lang
	SaveData
	Width
	ViewportWidth
	ViewportHeight
	Dpr
	DeviceMemory
	Rtt
	Downlink
	Ect
	PrefersColorScheme
	PrefersReducedMotion
	PrefersReducedTransparency
	PrefersContrast
	ForcedColors

	numHints
)

// headerNames lists the header names for each hint, preferred name first.
var headerNames = [numHints][]string{
	Ua:                         {"Sec-CH-UA"},
	FullVersion:                {"Sec-CH-UA-Full-Version"},
	FullVersionList:            {"Sec-CH-UA-Full-Version-List"},
	Platform:                   {"Sec-CH-UA-Platform"},
	PlatformVersion:            {"Sec-CH-UA-Platform-Version"},
	Arch:                       {"Sec-CH-UA-Arch"},
	Bitness:                    {"Sec-CH-UA-Bitness"},
	Wow64:                      {"Sec-CH-UA-WoW64"},
	Model:                      {"Sec-CH-UA-Model"},
	Mobile:                     {"Sec-CH-UA-Mobile"},
	FormFactors:                {"Sec-CH-UA-Form-Factors"},
	Lang:                       {"Sec-CH-Lang", "Lang"},
	SaveData:                   {"Sec-CH-Save-Data", "Save-Data"},
	Width:                      {"Sec-CH-Width"},
	ViewportWidth:              {"Sec-CH-Viewport-Width", "Viewport-Width"},
	ViewportHeight:             {"Sec-CH-Viewport-Height"},
	Dpr:                        {"Sec-CH-DPR", "DPR"},
	DeviceMemory:               {"Sec-CH-Device-Memory", "Device-Memory"},
	Rtt:                        {"Sec-CH-RTT", "RTT"},
	Downlink:                   {"Sec-CH-Downlink", "Downlink"},
	Ect:                        {"Sec-CH-ECT", "ECT"},
	PrefersColorScheme:         {"Sec-CH-Prefers-Color-Scheme"},
	PrefersReducedMotion:       {"Sec-CH-Prefers-Reduced-Motion"},
	PrefersReducedTransparency: {"Sec-CH-Prefers-Reduced-Transparency"},
	PrefersContrast:            {"Sec-CH-Prefers-Contrast"},
	ForcedColors:               {"Sec-CH-Forced-Colors"},
}

// byName indexes every lower-cased header name to its hint.
var byName = func() map[string]Hint {
	m := make(map[string]Hint, 2*int(numHints))
	for h := Hint(0); h < numHints; h++ {
		for _, name := range headerNames[h] {
			m[strings.ToLower(name)] = h
		}
	}
	return m
}()

// All returns every known hint.
func All() []Hint {
	out := make([]Hint, 0, numHints)
	for h := Hint(0); h < numHints; h++ {
		out = append(out, h)
	}
	return out
}

// AllHeaderNames returns every header name that maps to a hint.
func AllHeaderNames() []string {
	var out []string
	for h := Hint(0); h < numHints; h++ {
		out = append(out, headerNames[h]...)
	}
	return out
}

// Match reports the hint a header name belongs to.  The comparison is
// case-insensitive.
func Match(headerName string) (Hint, bool) {
	h, ok := byName[strings.ToLower(headerName)]
	return h, ok
}

// Parse converts a header name or alias (e.g. "Sec-CH-UA-Arch", "rtt") into
// a Hint.
func Parse(s string) (Hint, error) {
	h, ok := Match(strings.TrimSpace(s))
	if !ok {
		return 0, fmt.Errorf("clienthint: unknown client hint %q", s)
	}
	return h, nil
}

// ParseList parses a comma-separated list of hints, skipping empty items.
func ParseList(s string) ([]Hint, error) {
	var out []Hint
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h, err := Parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// IsLowEntropy reports whether browsers send h without being asked.
func (h Hint) IsLowEntropy() bool {
	switch h {
	case Ua, Mobile, Platform, SaveData:
		return true
	}
	return false
}

// HeaderNames returns the header names of h, preferred name first.
func (h Hint) HeaderNames() []string {
	if h < 0 || h >= numHints {
		return nil
	}
	return append([]string(nil), headerNames[h]...)
}

// String returns the preferred header name of h.
func (h Hint) String() string {
	if h < 0 || h >= numHints {
		return fmt.Sprintf("Hint(%d)", int(h))
	}
	return headerNames[h][0]
}

// MarshalText implements encoding.TextMarshaler.
func (h Hint) MarshalText() ([]byte, error) {
	if h < 0 || h >= numHints {
		return nil, fmt.Errorf("clienthint: invalid hint %d", int(h))
	}
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hint) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Contains reports whether hints includes h.
func Contains(hints []Hint, h Hint) bool {
	for _, v := range hints {
		if v == h {
			return true
		}
	}
	return false
}
