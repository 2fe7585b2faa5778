package fingerprint

import (
	"math/rand"
	"strings"
	"time"
)

// ScreenInfo mirrors the window.screen properties scripts commonly read.
type ScreenInfo struct {
	Width       int `json:"width" yaml:"width"`
	Height      int `json:"height" yaml:"height"`
	AvailWidth  int `json:"availWidth" yaml:"availWidth"`
	AvailHeight int `json:"availHeight" yaml:"availHeight"`
	ColorDepth  int `json:"colorDepth" yaml:"colorDepth"`
	PixelDepth  int `json:"pixelDepth" yaml:"pixelDepth"`
}

// NavigatorInfo mirrors the window.navigator properties scripts commonly
// read.  WebDriver must stay false: a real browser never reports true.
type NavigatorInfo struct {
	UserAgent           string   `json:"userAgent" yaml:"userAgent"`
	AppCodeName         string   `json:"appCodeName,omitempty" yaml:"appCodeName,omitempty"`
	AppName             string   `json:"appName,omitempty" yaml:"appName,omitempty"`
	AppVersion          string   `json:"appVersion,omitempty" yaml:"appVersion,omitempty"`
	Vendor              string   `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Platform            string   `json:"platform" yaml:"platform"`
	Language            string   `json:"language" yaml:"language"`
	Languages           []string `json:"languages" yaml:"languages"`
	CookieEnabled       bool     `json:"cookieEnabled" yaml:"cookieEnabled"`
	DoNotTrack          string   `json:"doNotTrack,omitempty" yaml:"doNotTrack,omitempty"`
	HardwareConcurrency int      `json:"hardwareConcurrency" yaml:"hardwareConcurrency"`
	DeviceMemory        int      `json:"deviceMemory,omitempty" yaml:"deviceMemory,omitempty"`
	MaxTouchPoints      int      `json:"maxTouchPoints" yaml:"maxTouchPoints"`
	PDFViewerEnabled    bool     `json:"pdfViewerEnabled" yaml:"pdfViewerEnabled"`
	WebDriver           bool     `json:"webdriver" yaml:"webdriver"`
}

// JSProfile is the Web API data of a profile, for JavaScript runtimes that
// must agree with the emulated headers.
type JSProfile struct {
	Navigator *NavigatorInfo `json:"navigator,omitempty" yaml:"navigator,omitempty"`
	Screen    *ScreenInfo    `json:"screen,omitempty" yaml:"screen,omitempty"`
}

// commonScreenResolutions lists the most common desktop screen sizes.
var commonScreenResolutions = []ScreenInfo{
	{1920, 1080, 1920, 1040, 24, 24},
	{1366, 768, 1366, 728, 24, 24},
	{1536, 864, 1536, 824, 24, 24},
	{1440, 900, 1440, 860, 24, 24},
	{1280, 720, 1280, 680, 24, 24},
	{2560, 1440, 2560, 1400, 24, 24},
	{1600, 900, 1600, 860, 24, 24},
}

// hwConcurrency returns a plausible navigator.hardwareConcurrency value.
func hwConcurrency(rng *rand.Rand) int {
	choices := []int{4, 4, 4, 8, 8, 8, 12, 16}
	return choices[rng.Intn(len(choices))]
}

// navigatorPlatform is the navigator.platform string browsers report.
func navigatorPlatform(p Platform) string {
	switch p {
	case MacOS:
		return "MacIntel"
	case Linux:
		return "Linux x86_64"
	case Android:
		return "Linux armv81"
	case IOS:
		return "iPhone"
	}
	return "Win32"
}

// JSData returns the profile's JS data.  Missing parts are filled with
// randomised but plausible values consistent with the profile's user agent
// and platform; rng may be nil.
func (p *Profile) JSData(rng *rand.Rand) JSProfile {
	var out JSProfile
	if p.JS != nil {
		out = *p.JS
	}
	if out.Navigator != nil && out.Screen != nil {
		return out
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404
	}
	if out.Screen == nil {
		screen := commonScreenResolutions[rng.Intn(len(commonScreenResolutions))]
		out.Screen = &screen
	}
	if out.Navigator == nil {
		vendor := ""
		switch p.UAKind {
		case Chromium:
			vendor = "Google Inc."
		case Safari:
			vendor = "Apple Computer, Inc."
		}
		out.Navigator = &NavigatorInfo{
			UserAgent:           p.UserAgent(),
			AppCodeName:         "Mozilla",
			AppName:             "Netscape",
			Vendor:              vendor,
			Platform:            navigatorPlatform(p.Platform),
			Language:            "en-US",
			Languages:           []string{"en-US", "en"},
			CookieEnabled:       true,
			HardwareConcurrency: hwConcurrency(rng),
			DeviceMemory:        8,
			PDFViewerEnabled:    true,
		}
	}
	return out
}

// UserAgent returns the User-Agent value of the profile's HTTP/1.1
// navigation template, falling back to the HTTP/2 one.
func (p *Profile) UserAgent() string {
	for _, l := range []TemplateHeaderList{p.HTTP.H1.Headers.Navigate, p.HTTP.H2.Headers.Navigate} {
		for _, h := range l {
			if strings.EqualFold(h.Name, "User-Agent") {
				return h.Value
			}
		}
	}
	return ""
}
