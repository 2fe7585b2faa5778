package fingerprint

import (
	"golang.org/x/net/http2"
)

// headers builds a TemplateHeaderList from name/value pairs.
func headers(kv ...string) TemplateHeaderList {
	l := make(TemplateHeaderList, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		l = append(l, TemplateHeader{Name: kv[i], Value: kv[i+1]})
	}
	return l
}

const (
	chrome120UA  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	chrome120CH  = `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`
	firefox121UA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0"
	safari17UA   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15"

	chromeNavigateAccept  = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	firefoxNavigateAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	safariNavigateAccept  = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// Chrome120Windows returns a Chrome 120 on Windows profile.
//
// HTTP/2 values were captured from a real client: SETTINGS_HEADER_TABLE_SIZE
// 65536, ENABLE_PUSH 0, INITIAL_WINDOW_SIZE 6291456, MAX_HEADER_LIST_SIZE
// 262144, then a connection WINDOW_UPDATE of 15663105.  Chrome writes the
// pseudo-headers as :method, :authority, :scheme, :path.
func Chrome120Windows() *Profile {
	h2Navigate := headers(
		"sec-ch-ua", chrome120CH,
		"sec-ch-ua-mobile", "?0",
		"sec-ch-ua-platform", `"Windows"`,
		"upgrade-insecure-requests", "1",
		"user-agent", chrome120UA,
		"accept", chromeNavigateAccept,
		"sec-fetch-site", "none",
		"sec-fetch-mode", "navigate",
		"sec-fetch-user", "?1",
		"sec-fetch-dest", "document",
		"referer", "",
		"accept-encoding", "gzip, deflate, br",
		"accept-language", "en-US,en;q=0.9",
		CustomHeaderMarker, "1",
		"cookie", "",
		"priority", "u=0, i",
	)
	h2Fetch := headers(
		"content-length", "",
		"sec-ch-ua", chrome120CH,
		"content-type", "",
		"sec-ch-ua-mobile", "?0",
		"user-agent", chrome120UA,
		"sec-ch-ua-platform", `"Windows"`,
		"accept", "*/*",
		"origin", "",
		CustomHeaderMarker, "1",
		"sec-fetch-site", "same-origin",
		"sec-fetch-mode", "cors",
		"sec-fetch-dest", "empty",
		"referer", "",
		"accept-encoding", "gzip, deflate, br",
		"accept-language", "en-US,en;q=0.9",
		"cookie", "",
		"priority", "u=1, i",
	)
	h2Form := headers(
		"cache-control", "max-age=0",
		"sec-ch-ua", chrome120CH,
		"sec-ch-ua-mobile", "?0",
		"sec-ch-ua-platform", `"Windows"`,
		"upgrade-insecure-requests", "1",
		"origin", "",
		"content-type", "",
		"content-length", "",
		"user-agent", chrome120UA,
		"accept", chromeNavigateAccept,
		"sec-fetch-site", "same-origin",
		"sec-fetch-mode", "navigate",
		"sec-fetch-user", "?1",
		"sec-fetch-dest", "document",
		"referer", "",
		"accept-encoding", "gzip, deflate, br",
		"accept-language", "en-US,en;q=0.9",
		CustomHeaderMarker, "1",
		"cookie", "",
		"priority", "u=0, i",
	)
	h1Navigate := headers(
		"Host", "",
		"Connection", "keep-alive",
		"sec-ch-ua", chrome120CH,
		"sec-ch-ua-mobile", "?0",
		"sec-ch-ua-platform", `"Windows"`,
		"Upgrade-Insecure-Requests", "1",
		"User-Agent", chrome120UA,
		"Accept", chromeNavigateAccept,
		"Sec-Fetch-Site", "none",
		"Sec-Fetch-Mode", "navigate",
		"Sec-Fetch-User", "?1",
		"Sec-Fetch-Dest", "document",
		"Referer", "",
		"Accept-Encoding", "gzip, deflate, br",
		"Accept-Language", "en-US,en;q=0.9",
		CustomHeaderMarker, "1",
		"Cookie", "",
	)
	h1WS := headers(
		"Host", "",
		"Connection", "Upgrade",
		"Pragma", "no-cache",
		"Cache-Control", "no-cache",
		"User-Agent", chrome120UA,
		"Upgrade", "websocket",
		"Origin", "",
		"Sec-WebSocket-Version", "13",
		"Accept-Encoding", "gzip, deflate, br",
		"Accept-Language", "en-US,en;q=0.9",
		CustomHeaderMarker, "1",
		"Cookie", "",
		"Sec-WebSocket-Key", "",
		"Sec-WebSocket-Extensions", "permessage-deflate; client_max_window_bits",
	)
	return &Profile{
		Name:      "chrome-120-windows",
		UAKind:    Chromium,
		UAVersion: 120,
		Platform:  Windows,
		HTTP: HTTPProfile{
			H1: HTTP1Profile{
				Headers: HeaderTemplateSet{
					Navigate: h1Navigate,
					Fetch:    titleCase(h2Fetch),
					Form:     titleCase(h2Form),
					WS:       h1WS,
				},
				Settings: HTTP1Settings{TitleCaseHeaders: false},
			},
			H2: HTTP2Profile{
				Headers: HeaderTemplateSet{
					Navigate: h2Navigate,
					Fetch:    h2Fetch,
					Form:     h2Form,
				},
				Settings: HTTP2Settings{
					PseudoHeaderOrder: []PseudoHeader{PseudoMethod, PseudoAuthority, PseudoScheme, PseudoPath},
					EarlyFrames: []EarlyFrame{
						{Settings: []http2.Setting{
							{ID: http2.SettingHeaderTableSize, Val: 65536},
							{ID: http2.SettingEnablePush, Val: 0},
							{ID: http2.SettingInitialWindowSize, Val: 6291456},
							{ID: http2.SettingMaxHeaderListSize, Val: 262144},
						}},
						{WindowUpdate: &WindowUpdate{StreamID: 0, Increment: 15663105}},
					},
				},
			},
		},
		TLS: TLSProfile{ClientHello: "chrome_120"},
		JS: &JSProfile{
			Navigator: &NavigatorInfo{
				UserAgent:           chrome120UA,
				AppCodeName:         "Mozilla",
				AppName:             "Netscape",
				AppVersion:          chrome120UA[len("Mozilla/"):],
				Vendor:              "Google Inc.",
				Platform:            "Win32",
				Language:            "en-US",
				Languages:           []string{"en-US", "en"},
				CookieEnabled:       true,
				HardwareConcurrency: 8,
				DeviceMemory:        8,
				PDFViewerEnabled:    true,
			},
			Screen: &ScreenInfo{1920, 1080, 1920, 1040, 24, 24},
		},
	}
}

// Firefox121Windows returns a Firefox 121 on Windows profile.  Firefox
// sends title-cased HTTP/1.1 headers and orders its pseudo-headers :method,
// :path, :authority, :scheme.
func Firefox121Windows() *Profile {
	navigate := headers(
		"Host", "",
		"User-Agent", firefox121UA,
		"Accept", firefoxNavigateAccept,
		"Accept-Language", "en-US,en;q=0.5",
		"Accept-Encoding", "gzip, deflate, br",
		"Referer", "",
		"Connection", "keep-alive",
		CustomHeaderMarker, "1",
		"Cookie", "",
		"Upgrade-Insecure-Requests", "1",
		"Sec-Fetch-Dest", "document",
		"Sec-Fetch-Mode", "navigate",
		"Sec-Fetch-Site", "none",
		"Sec-Fetch-User", "?1",
		"TE", "trailers",
	)
	fetch := headers(
		"Host", "",
		"User-Agent", firefox121UA,
		"Accept", "*/*",
		"Accept-Language", "en-US,en;q=0.5",
		"Accept-Encoding", "gzip, deflate, br",
		"Referer", "",
		"Content-Type", "",
		"Content-Length", "",
		"Origin", "",
		CustomHeaderMarker, "1",
		"Connection", "keep-alive",
		"Cookie", "",
		"Sec-Fetch-Dest", "empty",
		"Sec-Fetch-Mode", "cors",
		"Sec-Fetch-Site", "same-origin",
		"TE", "trailers",
	)
	return &Profile{
		Name:      "firefox-121-windows",
		UAKind:    Firefox,
		UAVersion: 121,
		Platform:  Windows,
		HTTP: HTTPProfile{
			H1: HTTP1Profile{
				Headers:  HeaderTemplateSet{Navigate: navigate, Fetch: fetch},
				Settings: HTTP1Settings{TitleCaseHeaders: true},
			},
			H2: HTTP2Profile{
				Headers: HeaderTemplateSet{Navigate: lowerCase(dropHopByHop(navigate)), Fetch: lowerCase(dropHopByHop(fetch))},
				Settings: HTTP2Settings{
					PseudoHeaderOrder: []PseudoHeader{PseudoMethod, PseudoPath, PseudoAuthority, PseudoScheme},
					EarlyFrames: []EarlyFrame{
						{Settings: []http2.Setting{
							{ID: http2.SettingHeaderTableSize, Val: 65536},
							{ID: http2.SettingInitialWindowSize, Val: 131072},
							{ID: http2.SettingMaxFrameSize, Val: 16384},
						}},
						{WindowUpdate: &WindowUpdate{StreamID: 0, Increment: 12517377}},
						{Priority: &PriorityFrame{StreamID: 3, Param: http2.PriorityParam{StreamDep: 0, Weight: 200}}},
					},
				},
			},
		},
		TLS: TLSProfile{ClientHello: "firefox_120"},
	}
}

// Safari17MacOS returns a Safari 17.2 on macOS profile.
func Safari17MacOS() *Profile {
	navigate := headers(
		"Host", "",
		"Sec-Fetch-Dest", "document",
		"User-Agent", safari17UA,
		"Accept", safariNavigateAccept,
		"Sec-Fetch-Site", "none",
		"Sec-Fetch-Mode", "navigate",
		"Accept-Language", "en-US,en;q=0.9",
		"Referer", "",
		CustomHeaderMarker, "1",
		"Cookie", "",
		"Accept-Encoding", "gzip, deflate, br",
		"Connection", "keep-alive",
	)
	fetch := headers(
		"Host", "",
		"Content-Type", "",
		"Accept", "*/*",
		"Sec-Fetch-Site", "same-origin",
		"Accept-Language", "en-US,en;q=0.9",
		"Accept-Encoding", "gzip, deflate, br",
		"Sec-Fetch-Mode", "cors",
		"Origin", "",
		"Content-Length", "",
		"User-Agent", safari17UA,
		"Referer", "",
		CustomHeaderMarker, "1",
		"Connection", "keep-alive",
		"Sec-Fetch-Dest", "empty",
		"Cookie", "",
	)
	return &Profile{
		Name:      "safari-17-macos",
		UAKind:    Safari,
		UAVersion: 1702,
		Platform:  MacOS,
		HTTP: HTTPProfile{
			H1: HTTP1Profile{
				Headers:  HeaderTemplateSet{Navigate: navigate, Fetch: fetch},
				Settings: HTTP1Settings{TitleCaseHeaders: true},
			},
			H2: HTTP2Profile{
				Headers: HeaderTemplateSet{Navigate: lowerCase(dropHopByHop(navigate)), Fetch: lowerCase(dropHopByHop(fetch))},
				Settings: HTTP2Settings{
					PseudoHeaderOrder: []PseudoHeader{PseudoMethod, PseudoScheme, PseudoPath, PseudoAuthority},
					EarlyFrames: []EarlyFrame{
						{Settings: []http2.Setting{
							{ID: http2.SettingEnablePush, Val: 0},
							{ID: http2.SettingMaxConcurrentStreams, Val: 100},
							{ID: http2.SettingInitialWindowSize, Val: 2097152},
						}},
						{WindowUpdate: &WindowUpdate{StreamID: 0, Increment: 10420225}},
					},
				},
			},
		},
		TLS: TLSProfile{ClientHello: "safari_auto"},
	}
}

// Builtin returns fresh copies of all built-in profiles.
func Builtin() []*Profile {
	return []*Profile{Chrome120Windows(), Firefox121Windows(), Safari17MacOS()}
}

// dropHopByHop removes headers that are illegal in HTTP/2 (Host is carried
// by :authority).
func dropHopByHop(l TemplateHeaderList) TemplateHeaderList {
	out := make(TemplateHeaderList, 0, len(l))
	for _, h := range l {
		switch h.Name {
		case "Host", "Connection", "Upgrade", "Keep-Alive", "Proxy-Connection":
			continue
		}
		out = append(out, h)
	}
	return out
}

func lowerCase(l TemplateHeaderList) TemplateHeaderList {
	out := make(TemplateHeaderList, len(l))
	for i, h := range l {
		out[i] = TemplateHeader{Name: toLowerASCII(h.Name), Value: h.Value}
	}
	return out
}

func titleCase(l TemplateHeaderList) TemplateHeaderList {
	out := make(TemplateHeaderList, len(l))
	for i, h := range l {
		out[i] = TemplateHeader{Name: titleCaseName(h.Name), Value: h.Value}
	}
	// Chromium keeps client hints lower-case on HTTP/1.1.
	for i, h := range out {
		if len(h.Name) > 7 && toLowerASCII(h.Name[:7]) == "sec-ch-" {
			out[i].Name = toLowerASCII(h.Name)
		}
	}
	return out
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// titleCaseName upper-cases the first letter of every dash-separated word.
func titleCaseName(s string) string {
	b := []byte(toLowerASCII(s))
	upper := true
	for i, c := range b {
		if upper && c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
		upper = c == '-'
	}
	return string(b)
}
