package emulate_test

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/firasghr/uaemulate/client"
	"github.com/firasghr/uaemulate/clienthint"
	"github.com/firasghr/uaemulate/emulate"
	"github.com/firasghr/uaemulate/fingerprint"
	"github.com/firasghr/uaemulate/protocol"
)

const (
	macChromeUA    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	browserAccept  = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	frenchLanguage = "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7"
)

func tmpl(kv ...string) fingerprint.TemplateHeaderList {
	var l fingerprint.TemplateHeaderList
	for i := 0; i+1 < len(kv); i += 2 {
		l = append(l, fingerprint.TemplateHeader{Name: kv[i], Value: kv[i+1]})
	}
	return l
}

// rawHeader keeps the keys exactly as given, like a header map filled by a
// case-preserving client.
func rawHeader(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h[kv[i]] = append(h[kv[i]], kv[i+1])
	}
	return h
}

func render(h *client.OrderedHeader) string {
	var b strings.Builder
	for _, e := range h.Entries() {
		fmt.Fprintf(&b, "%s: %s\r\n", e.Name, e.Value)
	}
	return b.String()
}

func renderPairs(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, "%s: %s\r\n", kv[i], kv[i+1])
	}
	return b.String()
}

func insecureTarget(mc emulate.MergeContext) emulate.MergeContext {
	mc.TargetProtocol = protocol.HTTP
	mc.TargetAuthority = protocol.Authority{Host: "www.example.com", Port: 80}
	return mc
}

func secureTarget(mc emulate.MergeContext) emulate.MergeContext {
	mc.TargetProtocol = protocol.HTTPS
	mc.TargetAuthority = protocol.Authority{Host: "www.example.com", Port: 443}
	return mc
}

// realisticTemplate is a desktop Chrome navigation template.
func realisticTemplate(extra ...string) fingerprint.TemplateHeaderList {
	kv := []string{
		"Host", "www.google.com",
		"User-Agent", macChromeUA,
		"Accept", browserAccept,
		"Accept-Language", "en-US,en;q=0.9",
		"Accept-Encoding", "gzip, deflate, br",
		"Connection", "keep-alive",
		"Referer", "https://www.google.com/",
		"Upgrade-Insecure-Requests", "1",
		fingerprint.CustomHeaderMarker, "1",
		"Cookie", "rama-ua-test=1",
		"Sec-Fetch-Dest", "document",
		"Sec-Fetch-Mode", "navigate",
		"Sec-Fetch-Site", "cross-site",
		"Sec-Fetch-User", "?1",
	}
	kv = append(kv, extra...)
	kv = append(kv,
		"DNT", "1",
		"Sec-GPC", "1",
		"Priority", "u=0, i",
	)
	return tmpl(kv...)
}

func TestMerge(t *testing.T) {
	requested, err := clienthint.ParseList("Downlink, Ect, RTT, Sec-CH-UA-Arch, Sec-CH-UA-Bitness, Sec-CH-UA-Model")
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}

	cases := []struct {
		name     string
		template fingerprint.TemplateHeaderList
		mc       emulate.MergeContext
		want     string
	}{
		{
			name: "empty",
			mc:   insecureTarget(emulate.MergeContext{}),
			want: "",
		},
		{
			name:     "template only",
			template: tmpl("Accept", "text/html", "Content-Type", "application/json"),
			mc:       insecureTarget(emulate.MergeContext{}),
			want:     renderPairs("Accept", "text/html"),
		},
		{
			name:     "template with caller content-type",
			template: tmpl("Accept", "text/html", "Content-Type", "application/json"),
			mc:       insecureTarget(emulate.MergeContext{Original: rawHeader("content-type", "text/xml")}),
			want:     renderPairs("Accept", "text/html", "Content-Type", "text/xml"),
		},
		{
			name: "caller headers only",
			mc:   insecureTarget(emulate.MergeContext{Original: rawHeader("accept", "text/html")}),
			want: renderPairs("accept", "text/html"),
		},
		{
			name:     "no conflicts",
			template: tmpl("accept", "text/html", "user-agent", "python/3.10"),
			mc:       insecureTarget(emulate.MergeContext{Original: rawHeader("content-type", "application/json")}),
			want:     renderPairs("accept", "text/html", "user-agent", "python/3.10", "content-type", "application/json"),
		},
		{
			name:     "conflicts",
			template: tmpl("accept", "text/html", "content-type", "text/html", "user-agent", "python/3.10"),
			mc: insecureTarget(emulate.MergeContext{
				OriginalOrder: []string{"content-type", "user-agent"},
				Original:      rawHeader("content-type", "application/json", "user-agent", "php/8.0"),
			}),
			want: renderPairs("accept", "text/html", "content-type", "application/json", "user-agent", "python/3.10"),
		},
		{
			name:     "conflicts with preserved user agent",
			template: tmpl("accept", "text/html", "content-type", "text/html", "user-agent", "python/3.10"),
			mc: insecureTarget(emulate.MergeContext{
				OriginalOrder:     []string{"content-type", "user-agent"},
				Original:          rawHeader("content-type", "application/json", "user-agent", "php/8.0"),
				PreserveUserAgent: true,
			}),
			want: renderPairs("accept", "text/html", "content-type", "application/json", "user-agent", "php/8.0"),
		},
		{
			name:     "preserved user agent absent from caller",
			template: tmpl("user-agent", "python/3.10"),
			mc:       insecureTarget(emulate.MergeContext{PreserveUserAgent: true}),
			want:     renderPairs("user-agent", "python/3.10"),
		},
		{
			name: "no opt-in headers sent",
			template: tmpl(
				"accept", "text/html",
				"authorization", "Bearer 1234567890",
				"cookie", "session=1234567890",
				"referer", "https://example.com",
			),
			mc: insecureTarget(emulate.MergeContext{
				OriginalOrder: []string{"content-type", "user-agent"},
				Original:      rawHeader("content-type", "application/json", "user-agent", "php/8.0"),
			}),
			want: renderPairs("accept", "text/html", "content-type", "application/json", "user-agent", "php/8.0"),
		},
		{
			name: "some opt-in headers sent",
			template: tmpl(
				"accept", "text/html",
				"authorization", "Bearer 1234567890",
				"cookie", "session=1234567890",
				"referer", "https://example.com",
			),
			mc: insecureTarget(emulate.MergeContext{
				OriginalOrder: []string{"content-type", "cookie", "user-agent", "referer"},
				Original: rawHeader(
					"content-type", "application/json",
					"cookie", "foo=bar",
					"user-agent", "php/8.0",
					"referer", "https://ramaproxy.org",
				),
			}),
			want: renderPairs(
				"accept", "text/html",
				"cookie", "foo=bar",
				"referer", "https://ramaproxy.org",
				"content-type", "application/json",
				"user-agent", "php/8.0",
			),
		},
		{
			name: "all opt-in headers sent",
			template: tmpl(
				"accept", "text/html",
				"authorization", "Bearer 1234567890",
				"cookie", "session=1234567890",
				"referer", "https://example.com",
			),
			mc: insecureTarget(emulate.MergeContext{
				OriginalOrder: []string{"content-type", "cookie", "user-agent", "referer", "authorization"},
				Original: rawHeader(
					"content-type", "application/json",
					"cookie", "foo=bar",
					"user-agent", "php/8.0",
					"referer", "https://ramaproxy.org",
					"authorization", "Bearer 42",
				),
			}),
			want: renderPairs(
				"accept", "text/html",
				"authorization", "Bearer 42",
				"cookie", "foo=bar",
				"referer", "https://ramaproxy.org",
				"content-type", "application/json",
				"user-agent", "php/8.0",
			),
		},
		{
			name: "all opt-in headers sent with marker",
			template: tmpl(
				"accept", "text/html",
				"authorization", "Bearer 1234567890",
				"x-custom-header-marker", "1",
				"cookie", "session=1234567890",
				"referer", "https://example.com",
			),
			mc: insecureTarget(emulate.MergeContext{
				OriginalOrder: []string{"content-type", "cookie", "user-agent", "referer", "authorization"},
				Original: rawHeader(
					"content-type", "application/json",
					"cookie", "foo=bar",
					"user-agent", "php/8.0",
					"referer", "https://ramaproxy.org",
					"authorization", "Bearer 42",
				),
			}),
			want: renderPairs(
				"accept", "text/html",
				"authorization", "Bearer 42",
				"content-type", "application/json",
				"user-agent", "php/8.0",
				"cookie", "foo=bar",
				"referer", "https://ramaproxy.org",
			),
		},
		{
			name:     "realistic browser over plain http",
			template: realisticTemplate(),
			mc: insecureTarget(emulate.MergeContext{
				OriginalOrder: []string{"x-show-price", "x-show-price-currency", "accept-language", "cookie"},
				Original: rawHeader(
					"x-show-price", "true",
					"x-show-price-currency", "USD",
					"accept-language", frenchLanguage,
					"cookie", "session=on; foo=bar",
					"x-requested-with", "XMLHttpRequest",
					"host", "www.example.com",
				),
			}),
			want: renderPairs(
				"Host", "www.example.com",
				"User-Agent", macChromeUA,
				"Accept", browserAccept,
				"Accept-Language", frenchLanguage,
				"Accept-Encoding", "gzip, deflate, br",
				"Connection", "keep-alive",
				"Upgrade-Insecure-Requests", "1",
				"x-show-price", "true",
				"x-show-price-currency", "USD",
				"x-requested-with", "XMLHttpRequest",
				"Cookie", "session=on; foo=bar",
				"DNT", "1",
				"Sec-GPC", "1",
				"Priority", "u=0, i",
			),
		},
		{
			name:     "realistic browser over tls",
			template: realisticTemplate(),
			mc: secureTarget(emulate.MergeContext{
				OriginalOrder: []string{"x-show-price", "x-show-price-currency", "accept-language", "cookie"},
				Original: rawHeader(
					"x-show-price", "true",
					"x-show-price-currency", "USD",
					"accept-language", frenchLanguage,
					"cookie", "session=on; foo=bar",
					"x-requested-with", "XMLHttpRequest",
				),
			}),
			want: renderPairs(
				"User-Agent", macChromeUA,
				"Accept", browserAccept,
				"Accept-Language", frenchLanguage,
				"Accept-Encoding", "gzip, deflate, br",
				"Connection", "keep-alive",
				"Upgrade-Insecure-Requests", "1",
				"x-show-price", "true",
				"x-show-price-currency", "USD",
				"x-requested-with", "XMLHttpRequest",
				"Cookie", "session=on; foo=bar",
				"Sec-Fetch-Dest", "document",
				"Sec-Fetch-Mode", "navigate",
				"Sec-Fetch-Site", "none",
				"Sec-Fetch-User", "?1",
				"DNT", "1",
				"Sec-GPC", "1",
				"Priority", "u=0, i",
			),
		},
		{
			name: "realistic browser over tls with requested client hints",
			template: realisticTemplate(
				"Sec-CH-Downlink", "100",
				"Sec-CH-Ect", "4g",
				"Sec-CH-RTT", "100",
				"Sec-CH-UA-Arch", "arm",
				"Sec-CH-UA-Bitness", "64",
				"Sec-CH-UA-Full-Version", "120.0.0.0",
				"Sec-CH-UA-Full-Version-List", "Chrome 120.0.0.0",
				"Sec-CH-UA-Mobile", "?0",
				"Sec-CH-UA-Platform", "macOS",
				"Sec-CH-UA-Platform-Version", "10.15.7",
			),
			mc: secureTarget(emulate.MergeContext{
				OriginalOrder: []string{"x-show-price", "x-show-price-currency", "accept-language", "cookie", "Sec-CH-UA-Model"},
				Original: rawHeader(
					"x-show-price", "true",
					"x-show-price-currency", "USD",
					"accept-language", frenchLanguage,
					"cookie", "session=on; foo=bar",
					"x-requested-with", "XMLHttpRequest",
					"sec-ch-ua-model", "Macintosh",
				),
				RequestedHints: requested,
			}),
			// Client hints are never replayed from the caller's order; the
			// model hint ends up with the sorted leftovers.
			want: renderPairs(
				"User-Agent", macChromeUA,
				"Accept", browserAccept,
				"Accept-Language", frenchLanguage,
				"Accept-Encoding", "gzip, deflate, br",
				"Connection", "keep-alive",
				"Upgrade-Insecure-Requests", "1",
				"x-show-price", "true",
				"x-show-price-currency", "USD",
				"sec-ch-ua-model", "Macintosh",
				"x-requested-with", "XMLHttpRequest",
				"Cookie", "session=on; foo=bar",
				"Sec-Fetch-Dest", "document",
				"Sec-Fetch-Mode", "navigate",
				"Sec-Fetch-Site", "none",
				"Sec-Fetch-User", "?1",
				"Sec-CH-Downlink", "100",
				"Sec-CH-Ect", "4g",
				"Sec-CH-RTT", "100",
				"Sec-CH-UA-Arch", "arm",
				"Sec-CH-UA-Bitness", "64",
				"Sec-CH-UA-Mobile", "?0",
				"Sec-CH-UA-Platform", "macOS",
				"DNT", "1",
				"Sec-GPC", "1",
				"Priority", "u=0, i",
			),
		},
		{
			name: "end to end",
			template: tmpl(
				"Host", "example.com",
				"User-Agent", "template-ua",
				"Accept", "*/*",
				"Content-Type", "text/plain",
				fingerprint.CustomHeaderMarker, "1",
				"Sec-Fetch-Site", "cross-site",
				"Cookie", "x=y",
			),
			mc: emulate.MergeContext{
				Original:        rawHeader("Content-Type", "app/json", "Cookie", "a=b"),
				Method:          http.MethodGet,
				TargetProtocol:  protocol.HTTPS,
				TargetAuthority: protocol.Authority{Host: "example.com", Port: 443},
				Referer:         "https://example.com/previous",
			},
			want: renderPairs(
				"User-Agent", "template-ua",
				"Accept", "*/*",
				"Content-Type", "app/json",
				"Sec-Fetch-Site", "same-origin",
				"Cookie", "a=b",
			),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := render(emulate.Merge(tc.template, tc.mc))
			if got != tc.want {
				t.Errorf("Merge:\ngot\n%s\nwant\n%s", got, tc.want)
			}
		})
	}
}

func TestMerge_SecFetchSite(t *testing.T) {
	template := tmpl("Sec-Fetch-Site", "cross-site")
	target := protocol.Authority{Host: "www.example.com", Port: 443}

	cases := []struct {
		name     string
		referer  string
		original http.Header
		want     string
	}{
		{"no referer", "", nil, "none"},
		{"same origin", "https://www.example.com/a", nil, "same-origin"},
		{"same site", "https://api.example.com/", nil, "same-site"},
		{"cross site", "https://other.org/", nil, "cross-site"},
		{"other scheme", "http://www.example.com/", nil, "cross-site"},
		{"unparsable", "::not a url", nil, "none"},
		{"referer from caller headers", "", rawHeader("Referer", "https://static.example.com/"), "same-site"},
		{"explicit referer wins", "https://www.example.com/", rawHeader("Referer", "https://other.org/"), "same-origin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := emulate.Merge(template, emulate.MergeContext{
				Original:        tc.original,
				Method:          http.MethodGet,
				TargetProtocol:  protocol.HTTPS,
				TargetAuthority: target,
				Referer:         tc.referer,
			})
			if v := got.Get("Sec-Fetch-Site"); v != tc.want {
				t.Errorf("Sec-Fetch-Site: got %q, want %q", v, tc.want)
			}
		})
	}
}

func TestMerge_OptInNeverFabricated(t *testing.T) {
	optIn := []string{"Referer", "Cookie", "Authorization", "Host", "Origin", "Content-Length", "Content-Type"}
	for _, p := range fingerprint.Builtin() {
		for _, v := range []fingerprint.HTTPVersion{fingerprint.HTTP11, fingerprint.HTTP2} {
			set := p.HTTP.Templates(v)
			for _, init := range []fingerprint.RequestInitiator{fingerprint.Navigate, fingerprint.XHR, fingerprint.Fetch, fingerprint.Form, fingerprint.WS} {
				template, ok := fingerprint.ResolveTemplate(set, init)
				if !ok {
					continue
				}
				got := emulate.Merge(template, secureTarget(emulate.MergeContext{
					Original: rawHeader("X-Other", "1"),
				}))
				for _, name := range optIn {
					if got.Has(name) {
						t.Errorf("%s %s %s: %s emitted without the caller sending it", p, v, init, name)
					}
				}
			}
		}
	}
}

func TestMerge_InsecureDropsSecFetchAndHints(t *testing.T) {
	for _, p := range fingerprint.Builtin() {
		for _, v := range []fingerprint.HTTPVersion{fingerprint.HTTP11, fingerprint.HTTP2} {
			template, _ := fingerprint.ResolveTemplate(p.HTTP.Templates(v), fingerprint.Navigate)
			got := emulate.Merge(template, insecureTarget(emulate.MergeContext{
				Original: rawHeader("sec-ch-ua-arch", "x86", "Sec-Fetch-Custom", "1"),
			}))
			for _, e := range got.Entries() {
				if _, hint := clienthint.Match(e.Name); hint {
					t.Errorf("%s %s: client hint %s sent over plain http", p, v, e.Name)
				}
				if strings.HasPrefix(strings.ToLower(e.Name), "sec-fetch") {
					t.Errorf("%s %s: %s sent over plain http", p, v, e.Name)
				}
			}
		}
	}
}

func TestMerge_HintSentByCallerIsAllowed(t *testing.T) {
	template := tmpl("Sec-CH-UA-Arch", `"x86"`, "Sec-CH-UA-Bitness", `"64"`)
	got := emulate.Merge(template, secureTarget(emulate.MergeContext{
		Original: rawHeader("sec-ch-ua-arch", `"arm"`),
	}))
	want := renderPairs("Sec-CH-UA-Arch", `"x86"`)
	if s := render(got); s != want {
		t.Errorf("Merge:\ngot\n%s\nwant\n%s", s, want)
	}
}

func TestMerge_MultiValuedOriginal(t *testing.T) {
	template := tmpl("Accept", "*/*", "Accept", "text/html")
	got := emulate.Merge(template, insecureTarget(emulate.MergeContext{
		Original: rawHeader("Accept", "a/1", "Accept", "b/2", "Accept", "c/3"),
	}))
	want := renderPairs("Accept", "a/1", "Accept", "b/2", "Accept", "c/3")
	if s := render(got); s != want {
		t.Errorf("Merge:\ngot\n%s\nwant\n%s", s, want)
	}
}

func TestMerge_Deterministic(t *testing.T) {
	template := realisticTemplate()
	mc := secureTarget(emulate.MergeContext{
		Original: rawHeader("x-b", "2", "x-a", "1", "X-C", "3", "x-d", "4", "cookie", "k=v"),
	})
	first := render(emulate.Merge(template, mc))
	for i := 0; i < 20; i++ {
		if got := render(emulate.Merge(template, mc)); got != first {
			t.Fatalf("run %d differs:\n%s\nvs\n%s", i, got, first)
		}
	}
	if !strings.Contains(first, "x-a: 1\r\nx-b: 2\r\nX-C: 3\r\nx-d: 4\r\n") {
		t.Errorf("leftovers not sorted by canonical name:\n%s", first)
	}
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	template := tmpl("Accept", "*/*", "Cookie", "")
	original := rawHeader("Cookie", "a=b", "Accept", "text/html")
	emulate.Merge(template, insecureTarget(emulate.MergeContext{Original: original}))
	if len(original["Cookie"]) != 1 || len(original["Accept"]) != 1 {
		t.Errorf("original headers modified: %v", original)
	}
	if template[1].Value != "" {
		t.Errorf("template modified: %v", template)
	}
}
