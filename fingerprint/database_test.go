package fingerprint_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/firasghr/uaemulate/fingerprint"
)

func selectFor(db *fingerprint.Database, ua string) *fingerprint.Profile {
	ctx := fingerprint.WithUserAgent(context.Background(), fingerprint.ParseUserAgent(ua))
	return db.Select(ctx)
}

func TestDatabase_SelectByUserAgent(t *testing.T) {
	chrome119 := fingerprint.Chrome120Windows()
	chrome119.Name = "chrome-119-linux"
	chrome119.UAVersion = 119
	chrome119.Platform = fingerprint.Linux

	db, err := fingerprint.NewDatabase(fingerprint.FallbackNone,
		fingerprint.Chrome120Windows(), chrome119, fingerprint.Firefox121Windows(), fingerprint.Safari17MacOS())
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}

	cases := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0 Safari/537.36", "chrome-120-windows"},
		{"Mozilla/5.0 (X11; Linux x86_64) Chrome/125.0.0.0 Safari/537.36", "chrome-119-linux"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/119.0.0.0 Safari/537.36", "chrome-120-windows"},
		{"Mozilla/5.0 (Macintosh) Chrome/121.0.0.0 Safari/537.36", "chrome-120-windows"},
		{"Mozilla/5.0 (Windows NT 10.0; rv:130.0) Gecko/20100101 Firefox/130.0", "firefox-121-windows"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Version/17.2 Safari/605.1.15", "safari-17-macos"},
	}
	for _, c := range cases {
		got := selectFor(db, c.ua)
		if got == nil {
			t.Errorf("Select(%q): got nil, want %s", c.ua, c.want)
			continue
		}
		if got.Name != c.want {
			t.Errorf("Select(%q): got %s, want %s", c.ua, got.Name, c.want)
		}
	}
}

func TestDatabase_HTTPAgentOverride(t *testing.T) {
	db := fingerprint.BuiltinDatabase(fingerprint.FallbackNone)
	ua := fingerprint.ParseUserAgent("Mozilla/5.0 (Windows NT 10.0) Chrome/120.0.0.0")
	ua.HTTPAgent = fingerprint.HTTPAgentFirefox
	got := db.Select(fingerprint.WithUserAgent(context.Background(), ua))
	if got == nil || got.UAKind != fingerprint.Firefox {
		t.Errorf("Select: got %v, want a firefox profile", got)
	}
}

func TestDatabase_Fallback(t *testing.T) {
	ctx := context.Background()

	none := fingerprint.BuiltinDatabase(fingerprint.FallbackNone)
	if p := none.Select(ctx); p != nil {
		t.Errorf("FallbackNone: got %s, want nil", p)
	}
	if p := selectFor(none, "curl/8.4.0"); p != nil {
		t.Errorf("FallbackNone with unknown UA: got %s, want nil", p)
	}

	first := fingerprint.BuiltinDatabase(fingerprint.FallbackFirst)
	for i := 0; i < 3; i++ {
		if p := first.Select(ctx); p == nil || p.Name != "chrome-120-windows" {
			t.Errorf("FallbackFirst: got %v", p)
		}
	}

	rotate := fingerprint.BuiltinDatabase(fingerprint.FallbackRotate)
	var names []string
	for i := 0; i < 4; i++ {
		names = append(names, rotate.Select(ctx).Name)
	}
	want := []string{"chrome-120-windows", "firefox-121-windows", "safari-17-macos", "chrome-120-windows"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("FallbackRotate[%d]: got %s, want %s", i, names[i], want[i])
		}
	}
}

func TestDatabase_Empty(t *testing.T) {
	db, err := fingerprint.NewDatabase(fingerprint.FallbackFirst)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	if p := db.Select(context.Background()); p != nil {
		t.Errorf("empty database: got %s, want nil", p)
	}
}

func TestNewDatabase_RejectsInvalid(t *testing.T) {
	bad := fingerprint.Chrome120Windows()
	bad.UAKind = "opera"
	if _, err := fingerprint.NewDatabase(fingerprint.FallbackNone, bad); err == nil {
		t.Error("expected error for unknown ua kind")
	}
	if _, err := fingerprint.NewDatabase(fingerprint.FallbackNone, nil); err == nil {
		t.Error("expected error for nil profile")
	}
}

const jsonProfiles = `{
  "profiles": [
    {
      "name": "tiny-chrome",
      "ua_kind": "chromium",
      "ua_version": 118,
      "platform": "windows",
      "http": {
        "h1": {
          "headers": {
            "navigate": [
              {"name": "Host", "value": ""},
              {"name": "User-Agent", "value": "Mozilla/5.0 Chrome/118.0.0.0"},
              {"name": "X-Custom-Header-Marker", "value": "1"},
              {"name": "Cookie", "value": ""}
            ]
          },
          "settings": {"title_case_headers": false}
        },
        "h2": {
          "headers": {"navigate": []},
          "settings": {"pseudo_header_order": [":method", ":authority", ":scheme", ":path"]}
        }
      },
      "tls": {"client_hello": "chrome_auto"}
    }
  ]
}`

const yamlProfiles = `profiles:
  - name: tiny-firefox
    ua_kind: firefox
    ua_version: 121
    http:
      h1:
        headers:
          navigate:
            - {name: User-Agent, value: "Mozilla/5.0 Firefox/121.0"}
            - {name: Accept, value: "*/*"}
        settings:
          title_case_headers: true
      h2:
        headers:
          navigate: []
    tls:
      client_hello: firefox_auto
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDatabase_JSON(t *testing.T) {
	db, err := fingerprint.LoadDatabase(writeFile(t, "profiles.json", jsonProfiles), fingerprint.FallbackFirst)
	if err != nil {
		t.Fatalf("LoadDatabase: %v", err)
	}
	if db.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", db.Len())
	}
	p := db.Profiles()[0]
	if p.Name != "tiny-chrome" || p.UAKind != fingerprint.Chromium || p.Platform != fingerprint.Windows {
		t.Errorf("profile: got %+v", p)
	}
	if got := p.HTTP.H1.Headers.Navigate.Names(); len(got) != 4 || got[2] != fingerprint.CustomHeaderMarker {
		t.Errorf("navigate names: got %v", got)
	}
	if p.HTTP.H1.Headers.Fetch != nil {
		t.Errorf("absent fetch template should decode as nil, got %v", p.HTTP.H1.Headers.Fetch)
	}
	if p.HTTP.H2.Headers.Navigate == nil {
		t.Error("empty navigate list should decode as non-nil")
	}
	if got := p.HTTP.H2.Settings.PseudoHeaderOrder; len(got) != 4 || got[1] != fingerprint.PseudoAuthority {
		t.Errorf("pseudo order: got %v", got)
	}
	if p.TLS.ClientHello != "chrome_auto" {
		t.Errorf("client hello: got %q, want %q", p.TLS.ClientHello, "chrome_auto")
	}
}

func TestLoadDatabase_YAML(t *testing.T) {
	db, err := fingerprint.LoadDatabase(writeFile(t, "profiles.yaml", yamlProfiles), fingerprint.FallbackNone)
	if err != nil {
		t.Fatalf("LoadDatabase: %v", err)
	}
	p := db.Profiles()[0]
	if p.Name != "tiny-firefox" || p.UAKind != fingerprint.Firefox || !p.HTTP.H1.Settings.TitleCaseHeaders {
		t.Errorf("profile: got %+v", p)
	}
	if got := p.UserAgent(); got != "Mozilla/5.0 Firefox/121.0" {
		t.Errorf("UserAgent: got %q", got)
	}
}

func TestLoadDatabase_Errors(t *testing.T) {
	cases := map[string]string{
		"empty.json":   `{"profiles": []}`,
		"unknown.json": `{"profiles": [], "extra": 1}`,
		"broken.yaml":  "profiles: [",
		"twomarks.json": `{"profiles": [{"name": "x", "ua_kind": "safari", "http": {"h1": {"headers": {"navigate": [
			{"name": "X-Custom-Header-Marker", "value": ""},
			{"name": "x-custom-header-marker", "value": ""}
		]}}}}]}`,
	}
	for name, content := range cases {
		if _, err := fingerprint.LoadDatabase(writeFile(t, name, content), fingerprint.FallbackNone); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := fingerprint.LoadDatabase(filepath.Join(t.TempDir(), "missing.json"), fingerprint.FallbackNone); err == nil {
		t.Error("missing file: expected error")
	}
}

func TestParseSelectFallback(t *testing.T) {
	for in, want := range map[string]fingerprint.SelectFallback{
		"":       fingerprint.FallbackNone,
		"none":   fingerprint.FallbackNone,
		"First":  fingerprint.FallbackFirst,
		"rotate": fingerprint.FallbackRotate,
	} {
		got, err := fingerprint.ParseSelectFallback(in)
		if err != nil || got != want {
			t.Errorf("ParseSelectFallback(%q): got (%v, %v), want %v", in, got, err, want)
		}
	}
	if _, err := fingerprint.ParseSelectFallback("random"); err == nil {
		t.Error("expected error for unknown fallback")
	}
}
