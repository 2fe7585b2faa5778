package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestInspect(t *testing.T) {
	out := run(t, "inspect", "https://example.com/feed",
		"--profile", "firefox-121-windows",
		"--http2",
		"-H", "Cookie: a=b",
		"--initiator", "fetch",
	)
	for _, want := range []string{
		"GET /feed HTTP/2.0",
		"user-agent: Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"sec-fetch-mode: cors",
		"cookie: a=b",
		"client hello: firefox_120",
		"pseudo-header order :method :path :authority :scheme",
		"WINDOW_UPDATE stream=0 increment=12517377",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEval(t *testing.T) {
	out := run(t, "eval", "--profile", "chrome-120-windows", "--cookie", "x=1", `document.cookie += "; y=2"; navigator.platform`)
	if !strings.HasPrefix(out, "Win32\n") {
		t.Errorf("result: got %q", out)
	}
	if !strings.Contains(out, "document.cookie: x=1; y=2") {
		t.Errorf("cookie: got %q", out)
	}
}

func TestFetch(t *testing.T) {
	ua := make(chan string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua <- r.Header.Get("User-Agent")
		w.Header().Set("X-Served-By", "test")
		io.WriteString(w, "payload")
	}))
	t.Cleanup(ts.Close)

	out := run(t, "fetch", ts.URL+"/", "--profile", "safari-17-macos", "--body")
	if got := <-ua; !strings.Contains(got, "Version/17.2 Safari") {
		t.Errorf("upstream User-Agent: got %q", got)
	}
	for _, want := range []string{"200 OK", "X-Served-By: test", "payload"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestParseHeaderFlags(t *testing.T) {
	got, err := parseHeaderFlags([]string{"Accept: */*", "X-Empty:"})
	if err != nil {
		t.Fatalf("parseHeaderFlags: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Accept" || got[0].Value != "*/*" || got[1].Value != "" {
		t.Errorf("parseHeaderFlags: got %+v", got)
	}
	if _, err := parseHeaderFlags([]string{"no colon"}); err == nil {
		t.Error("expected error for header without colon")
	}
}

func TestFetch_Repeat(t *testing.T) {
	var hits int64
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ts.Close)

	out := run(t, "fetch", ts.URL+"/", "--profile", "chrome-120-windows", "-n", "12", "-c", "3")
	mu.Lock()
	if hits != 12 {
		t.Errorf("upstream hits: got %d, want 12", hits)
	}
	mu.Unlock()
	for _, want := range []string{"12  204 No Content", "12 requests in", "on 3 workers", "emulated 12"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
