package proxy_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/firasghr/uaemulate/proxy"
)

func writeProxyFile(t *testing.T, lines string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "proxies*.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(lines); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

func TestLoadProxies_Count(t *testing.T) {
	path := writeProxyFile(t, "http://proxy1:8080\nproxy2:8080\n# comment\n\nsocks5://proxy3:1080\n")
	p := &proxy.Pool{}
	if err := p.LoadProxies(path); err != nil {
		t.Fatalf("LoadProxies error: %v", err)
	}
	if p.Count() != 3 {
		t.Errorf("expected 3 proxies, got %d", p.Count())
	}
}

func TestLoadProxies_BadLine(t *testing.T) {
	path := writeProxyFile(t, "http://ok:8080\nftp://nope:21\n")
	p := &proxy.Pool{}
	if err := p.LoadProxies(path); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestNext_Rotation(t *testing.T) {
	p, err := proxy.NewPool("a:1", "b:2", "c:3")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, p.Next().Host)
	}
	want := []string{"a:1", "b:2", "c:3", "a:1"}
	for i, v := range got {
		if v != want[i] {
			t.Errorf("index %d: got %q, want %q", i, v, want[i])
		}
	}
}

func TestNext_EmptyReturnsNil(t *testing.T) {
	p := &proxy.Pool{}
	if got := p.Next(); got != nil {
		t.Errorf("expected nil for empty pool, got %v", got)
	}
	var nilPool *proxy.Pool
	if got := nilPool.Next(); got != nil || nilPool.Count() != 0 {
		t.Errorf("nil pool: got %v", got)
	}
}

func TestLoadProxies_MissingFile(t *testing.T) {
	p := &proxy.Pool{}
	if err := p.LoadProxies("/nonexistent.txt"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseURL(t *testing.T) {
	u, err := proxy.ParseURL("user:pass@host:3128")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	if u.Scheme != "http" || u.Host != "host:3128" || u.User.Username() != "user" {
		t.Errorf("ParseURL: got %v", u)
	}
	if _, err := proxy.ParseURL("http://"); err == nil {
		t.Error("expected error for missing host")
	}
}

// connectProxy accepts one CONNECT request, records it and then echoes the
// tunnelled bytes back.
func connectProxy(t *testing.T, status int) (addr string, seen chan *http.Request) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	seen = make(chan *http.Request, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		br := bufio.NewReader(conn)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		seen <- req
		if status != http.StatusOK {
			io.WriteString(conn, "HTTP/1.1 407 Proxy Authentication Required\r\nContent-Length: 0\r\n\r\n")
			return
		}
		io.WriteString(conn, "HTTP/1.1 200 Connection Established\r\n\r\n")
		io.Copy(conn, br)
	}()
	return ln.Addr().String(), seen
}

func TestDial_HTTPConnect(t *testing.T) {
	addr, seen := connectProxy(t, http.StatusOK)
	proxyURL := &url.URL{Scheme: "http", Host: addr, User: url.UserPassword("u", "p")}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := proxy.Dial(ctx, proxyURL, "tcp", "example.com:443", time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := <-seen
	if req.Method != http.MethodConnect || req.Host != "example.com:443" {
		t.Errorf("CONNECT request: got %s %s", req.Method, req.Host)
	}
	if got := req.Header.Get("Proxy-Authorization"); got != "Basic dTpw" {
		t.Errorf("Proxy-Authorization: got %q, want %q", got, "Basic dTpw")
	}

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil || string(buf) != "ping" {
		t.Errorf("echo through tunnel: got %q (%v)", buf, err)
	}
}

func TestDial_HTTPConnectRefused(t *testing.T) {
	addr, _ := connectProxy(t, http.StatusProxyAuthRequired)
	_, err := proxy.Dial(context.Background(), &url.URL{Scheme: "http", Host: addr}, "tcp", "example.com:443", time.Second)
	if err == nil {
		t.Error("expected error for non-200 CONNECT response")
	}
}
