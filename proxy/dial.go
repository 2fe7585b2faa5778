package proxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// Dial opens a TCP tunnel to addr.  A nil proxyURL dials directly; http and
// https proxies are tunnelled with CONNECT and socks5 proxies go through
// golang.org/x/net/proxy.
func Dial(ctx context.Context, proxyURL *url.URL, network, addr string, timeout time.Duration) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	if proxyURL == nil {
		return d.DialContext(ctx, network, addr)
	}
	switch proxyURL.Scheme {
	case "socks5", "socks5h":
		pd, err := xproxy.FromURL(proxyURL, d)
		if err != nil {
			return nil, fmt.Errorf("proxy: socks5 %s: %w", proxyURL.Host, err)
		}
		cd, ok := pd.(xproxy.ContextDialer)
		if !ok {
			return pd.Dial(network, addr)
		}
		return cd.DialContext(ctx, network, addr)
	case "http", "https":
		return dialConnect(ctx, d, proxyURL, network, addr)
	}
	return nil, fmt.Errorf("proxy: unsupported scheme %q", proxyURL.Scheme)
}

func dialConnect(ctx context.Context, d *net.Dialer, proxyURL *url.URL, network, addr string) (net.Conn, error) {
	proxyAddr := proxyURL.Host
	if proxyURL.Port() == "" {
		if proxyURL.Scheme == "https" {
			proxyAddr = net.JoinHostPort(proxyURL.Hostname(), "443")
		} else {
			proxyAddr = net.JoinHostPort(proxyURL.Hostname(), "80")
		}
	}
	conn, err := d.DialContext(ctx, network, proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("proxy: dial %s: %w", proxyAddr, err)
	}
	if proxyURL.Scheme == "https" {
		tc := tls.Client(conn, &tls.Config{ServerName: proxyURL.Hostname(), MinVersion: tls.VersionTLS12})
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("proxy: tls to %s: %w", proxyAddr, err)
		}
		conn = tc
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{}) //nolint:errcheck
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if u := proxyURL.User; u != nil {
		pass, _ := u.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + pass))
		req.Header.Set("Proxy-Authorization", "Basic "+cred)
	}
	if err := req.Write(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy: write CONNECT to %s: %w", proxyAddr, err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy: read CONNECT response from %s: %w", proxyAddr, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy: CONNECT %s via %s: %s", addr, proxyAddr, resp.Status)
	}
	if br.Buffered() > 0 {
		// The tunnel must start clean; anything buffered belongs to the
		// upstream and would be lost.
		_ = conn.Close()
		return nil, fmt.Errorf("proxy: CONNECT %s via %s: unexpected data after response", addr, proxyAddr)
	}
	return conn, nil
}
