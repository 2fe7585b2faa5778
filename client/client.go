// Package client provides the outbound HTTP transport of the emulator: uTLS
// ClientHellos, and fhttp for HTTP/1.1 with exact header order and casing and
// for HTTP/2 with the profile's SETTINGS, PRIORITY frames and pseudo-header
// order.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"sync"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	"golang.org/x/net/publicsuffix"

	"github.com/firasghr/uaemulate/fingerprint"
	"github.com/firasghr/uaemulate/logger"
	"github.com/firasghr/uaemulate/proxy"
)

// TransportConfig groups the knobs of NewTransport.
type TransportConfig struct {
	// ClientHello is used for requests that carry no ConnectParams.  Empty
	// means the Go TLS stack.
	ClientHello string

	// Proxies, when non-empty, are rotated per new connection.
	Proxies *proxy.Pool

	// TLSConfig supplies RootCAs and InsecureSkipVerify; may be nil.
	TLSConfig *tls.Config

	DialTimeout         time.Duration
	IdleConnTimeout     time.Duration
	MaxIdleConnsPerHost int

	Log *logger.Logger
}

// Transport routes each request to a connection pool matching the
// ConnectParams in its context, and within the pool to HTTP/2 or HTTP/1.1.
// Both sides are fhttp transports, so the header order of the OrderedHeader
// attached with WithOrderedHeader reaches the wire.
//
// A request is sent over HTTP/2 when it is an https request with
// ProtoMajor 2; if the server does not negotiate h2 the request falls back
// to HTTP/1.1 when its body can be replayed.
//
// Connections are never shared between profiles: the TLS ClientHello and the
// HTTP/2 preface are per connection.  HTTP/1 pools are keyed by profile,
// ClientHello and header casing; HTTP/2 pools by profile, ClientHello and
// the HTTP/2 settings, so a pool is always built from the settings of the
// requests it serves.
type Transport struct {
	cfg TransportConfig

	mu      sync.Mutex
	h1Pools map[string]*fhttp.Transport
	h2Pools map[string]*h2Pool
}

// NewTransport returns a Transport for cfg.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if _, err := HelloIDByName(cfg.ClientHello); err != nil {
		return nil, err
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 16
	}
	return &Transport{
		cfg:     cfg,
		h1Pools: make(map[string]*fhttp.Transport),
		h2Pools: make(map[string]*h2Pool),
	}, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	params, _ := ConnectParamsFromContext(ctx)
	hello := params.ClientHello
	if hello == "" {
		hello = t.cfg.ClientHello
	}
	if ua, ok := fingerprint.UserAgentFromContext(ctx); ok {
		if name, ok := helloNameForAgent(ua.TLSAgent); ok {
			hello = name
		}
	}

	if req.URL.Scheme == "https" && req.ProtoMajor == 2 {
		p, err := t.h2Pool(params, hello)
		if err != nil {
			closeBody(req)
			return nil, err
		}
		var pseudo []string
		if params.HTTP2 != nil {
			pseudo = pseudoHeaderOrder(*params.HTTP2)
		}
		retry := rewindable(req)
		resp, err := p.RoundTrip(toFHTTP(req, false, pseudo))
		if err == nil {
			return fromFHTTP(resp, req), nil
		}
		if !errors.Is(err, errNoH2) || !retry {
			return nil, err
		}
		t.cfg.Log.Debugf("client: %s did not negotiate h2, retrying over HTTP/1.1", req.URL.Host)
		r2, rerr := rewind(req)
		if rerr != nil {
			return nil, err
		}
		r2.Proto, r2.ProtoMajor, r2.ProtoMinor = "HTTP/1.1", 1, 1
		req = r2
	}

	titleCase := params.HTTP1 != nil && params.HTTP1.TitleCaseHeaders
	h1, err := t.h1Pool(params, hello, titleCase)
	if err != nil {
		closeBody(req)
		return nil, err
	}
	resp, err := h1.RoundTrip(toFHTTP(req, titleCase, nil))
	if err != nil {
		return nil, err
	}
	return fromFHTTP(resp, req), nil
}

func (t *Transport) h1Pool(params ConnectParams, hello string, titleCase bool) (*fhttp.Transport, error) {
	key := params.Profile + "|" + hello + "|" + strconv.FormatBool(titleCase)

	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.h1Pools[key]; ok {
		return p, nil
	}
	helloID, err := HelloIDByName(hello)
	if err != nil {
		return nil, err
	}
	dial := t.dialFunc()
	p := newH1Transport(dial, UTLSDialer(helloID, []string{"http/1.1"}, dial), t.cfg.TLSConfig,
		t.cfg.IdleConnTimeout, t.cfg.MaxIdleConnsPerHost)
	t.h1Pools[key] = p
	t.logNewPool("http/1.1", params.Profile, hello)
	return p, nil
}

func (t *Transport) h2Pool(params ConnectParams, hello string) (*h2Pool, error) {
	var settings fingerprint.HTTP2Settings
	if params.HTTP2 != nil {
		settings = *params.HTTP2
	}
	sig, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("client: encode http2 settings: %w", err)
	}
	key := params.Profile + "|" + hello + "|" + string(sig)

	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.h2Pools[key]; ok {
		return p, nil
	}
	helloID, err := HelloIDByName(hello)
	if err != nil {
		return nil, err
	}
	h2t := NewH2Transport(H2TransportConfig{Settings: settings, IdleConnTimeout: t.cfg.IdleConnTimeout})
	p := newH2Pool(h2t, helloID, t.dialFunc(), t.cfg.TLSConfig)
	t.h2Pools[key] = p
	t.logNewPool("h2", params.Profile, hello)
	return p, nil
}

func (t *Transport) logNewPool(proto, profile, hello string) {
	t.cfg.Log.WithFields(map[string]interface{}{
		"protocol":     proto,
		"profile":      profile,
		"client_hello": hello,
	}).Debug("client: new connection pool")
}

func (t *Transport) dialFunc() DialFunc {
	pool, timeout := t.cfg.Proxies, t.cfg.DialTimeout
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return proxy.Dial(ctx, pool.Next(), network, addr, timeout)
	}
}

// Pools returns the number of connection pools created so far, HTTP/1 and
// HTTP/2 counted separately.
func (t *Transport) Pools() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.h1Pools) + len(t.h2Pools)
}

// CloseIdleConnections closes idle HTTP/1 connections and every HTTP/2
// connection of every pool.
func (t *Transport) CloseIdleConnections() {
	t.mu.Lock()
	h1 := make([]*fhttp.Transport, 0, len(t.h1Pools))
	for _, p := range t.h1Pools {
		h1 = append(h1, p)
	}
	h2 := make([]*h2Pool, 0, len(t.h2Pools))
	for _, p := range t.h2Pools {
		h2 = append(h2, p)
	}
	t.mu.Unlock()
	for _, p := range h1 {
		p.CloseIdleConnections()
	}
	for _, p := range h2 {
		p.CloseIdleConnections()
	}
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

// NewHTTPClient wraps rt in a *http.Client that is safe for concurrent use.
//
// The cookie jar honours the public-suffix list so cookies never leak
// across effective top-level domains (e.g. .co.uk).  Redirects are followed
// up to the net/http default of 10.
func NewHTTPClient(rt http.RoundTripper, timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("client: create cookie jar: %w", err)
	}
	return &http.Client{
		Transport: rt,
		Jar:       jar,
		Timeout:   timeout,
	}, nil
}
