package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	fhttp2 "github.com/bogdanfinn/fhttp/http2"
	utls "github.com/refraction-networking/utls"

	"github.com/firasghr/uaemulate/fingerprint"
)

// errNoH2 is returned by the HTTP/2 dialer when the server did not select
// h2 during ALPN; Transport falls back to HTTP/1.1.
var errNoH2 = errors.New("client: server did not negotiate h2")

// H2TransportConfig groups the tunable parameters for NewH2Transport.
type H2TransportConfig struct {
	// Settings are the profile's HTTP/2 settings.
	Settings fingerprint.HTTP2Settings

	// IdleConnTimeout is the maximum time an idle HTTP/2 connection is kept
	// alive.  Defaults to 90 s.
	IdleConnTimeout time.Duration
}

// NewH2Transport returns an fhttp *http2.Transport whose connection preface
// and request encoding follow cfg.Settings:
//
//   - the first SETTINGS early frame becomes Settings and SettingsOrder
//   - the connection-level WINDOW_UPDATE becomes ConnectionFlow
//   - PRIORITY early frames become Priorities, sent in order
//   - PseudoHeaderOrder orders the pseudo-headers of every HEADERS frame
func NewH2Transport(cfg H2TransportConfig) *fhttp2.Transport {
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	t := &fhttp2.Transport{
		// See newH1Transport.
		DisableCompression: true,
		IdleConnTimeout:    cfg.IdleConnTimeout,
		PseudoHeaderOrder:  pseudoHeaderOrder(cfg.Settings),
	}

	settingsSeen := false
	for _, f := range cfg.Settings.EarlyFrames {
		switch {
		case f.Settings != nil && !settingsSeen:
			settingsSeen = true
			t.Settings = make(map[fhttp2.SettingID]uint32, len(f.Settings))
			for _, s := range f.Settings {
				id := fhttp2.SettingID(s.ID)
				if _, dup := t.Settings[id]; !dup {
					t.SettingsOrder = append(t.SettingsOrder, id)
				}
				t.Settings[id] = s.Val
			}
		case f.WindowUpdate != nil && f.WindowUpdate.StreamID == 0 && t.ConnectionFlow == 0:
			t.ConnectionFlow = f.WindowUpdate.Increment
		case f.Priority != nil:
			t.Priorities = append(t.Priorities, fhttp2.Priority{
				StreamID: f.Priority.StreamID,
				PriorityParam: fhttp2.PriorityParam{
					StreamDep: f.Priority.Param.StreamDep,
					Exclusive: f.Priority.Param.Exclusive,
					Weight:    f.Priority.Param.Weight,
				},
			})
		}
	}
	if v, ok := t.Settings[fhttp2.SettingMaxHeaderListSize]; ok {
		t.MaxHeaderListSize = v
	}
	return t
}

func pseudoHeaderOrder(s fingerprint.HTTP2Settings) []string {
	if len(s.PseudoHeaderOrder) == 0 {
		return nil
	}
	out := make([]string, len(s.PseudoHeaderOrder))
	for i, p := range s.PseudoHeaderOrder {
		out[i] = string(p)
	}
	return out
}

// h2Pool keeps one HTTP/2 connection per origin, dialled with uTLS and
// handed to the fhttp transport with NewClientConn.  A connection that can
// no longer take requests is replaced on the next request.
type h2Pool struct {
	t         *fhttp2.Transport
	dialTLS   tlsDialFunc
	tlsConfig *tls.Config

	mu    sync.Mutex
	conns map[string]*fhttp2.ClientConn
}

func newH2Pool(t *fhttp2.Transport, helloID utls.ClientHelloID, dial DialFunc, tlsConfig *tls.Config) *h2Pool {
	return &h2Pool{
		t:         t,
		dialTLS:   UTLSDialer(helloID, []string{"h2", "http/1.1"}, dial),
		tlsConfig: tlsConfig,
		conns:     make(map[string]*fhttp2.ClientConn),
	}
}

func (p *h2Pool) RoundTrip(req *fhttp.Request) (*fhttp.Response, error) {
	addr := canonicalAddr(req.URL.Host, "https")
	cc, err := p.conn(req.Context(), addr)
	if err != nil {
		return nil, err
	}
	resp, err := cc.RoundTrip(req)
	if err != nil && !cc.CanTakeNewRequest() {
		p.drop(addr, cc)
	}
	return resp, err
}

func (p *h2Pool) conn(ctx context.Context, addr string) (*fhttp2.ClientConn, error) {
	p.mu.Lock()
	if cc, ok := p.conns[addr]; ok && cc.CanTakeNewRequest() {
		p.mu.Unlock()
		return cc, nil
	}
	p.mu.Unlock()

	raw, err := p.dialTLS(ctx, "tcp", addr, p.tlsConfig)
	if err != nil {
		return nil, err
	}
	if uc, ok := raw.(*utls.UConn); ok && uc.ConnectionState().NegotiatedProtocol != "h2" {
		_ = raw.Close()
		return nil, fmt.Errorf("%w (dial %s)", errNoH2, addr)
	}
	cc, err := p.t.NewClientConn(raw)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("client: h2 preface to %s: %w", addr, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Another request may have dialled the same origin meanwhile.
	if cur, ok := p.conns[addr]; ok && cur.CanTakeNewRequest() {
		_ = cc.Close()
		return cur, nil
	}
	p.conns[addr] = cc
	return cc, nil
}

func (p *h2Pool) drop(addr string, cc *fhttp2.ClientConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[addr] == cc {
		delete(p.conns, addr)
	}
}

// CloseIdleConnections closes every cached connection.
func (p *h2Pool) CloseIdleConnections() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*fhttp2.ClientConn)
	p.mu.Unlock()
	for _, cc := range conns {
		_ = cc.Close()
	}
}
