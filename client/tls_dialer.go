package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	utls "github.com/refraction-networking/utls"

	"github.com/firasghr/uaemulate/fingerprint"
)

// DialFunc opens the raw TCP connection a TLS session runs over.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type tlsDialFunc = func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error)

// helloIDs maps the ClientHello names used in profiles to uTLS parrots.
var helloIDs = map[string]utls.ClientHelloID{
	"chrome_auto":     utls.HelloChrome_Auto,
	"chrome_120":      utls.HelloChrome_120,
	"chrome_120_pq":   utls.HelloChrome_120_PQ,
	"chrome_131":      utls.HelloChrome_131,
	"firefox_auto":    utls.HelloFirefox_Auto,
	"firefox_120":     utls.HelloFirefox_120,
	"safari_auto":     utls.HelloSafari_Auto,
	"edge_auto":       utls.HelloEdge_Auto,
	"ios_auto":        utls.HelloIOS_Auto,
	"golang":          utls.HelloGolang,
	"randomized":      utls.HelloRandomized,
	"randomized_alpn": utls.HelloRandomizedALPN,
}

// HelloIDByName resolves a profile ClientHello name (e.g. "chrome_120").  The
// empty name resolves to HelloGolang, i.e. no TLS emulation.
func HelloIDByName(name string) (utls.ClientHelloID, error) {
	if name == "" {
		return utls.HelloGolang, nil
	}
	id, ok := helloIDs[strings.ToLower(name)]
	if !ok {
		return utls.ClientHelloID{}, fmt.Errorf("client: unknown client hello %q", name)
	}
	return id, nil
}

// helloNameForAgent returns the ClientHello a TLS agent override maps to.
// ok is false for an empty agent, which means no override.
func helloNameForAgent(a fingerprint.TLSAgent) (string, bool) {
	switch a {
	case fingerprint.TLSAgentBoringSSL:
		return "chrome_auto", true
	case fingerprint.TLSAgentNSS:
		return "firefox_auto", true
	case fingerprint.TLSAgentRustls, fingerprint.TLSAgentPreserve:
		return "golang", true
	}
	return "", false
}

// UTLSDialer returns a DialTLSContext-compatible function that performs the TLS
// handshake using the uTLS library, impersonating the browser fingerprint
// described by helloID.
//
// alpn, when non-nil, replaces the protocols of the parrot's ALPN extension;
// the HTTP/1 transport offers only "http/1.1" so servers never select h2 on
// a connection that cannot speak it.  dial opens the underlying connection
// and may tunnel through a proxy; nil dials directly.
//
// tlsCfg may be nil; if provided, its ServerName is used as the SNI hostname
// (the dialer also derives SNI from the addr argument when tlsCfg.ServerName
// is empty).
func UTLSDialer(helloID utls.ClientHelloID, alpn []string, dial DialFunc) tlsDialFunc {
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	return func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: parse addr %q: %w", addr, err)
		}
		sni := host
		if tlsCfg != nil && tlsCfg.ServerName != "" {
			sni = tlsCfg.ServerName
		}

		rawConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: dial %s: %w", addr, err)
		}

		// Only the fields uTLS still respects are forwarded; the rest are
		// dictated by the ClientHelloSpec.
		uCfg := &utls.Config{
			ServerName:         sni,
			NextProtos:         alpn,
			InsecureSkipVerify: tlsCfg != nil && tlsCfg.InsecureSkipVerify, // #nosec G402 – caller-controlled
		}
		if tlsCfg != nil {
			uCfg.RootCAs = tlsCfg.RootCAs
		}

		var uConn *utls.UConn
		if spec, ok := buildClientHelloSpec(helloID, alpn); ok {
			uConn = utls.UClient(rawConn, uCfg, utls.HelloCustom)
			if err := uConn.ApplyPreset(&spec); err != nil {
				_ = rawConn.Close()
				return nil, fmt.Errorf("utls dialer: apply preset for %s: %w", helloID.Str(), err)
			}
		} else {
			uConn = utls.UClient(rawConn, uCfg, helloID)
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = uConn.Close()
			return nil, fmt.Errorf("utls dialer: TLS handshake with %s: %w", addr, err)
		}
		return uConn, nil
	}
}

// buildClientHelloSpec returns the parrot spec of helloID with its ALPN
// protocols replaced by alpn.  ok is false for IDs without a fixed spec
// (HelloGolang, randomized parrots); those are handed to uTLS as-is.
func buildClientHelloSpec(helloID utls.ClientHelloID, alpn []string) (utls.ClientHelloSpec, bool) {
	switch helloID {
	case utls.HelloGolang, utls.HelloRandomized, utls.HelloRandomizedALPN, utls.HelloRandomizedNoALPN:
		return utls.ClientHelloSpec{}, false
	}
	spec, err := utls.UTLSIdToSpec(helloID)
	if err != nil {
		return utls.ClientHelloSpec{}, false
	}
	if alpn != nil {
		for _, ext := range spec.Extensions {
			if a, ok := ext.(*utls.ALPNExtension); ok {
				a.AlpnProtocols = append([]string(nil), alpn...)
			}
		}
	}
	return spec, true
}
