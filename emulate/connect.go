package emulate

import (
	"context"

	"github.com/firasghr/uaemulate/client"
	"github.com/firasghr/uaemulate/fingerprint"
	"github.com/firasghr/uaemulate/logger"
)

// ConnectParams returns the connection parameters of p for a request of
// the given HTTP version.  The TLS identity is always set; HTTP/1 settings
// only for HTTP/1.x and HTTP/2 settings only for HTTP/2 when the profile
// defines a pseudo-header order or early frames.
func ConnectParams(version fingerprint.HTTPVersion, p *fingerprint.Profile) client.ConnectParams {
	params := client.ConnectParams{
		Profile:     p.String(),
		ClientHello: p.TLS.ClientHello,
	}
	switch {
	case version.IsHTTP1():
		s := p.HTTP.H1.Settings
		params.HTTP1 = &s
	case version == fingerprint.HTTP2:
		s := p.HTTP.H2.Settings
		if len(s.PseudoHeaderOrder) > 0 || len(s.EarlyFrames) > 0 {
			params.HTTP2 = &s
		}
	}
	return params
}

// InjectConnectParams attaches ConnectParams(version, p) to ctx for the
// outbound transport.
func InjectConnectParams(ctx context.Context, version fingerprint.HTTPVersion, p *fingerprint.Profile, log *logger.Logger) context.Context {
	params := ConnectParams(version, p)
	switch {
	case params.HTTP1 != nil:
		log.Debugf("emulate: %s: http/1 title case headers=%t", p, params.HTTP1.TitleCaseHeaders)
	case params.HTTP2 != nil:
		log.Debugf("emulate: %s: h2 pseudo order %v, %d early frames", p, params.HTTP2.PseudoHeaderOrder, len(params.HTTP2.EarlyFrames))
	case !version.IsHTTP1() && version != fingerprint.HTTP2:
		log.Debugf("emulate: %s: no connection emulation for %s", p, version)
	}
	return client.WithConnectParams(ctx, params)
}
