package client

import (
	"context"

	"github.com/firasghr/uaemulate/fingerprint"
)

// ConnectParams are the per-request connection settings of an emulated
// profile.  The emulation layer attaches them to the request context and
// Transport picks the connection pool that matches them.
type ConnectParams struct {
	// Profile names the profile the params come from; it keys the pool.
	Profile string
	// ClientHello names the uTLS ClientHello, see HelloIDByName.
	ClientHello string
	HTTP1       *fingerprint.HTTP1Settings
	HTTP2       *fingerprint.HTTP2Settings
}

type connectParamsKey struct{}

// WithConnectParams attaches p to ctx.
func WithConnectParams(ctx context.Context, p ConnectParams) context.Context {
	return context.WithValue(ctx, connectParamsKey{}, p)
}

// ConnectParamsFromContext returns the params attached by WithConnectParams.
func ConnectParamsFromContext(ctx context.Context) (ConnectParams, bool) {
	p, ok := ctx.Value(connectParamsKey{}).(ConnectParams)
	return p, ok
}

// WithHTTP1Settings attaches HTTP/1 settings, keeping any other params
// already present in ctx.
func WithHTTP1Settings(ctx context.Context, s fingerprint.HTTP1Settings) context.Context {
	p, _ := ConnectParamsFromContext(ctx)
	p.HTTP1 = &s
	return WithConnectParams(ctx, p)
}

// HTTP1SettingsFromContext returns the HTTP/1 settings attached to ctx.
func HTTP1SettingsFromContext(ctx context.Context) (fingerprint.HTTP1Settings, bool) {
	p, ok := ConnectParamsFromContext(ctx)
	if !ok || p.HTTP1 == nil {
		return fingerprint.HTTP1Settings{}, false
	}
	return *p.HTTP1, true
}

// WithHTTP2Settings attaches HTTP/2 settings, keeping any other params
// already present in ctx.
func WithHTTP2Settings(ctx context.Context, s fingerprint.HTTP2Settings) context.Context {
	p, _ := ConnectParamsFromContext(ctx)
	p.HTTP2 = &s
	return WithConnectParams(ctx, p)
}

// HTTP2SettingsFromContext returns the HTTP/2 settings attached to ctx.
func HTTP2SettingsFromContext(ctx context.Context) (fingerprint.HTTP2Settings, bool) {
	p, ok := ConnectParamsFromContext(ctx)
	if !ok || p.HTTP2 == nil {
		return fingerprint.HTTP2Settings{}, false
	}
	return *p.HTTP2, true
}
