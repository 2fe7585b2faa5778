package emulate

import (
	"fmt"
	"net/http"

	"github.com/firasghr/uaemulate/client"
	"github.com/firasghr/uaemulate/fingerprint"
	"github.com/firasghr/uaemulate/logger"
	"github.com/firasghr/uaemulate/metrics"
)

// Transport is an http.RoundTripper that selects a profile for every
// request, emulates its headers and hands it to Base.
//
// A typical stack is:
//
//	tr, _ := client.NewTransport(client.TransportConfig{})
//	rt := &emulate.Transport{Base: tr, Provider: fingerprint.BuiltinDatabase(fingerprint.FallbackRotate)}
type Transport struct {
	// Base sends the emulated request.  It should honor the ordered header
	// and connection parameters in the request context; *client.Transport
	// does.  Defaults to http.DefaultTransport.
	Base http.RoundTripper

	Provider fingerprint.Provider

	// Optional sends requests unmodified when no profile can be selected
	// instead of failing them with ErrProfileRequired.
	Optional bool

	// TryAutoDetectUserAgent parses the request's own User-Agent to steer
	// profile selection when the context carries no UserAgent.
	TryAutoDetectUserAgent bool

	// HeaderOrderHeader and OverwritesHeader name optional metadata
	// headers; see ParseHeaderOrder and ParseOverwrites.  Neither is
	// forwarded.
	HeaderOrderHeader string
	OverwritesHeader  string

	Log     *logger.Logger
	Metrics *metrics.Metrics
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.Metrics.IncrementTotal()
	ctx := req.Context()
	req = req.Clone(ctx)

	if t.OverwritesHeader != "" {
		if v := req.Header.Get(t.OverwritesHeader); v != "" {
			ov, err := ParseOverwrites(v)
			if err != nil {
				return nil, t.reject(req, fmt.Errorf("%w: %w", ErrInvalidOverwrites, err))
			}
			ctx = ov.Apply(ctx)
		}
		req.Header.Del(t.OverwritesHeader)
	}

	if t.TryAutoDetectUserAgent {
		if _, ok := fingerprint.UserAgentFromContext(ctx); !ok {
			if v := req.Header.Get("User-Agent"); v != "" {
				ua := fingerprint.ParseUserAgent(v)
				t.Log.Debugf("emulate: user agent auto-detected: %s/%d (%s)", ua.Kind, ua.Version, ua.Platform)
				ctx = fingerprint.WithUserAgent(ctx, ua)
			} else {
				t.Log.Debug("emulate: user agent auto-detection not possible: no User-Agent header")
			}
		}
	}
	req = req.WithContext(ctx)

	var profile *fingerprint.Profile
	if t.Provider != nil {
		profile = t.Provider.Select(ctx)
	}
	if profile == nil {
		if !t.Optional {
			return nil, t.reject(req, ErrProfileRequired)
		}
		t.Log.Debugf("emulate: no profile for %s, passing through", req.URL.Redacted())
		return t.passThrough(req)
	}
	t.Log.WithFields(map[string]interface{}{
		"ua_kind":    string(profile.UAKind),
		"ua_version": profile.UAVersion,
		"platform":   string(profile.Platform),
	}).Debug("emulate: profile selected")

	if ua, ok := fingerprint.UserAgentFromContext(ctx); ok && ua.HTTPAgent == fingerprint.HTTPAgentPreserve {
		t.Log.Debugf("emulate: %s: http agent preserved, skipping header emulation", profile)
		ctx = client.WithConnectParams(ctx, client.ConnectParams{
			Profile:     profile.String(),
			ClientHello: profile.TLS.ClientHello,
		})
		return t.passThrough(req.WithContext(ctx))
	}

	engine := Engine{HeaderOrderHeader: t.HeaderOrderHeader, Log: t.Log}
	out, err := engine.EmulateRequest(req, profile)
	if err != nil {
		return nil, t.reject(req, err)
	}
	accepted := acceptedEncodings(req.Header)

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		t.Metrics.IncrementUpstreamFailed()
		return nil, err
	}
	t.Metrics.IncrementEmulated()
	if headerValue(out.Header, "Accept-Encoding") != headerValue(req.Header, "Accept-Encoding") && decompressResponse(resp, accepted) {
		t.Log.Debugf("emulate: decoding response body of %s", req.URL.Redacted())
		t.Metrics.IncrementDecompressed()
	}
	return resp, nil
}

func (t *Transport) passThrough(req *http.Request) (*http.Response, error) {
	if t.HeaderOrderHeader != "" {
		req.Header.Del(t.HeaderOrderHeader)
	}
	resp, err := t.base().RoundTrip(req)
	if err != nil {
		t.Metrics.IncrementUpstreamFailed()
		return nil, err
	}
	t.Metrics.IncrementPassedThrough()
	return resp, nil
}

// reject closes the request body, as RoundTrip must, and counts the
// rejection.
func (t *Transport) reject(req *http.Request, err error) error {
	if req.Body != nil {
		_ = req.Body.Close()
	}
	t.Metrics.IncrementRejected()
	t.Log.Debugf("emulate: %s rejected: %v", req.URL.Redacted(), err)
	return err
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// CloseIdleConnections forwards to Base.
func (t *Transport) CloseIdleConnections() {
	if c, ok := t.base().(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
