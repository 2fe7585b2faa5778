// Package emulate rewrites outgoing HTTP requests so that their headers and
// connection parameters match a browser profile.
//
// Merge is the pure header merge; Engine applies it to an *http.Request;
// Transport selects a profile per request and wraps an outbound
// http.RoundTripper (normally a *client.Transport).
package emulate

import (
	"net/http"
	"strings"

	"github.com/firasghr/uaemulate/client"
	"github.com/firasghr/uaemulate/fingerprint"
	"github.com/firasghr/uaemulate/logger"
	"github.com/firasghr/uaemulate/protocol"
)

// Engine emulates the headers of a single request for a given profile.  It
// holds no per-request state and is safe for concurrent use.
type Engine struct {
	// HeaderOrderHeader names an optional request header carrying the
	// caller's header order as CSV.  It is never forwarded.
	HeaderOrderHeader string

	Log *logger.Logger
}

// EmulateRequest returns a copy of req whose headers follow profile.  The
// returned request carries the emulated OrderedHeader and the connection
// parameters in its context.
//
// When the profile has no template for the request's version or initiator
// the headers are left alone and only the connection parameters are set.
//
// Host is opt-in like Referer or Cookie, but net/http moves a caller's Host
// header into req.Host and http.NewRequest fills req.Host from the URL, so
// every request counts as having sent one.  Host is therefore emitted, with
// the value of req.Host, exactly when the template lists it: HTTP/1
// templates do, HTTP/2 templates carry :authority instead.
func (e *Engine) EmulateRequest(req *http.Request, profile *fingerprint.Profile) (*http.Request, error) {
	ctx := req.Context()
	out := req.Clone(ctx)

	order := HeaderOrderFromContext(ctx)
	if e.HeaderOrderHeader != "" {
		if v := out.Header.Get(e.HeaderOrderHeader); v != "" {
			parsed, err := ParseHeaderOrder(v)
			if err != nil {
				return nil, err
			}
			order = parsed
		}
		out.Header.Del(e.HeaderOrderHeader)
	}

	version := requestVersion(req)
	ctx = InjectConnectParams(ctx, version, profile, e.Log)

	set := profile.HTTP.Templates(version)
	if set == nil {
		e.Log.Debugf("emulate: %s: no header templates for %s, headers passed through", profile, version)
		return out.WithContext(ctx), nil
	}
	var hint *fingerprint.RequestInitiator
	if init, ok := InitiatorFromContext(ctx); ok {
		hint = &init
	}
	init := fingerprint.Classify(hint, out.Method, version, out.Header)
	template, ok := fingerprint.ResolveTemplate(set, init)
	if !ok {
		e.Log.Debugf("emulate: %s: no %s template for %s, headers passed through", profile, init, version)
		return out.WithContext(ctx), nil
	}

	original := out.Header.Clone()
	if original == nil {
		original = http.Header{}
	}
	if host := requestHost(out); host != "" && hasHeader(template, "Host") && headerValue(original, "Host") == "" {
		original.Set("Host", host)
	}

	mc := MergeContext{
		Original:          original,
		OriginalOrder:     order,
		PreserveUserAgent: PreserveUserAgentFromContext(ctx),
		Method:            out.Method,
		RequestedHints:    RequestedClientHintsFromContext(ctx),
		Log:               e.Log,
	}
	if rc, ok := RequestContextFromContext(ctx); ok {
		mc.TargetProtocol, mc.TargetAuthority = rc.Protocol, rc.Authority
	} else if p, a, err := protocol.FromRequest(out); err == nil {
		mc.TargetProtocol, mc.TargetAuthority = p, a
	} else {
		e.Log.Debugf("emulate: target of %s: %v", out.URL.Redacted(), err)
		mc.TargetProtocol = p
	}

	headers := Merge(template, mc)
	headers.ApplyToRequest(out)
	e.Log.WithFields(map[string]interface{}{
		"profile":   profile.String(),
		"initiator": init.String(),
		"version":   version.String(),
		"headers":   headers.Len(),
	}).Debug("emulate: headers emulated")

	return out.WithContext(client.WithOrderedHeader(ctx, headers)), nil
}

// requestVersion treats an unset protocol version as HTTP/1.1, as net/http
// does for outgoing requests.
func requestVersion(req *http.Request) fingerprint.HTTPVersion {
	if req.ProtoMajor == 0 && req.ProtoMinor == 0 {
		return fingerprint.HTTP11
	}
	return fingerprint.VersionOf(req.ProtoMajor, req.ProtoMinor)
}

func requestHost(req *http.Request) string {
	if req.Host != "" {
		return req.Host
	}
	if req.URL != nil {
		return req.URL.Host
	}
	return ""
}

func hasHeader(l fingerprint.TemplateHeaderList, name string) bool {
	for _, h := range l {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}
	return false
}
