package emulate

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/firasghr/uaemulate/clienthint"
	"github.com/firasghr/uaemulate/fingerprint"
)

// Overwrites are emulation hints a caller passes in a metadata header when
// it cannot set them on the context, e.g. through a forward proxy.
type Overwrites struct {
	UserAgent         string
	HTTPAgent         fingerprint.HTTPAgent
	TLSAgent          fingerprint.TLSAgent
	PreserveUserAgent *bool
	Initiator         *fingerprint.RequestInitiator
	ClientHints       []clienthint.Hint
}

// ParseOverwrites parses a URL-encoded form such as
// "ua=Mozilla%2F5.0...&http=firefox&preserve_ua=true&req_init=xhr&ch=rtt,ect".
func ParseOverwrites(value string) (Overwrites, error) {
	var o Overwrites
	form, err := url.ParseQuery(value)
	if err != nil {
		return o, fmt.Errorf("emulate: parse overwrites: %w", err)
	}
	for key := range form {
		switch key {
		case "ua", "http", "tls", "preserve_ua", "req_init", "ch":
		default:
			return o, fmt.Errorf("emulate: unknown overwrite %q", key)
		}
	}

	o.UserAgent = form.Get("ua")
	if v := form.Get("http"); v != "" {
		if o.HTTPAgent, err = fingerprint.ParseHTTPAgent(v); err != nil {
			return o, fmt.Errorf("emulate: overwrite http: %w", err)
		}
	}
	if v := form.Get("tls"); v != "" {
		if o.TLSAgent, err = fingerprint.ParseTLSAgent(v); err != nil {
			return o, fmt.Errorf("emulate: overwrite tls: %w", err)
		}
	}
	if v := form.Get("preserve_ua"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return o, fmt.Errorf("emulate: overwrite preserve_ua: %w", err)
		}
		o.PreserveUserAgent = &b
	}
	if v := form.Get("req_init"); v != "" {
		init, err := fingerprint.ParseInitiator(v)
		if err != nil {
			return o, fmt.Errorf("emulate: overwrite req_init: %w", err)
		}
		o.Initiator = &init
	}
	if v := form.Get("ch"); v != "" {
		if o.ClientHints, err = clienthint.ParseList(v); err != nil {
			return o, fmt.Errorf("emulate: overwrite ch: %w", err)
		}
	}
	return o, nil
}

// Apply stores the overwrites in ctx.  Agent overrides only take effect
// when a user agent is known, either from ctx or from o.UserAgent.
func (o Overwrites) Apply(ctx context.Context) context.Context {
	ua, ok := fingerprint.UserAgentFromContext(ctx)
	if o.UserAgent != "" {
		ua, ok = fingerprint.ParseUserAgent(o.UserAgent), true
	}
	if ok {
		if o.HTTPAgent != "" {
			ua.HTTPAgent = o.HTTPAgent
		}
		if o.TLSAgent != "" {
			ua.TLSAgent = o.TLSAgent
		}
		ctx = fingerprint.WithUserAgent(ctx, ua)
	}
	if o.PreserveUserAgent != nil {
		ctx = WithPreserveUserAgent(ctx, *o.PreserveUserAgent)
	}
	if o.Initiator != nil {
		ctx = WithInitiator(ctx, *o.Initiator)
	}
	if len(o.ClientHints) > 0 {
		ctx = WithRequestedClientHints(ctx, o.ClientHints)
	}
	return ctx
}
