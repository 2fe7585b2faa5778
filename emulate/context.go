package emulate

import (
	"context"

	"github.com/firasghr/uaemulate/clienthint"
	"github.com/firasghr/uaemulate/fingerprint"
	"github.com/firasghr/uaemulate/protocol"
)

type (
	initiatorKey      struct{}
	preserveUAKey     struct{}
	clientHintsKey    struct{}
	requestContextKey struct{}
	headerOrderKey    struct{}
)

// RequestContext overrides the target of a request as seen by the origin
// comparator.  Proxies set it when the real target differs from req.URL.
type RequestContext struct {
	Protocol  protocol.Protocol
	Authority protocol.Authority
}

// WithInitiator pins the request initiator, skipping classification.
func WithInitiator(ctx context.Context, init fingerprint.RequestInitiator) context.Context {
	return context.WithValue(ctx, initiatorKey{}, init)
}

// InitiatorFromContext returns the initiator set by WithInitiator.
func InitiatorFromContext(ctx context.Context) (fingerprint.RequestInitiator, bool) {
	v, ok := ctx.Value(initiatorKey{}).(fingerprint.RequestInitiator)
	return v, ok
}

// WithPreserveUserAgent makes the merge keep the caller's User-Agent.
func WithPreserveUserAgent(ctx context.Context, preserve bool) context.Context {
	return context.WithValue(ctx, preserveUAKey{}, preserve)
}

// PreserveUserAgentFromContext reports the flag set by WithPreserveUserAgent.
func PreserveUserAgentFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(preserveUAKey{}).(bool)
	return v
}

// WithRequestedClientHints records the client hints the origin asked for
// (Accept-CH).
func WithRequestedClientHints(ctx context.Context, hints []clienthint.Hint) context.Context {
	return context.WithValue(ctx, clientHintsKey{}, hints)
}

// RequestedClientHintsFromContext returns the hints set by
// WithRequestedClientHints.
func RequestedClientHintsFromContext(ctx context.Context) []clienthint.Hint {
	v, _ := ctx.Value(clientHintsKey{}).([]clienthint.Hint)
	return v
}

// WithRequestContext overrides the request target.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFromContext returns the override set by WithRequestContext.
func RequestContextFromContext(ctx context.Context) (RequestContext, bool) {
	v, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return v, ok
}

// WithHeaderOrder declares the caller's original header order, for callers
// whose own client lost it.  A header-order metadata header on the request
// takes precedence.
func WithHeaderOrder(ctx context.Context, names []string) context.Context {
	return context.WithValue(ctx, headerOrderKey{}, names)
}

// HeaderOrderFromContext returns the order set by WithHeaderOrder.
func HeaderOrderFromContext(ctx context.Context) []string {
	v, _ := ctx.Value(headerOrderKey{}).([]string)
	return v
}
