package client

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
)

// newH1Transport returns an fhttp HTTP/1.1 transport.  fhttp writes the
// request headers in the order listed under fhttp.HeaderOrderKey, with the
// key casing of the header map; net/http would sort and canonicalise them.
func newH1Transport(dial DialFunc, dialTLS tlsDialFunc, tlsConfig *tls.Config, idle time.Duration, maxIdlePerHost int) *fhttp.Transport {
	return &fhttp.Transport{
		DialContext: dial,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLS(ctx, network, addr, tlsConfig)
		},
		// Accept-Encoding comes from the emulated template; the transport
		// must not add its own and decompress behind our back.
		DisableCompression:  true,
		IdleConnTimeout:     idle,
		MaxIdleConnsPerHost: maxIdlePerHost,
	}
}

// toFHTTP converts req for the fhttp transports.  The header map is copied,
// optionally title-cased, and annotated with the order of the OrderedHeader
// attached to the request context and with pseudo, the HTTP/2
// pseudo-header order.
func toFHTTP(req *http.Request, titleCase bool, pseudo []string) *fhttp.Request {
	h := make(fhttp.Header, len(req.Header)+2)
	for k, vv := range req.Header {
		if titleCase {
			k = http.CanonicalHeaderKey(k)
		}
		h[k] = append(h[k], vv...)
	}
	if ordered, ok := OrderedHeaderFromContext(req.Context()); ok {
		h[fhttp.HeaderOrderKey] = ordered.orderKeys()
	}
	if len(pseudo) > 0 {
		h[fhttp.PHeaderOrderKey] = pseudo
	}

	body := req.Body
	if body == http.NoBody {
		body = fhttp.NoBody
	}
	fr := &fhttp.Request{
		Method:           req.Method,
		URL:              req.URL,
		Proto:            req.Proto,
		ProtoMajor:       req.ProtoMajor,
		ProtoMinor:       req.ProtoMinor,
		Header:           h,
		Body:             body,
		GetBody:          req.GetBody,
		ContentLength:    req.ContentLength,
		TransferEncoding: req.TransferEncoding,
		Close:            req.Close,
		Host:             req.Host,
		Trailer:          fhttp.Header(req.Trailer),
	}
	if fr.Method == "" {
		fr.Method = http.MethodGet
	}
	return fr.WithContext(req.Context())
}

// fromFHTTP converts an fhttp response back to net/http.  The trailer map is
// shared, so trailers fhttp fills in after the body is read stay visible.
func fromFHTTP(resp *fhttp.Response, req *http.Request) *http.Response {
	return &http.Response{
		Status:           resp.Status,
		StatusCode:       resp.StatusCode,
		Proto:            resp.Proto,
		ProtoMajor:       resp.ProtoMajor,
		ProtoMinor:       resp.ProtoMinor,
		Header:           http.Header(resp.Header),
		Body:             resp.Body,
		ContentLength:    resp.ContentLength,
		TransferEncoding: resp.TransferEncoding,
		Close:            resp.Close,
		Uncompressed:     resp.Uncompressed,
		Trailer:          http.Header(resp.Trailer),
		Request:          req,
	}
}

func canonicalAddr(host, scheme string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	h := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if scheme == "https" {
		return net.JoinHostPort(h, "443")
	}
	return net.JoinHostPort(h, "80")
}

func rewindable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	r2 := req.Clone(req.Context())
	r2.Body = body
	return r2, nil
}
