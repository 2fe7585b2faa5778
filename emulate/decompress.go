package emulate

import (
	"bufio"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// acceptedEncodings lists the content codings of an Accept-Encoding header,
// lower-cased and without those refused with q=0.
func acceptedEncodings(h http.Header) []string {
	var out []string
	var lines []string
	for k, v := range h {
		if strings.EqualFold(k, "Accept-Encoding") {
			lines = append(lines, v...)
		}
	}
	for _, line := range lines {
		for _, item := range strings.Split(line, ",") {
			coding, params, _ := strings.Cut(strings.TrimSpace(item), ";")
			coding = strings.ToLower(strings.TrimSpace(coding))
			if coding == "" || refused(params) {
				continue
			}
			out = append(out, coding)
		}
	}
	return out
}

func refused(params string) bool {
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), "q") {
			v = strings.TrimRight(strings.TrimSpace(v), "0")
			return v == "" || v == "." || v == "0."
		}
	}
	return false
}

// decompressResponse decodes resp's body in place when its Content-Encoding
// is one the caller did not accept.  It reports whether it did.
func decompressResponse(resp *http.Response, accepted []string) bool {
	if resp == nil || resp.Body == nil {
		return false
	}
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if enc == "" || enc == "identity" || strings.Contains(enc, ",") {
		return false
	}
	for _, a := range accepted {
		if a == enc || a == "*" {
			return false
		}
	}
	if !decodable(enc) {
		return false
	}
	resp.Body = &decodingBody{body: resp.Body, enc: enc}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return true
}

func decodable(enc string) bool {
	switch enc {
	case "gzip", "x-gzip", "deflate", "br", "zstd":
		return true
	}
	return false
}

// decodingBody creates its decoder on first Read so that empty bodies and
// HEAD responses never fail.
type decodingBody struct {
	body io.ReadCloser
	enc  string
	r    io.Reader
	err  error
}

func (b *decodingBody) Read(p []byte) (int, error) {
	if b.r == nil && b.err == nil {
		b.r, b.err = newDecoder(b.enc, b.body)
	}
	if b.err != nil {
		return 0, b.err
	}
	return b.r.Read(p)
}

func (b *decodingBody) Close() error {
	switch r := b.r.(type) {
	case io.Closer:
		_ = r.Close()
	case *zstd.Decoder:
		r.Close()
	}
	return b.body.Close()
}

func newDecoder(enc string, r io.Reader) (io.Reader, error) {
	switch enc {
	case "gzip", "x-gzip":
		return gzip.NewReader(r)
	case "br":
		return brotli.NewReader(r), nil
	case "zstd":
		return zstd.NewReader(r)
	}
	// "deflate" is zlib-wrapped per RFC 9110, but servers also send raw
	// deflate streams.
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err == nil && isZlibHeader(head) {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

func isZlibHeader(b []byte) bool {
	return b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}
