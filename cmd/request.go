package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/firasghr/uaemulate/clienthint"
	"github.com/firasghr/uaemulate/emulate"
	"github.com/firasghr/uaemulate/fingerprint"
)

// addRequestFlags registers the flags inspect and fetch share.
func addRequestFlags(c *cobra.Command) {
	c.Flags().StringP("method", "X", http.MethodGet, "Request method")
	c.Flags().StringArrayP("header", "H", nil, "Request header \"Name: value\" (repeatable, order kept)")
	c.Flags().StringP("data", "d", "", "Request body")
	c.Flags().String("initiator", "", "Force the initiator: navigate, fetch, xhr, form, ws")
	c.Flags().String("ua", "", "User-Agent that steers profile selection")
	c.Flags().String("profile", "", "Profile name; overrides --ua")
	c.Flags().Bool("http2", false, "Emulate an HTTP/2 request")
	c.Flags().Bool("preserve-ua", false, "Keep the request's own User-Agent")
	c.Flags().String("referer", "", "Referer used to compute Sec-Fetch-Site")
	c.Flags().StringSlice("client-hint", nil, "Client hints the server requested (e.g. arch,model)")
}

// buildRequest assembles the request described by the shared flags and
// selects its profile from db.
func buildRequest(c *cobra.Command, db *fingerprint.Database, rawURL string) (*http.Request, *fingerprint.Profile, error) {
	method, _ := c.Flags().GetString("method")
	headers, _ := c.Flags().GetStringArray("header")
	data, _ := c.Flags().GetString("data")

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), rawURL, body)
	if err != nil {
		return nil, nil, err
	}

	entries, err := parseHeaderFlags(headers)
	if err != nil {
		return nil, nil, err
	}
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		req.Header.Add(e.Name, e.Value)
		order = append(order, e.Name)
	}
	if v, _ := c.Flags().GetString("referer"); v != "" {
		req.Header.Set("Referer", v)
		order = append(order, "Referer")
	}
	ctx = emulate.WithHeaderOrder(req.Context(), order)

	if v, _ := c.Flags().GetString("initiator"); v != "" {
		init, err := fingerprint.ParseInitiator(v)
		if err != nil {
			return nil, nil, err
		}
		ctx = emulate.WithInitiator(ctx, init)
	}
	if v, _ := c.Flags().GetBool("preserve-ua"); v {
		ctx = emulate.WithPreserveUserAgent(ctx, true)
	}
	if v, _ := c.Flags().GetStringSlice("client-hint"); len(v) > 0 {
		hints, err := clienthint.ParseList(strings.Join(v, ","))
		if err != nil {
			return nil, nil, err
		}
		ctx = emulate.WithRequestedClientHints(ctx, hints)
	}
	if v, _ := c.Flags().GetBool("http2"); v {
		req.Proto, req.ProtoMajor, req.ProtoMinor = "HTTP/2.0", 2, 0
	}

	ua, _ := c.Flags().GetString("ua")
	if ua == "" {
		ua = req.Header.Get("User-Agent")
	}
	if ua != "" {
		ctx = fingerprint.WithUserAgent(ctx, fingerprint.ParseUserAgent(ua))
	}
	req = req.WithContext(ctx)

	var profile *fingerprint.Profile
	if name, _ := c.Flags().GetString("profile"); name != "" {
		profile, err = profileByName(db, name)
		if err != nil {
			return nil, nil, err
		}
	} else if profile = db.Select(ctx); profile == nil {
		return nil, nil, fmt.Errorf("%w (try --profile or --fallback first)", emulate.ErrProfileRequired)
	}
	return req, profile, nil
}
