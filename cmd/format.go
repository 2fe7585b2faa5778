package cmd

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/firasghr/uaemulate/client"
)

// parseHeaderFlags turns repeated "Name: value" flags into a header in
// flag order.
func parseHeaderFlags(values []string) ([]client.HeaderEntry, error) {
	out := make([]client.HeaderEntry, 0, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, want \"Name: value\"", v)
		}
		out = append(out, client.HeaderEntry{Name: name, Value: strings.TrimSpace(value)})
	}
	return out, nil
}

func printOrderedHeader(w io.Writer, h *client.OrderedHeader) {
	for _, e := range h.Entries() {
		fmt.Fprintf(w, "%s: %s\n", e.Name, e.Value)
	}
}

// printHeader prints h sorted by name, for headers whose wire order is not
// known.
func printHeader(w io.Writer, h http.Header) {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range h[name] {
			fmt.Fprintf(w, "%s: %s\n", name, v)
		}
	}
}

func printConnectParams(w io.Writer, p client.ConnectParams) {
	fmt.Fprintf(w, "profile:      %s\n", p.Profile)
	hello := p.ClientHello
	if hello == "" {
		hello = "(go default)"
	}
	fmt.Fprintf(w, "client hello: %s\n", hello)
	if p.HTTP1 != nil {
		fmt.Fprintf(w, "http/1:       title-case headers=%v\n", p.HTTP1.TitleCaseHeaders)
	}
	if p.HTTP2 == nil {
		return
	}
	if len(p.HTTP2.PseudoHeaderOrder) > 0 {
		order := make([]string, len(p.HTTP2.PseudoHeaderOrder))
		for i, ph := range p.HTTP2.PseudoHeaderOrder {
			order[i] = string(ph)
		}
		fmt.Fprintf(w, "http/2:       pseudo-header order %s\n", strings.Join(order, " "))
	}
	for _, f := range p.HTTP2.EarlyFrames {
		switch {
		case f.Settings != nil:
			parts := make([]string, len(f.Settings))
			for i, s := range f.Settings {
				parts[i] = s.String()
			}
			fmt.Fprintf(w, "  SETTINGS      %s\n", strings.Join(parts, " "))
		case f.WindowUpdate != nil:
			fmt.Fprintf(w, "  WINDOW_UPDATE stream=%d increment=%d\n", f.WindowUpdate.StreamID, f.WindowUpdate.Increment)
		case f.Priority != nil:
			fmt.Fprintf(w, "  PRIORITY      stream=%d dep=%d weight=%d exclusive=%v\n",
				f.Priority.StreamID, f.Priority.Param.StreamDep, f.Priority.Param.Weight, f.Priority.Param.Exclusive)
		}
	}
}
