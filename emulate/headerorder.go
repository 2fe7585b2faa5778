package emulate

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ParseHeaderOrder parses the CSV value of a header-order metadata header.
// Items are trimmed and empty items skipped; the names keep their casing.
func ParseHeaderOrder(value string) ([]string, error) {
	names := make([]string, 0, strings.Count(value, ",")+1)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !httpguts.ValidHeaderFieldName(part) {
			return nil, &InvalidHeaderOrderValueError{Value: part}
		}
		names = append(names, part)
	}
	return names, nil
}
