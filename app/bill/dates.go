package bill

import (
	"strings"
	"time"
)

// Supported event date layouts. The site renders dates as MM/DD/YYYY; the
// search pages use ISO dates. Anything else is treated as unparsable.
var eventDateLayouts = []string{
	"01/02/2006",
	"2006-01-02",
}

// ParseEventDate parses a displayed event date. It returns nil for empty or
// unrecognized input instead of an error: an unparsable date degrades the
// sort position of its event, never the extraction.
func ParseEventDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
