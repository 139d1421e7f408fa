package parse

import (
	"strings"
	"time"
)

const canonicalDateLayout = "2006-01-02"

// dateLayouts covers the exporter formats seen across the upstream portals.
// Order matters: unambiguous layouts come first.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"Jan 2, 2006",
	"2 Jan 2006",
	"02-01-2006",
	"02/01/2006",
}

// NormalizeDate converts an exporter's native date representation to the
// canonical YYYY-MM-DD form. The second return value is false when no known
// layout matches.
func NormalizeDate(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.Format(canonicalDateLayout), true
		}
	}

	// Month-first slash dates (e.g. 12/25/2024) fail the day-first layout
	// above, so retry with the US ordering.
	if parsed, err := time.Parse("01/02/2006", trimmed); err == nil {
		return parsed.Format(canonicalDateLayout), true
	}

	return "", false
}
