package parse

import "strings"

// Column-name keywords used to map export headers onto canonical fields. The
// upstream portals rename columns between releases, so matching is fuzzy and
// content-based detection backs up the IP column.
var (
	ipColumnKeywords      = []string{"ip", "address", "addr", "host", "attacker"}
	countryColumnKeywords = []string{"country", "nation", "geo", "region"}
	dateColumnKeywords    = []string{"date", "time", "detected", "seen", "reported"}
	reasonColumnKeywords  = []string{"reason", "attack", "type", "category", "description", "detail"}
	levelColumnKeywords   = []string{"level", "severity", "risk", "grade"}
	expiryColumnKeywords  = []string{"expire", "expiry", "until", "release"}
)

func matchesAny(header string, keywords []string) bool {
	lowered := strings.ToLower(strings.TrimSpace(header))
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// DetectIPColumn finds the column index holding IP addresses. It first tries
// a header keyword match, then falls back to validating sample cell values of
// each column as IPs. Returns -1 when no column qualifies.
func DetectIPColumn(header []string, rows [][]string) int {
	for idx, name := range header {
		if matchesAny(name, ipColumnKeywords) {
			return idx
		}
	}

	// Content-based fallback: the first column where a majority of sampled
	// cells parse as IPv4 wins.
	sample := rows
	if len(sample) > 10 {
		sample = sample[:10]
	}

	width := len(header)
	for _, row := range sample {
		if len(row) > width {
			width = len(row)
		}
	}

	for col := 0; col < width; col++ {
		hits, total := 0, 0
		for _, row := range sample {
			if col >= len(row) {
				continue
			}
			total++
			if NormalizeIPv4(strings.TrimSpace(row[col])) != "" {
				hits++
			}
		}
		if total > 0 && hits*2 > total {
			return col
		}
	}

	return -1
}

func detectColumn(header []string, keywords []string) int {
	for idx, name := range header {
		if matchesAny(name, keywords) {
			return idx
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
