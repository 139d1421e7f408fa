package parse

import (
	"net"
	"regexp"
)

var ipv4Regex = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)

// NormalizeIPv4 returns the canonical dotted-quad form of raw, or "" when raw
// is not an IPv4 address.
func NormalizeIPv4(raw string) string {
	parsed := net.ParseIP(raw)
	if parsed == nil {
		return ""
	}
	v4 := parsed.To4()
	if v4 == nil {
		return ""
	}
	return v4.String()
}

// IsPublicIPv4 reports whether raw is a syntactically valid IPv4 address that
// is routable on the public internet. Private ranges (10/8, 172.16/12,
// 192.168/16), loopback, link-local, multicast and the 0.0.0.0 /
// 255.255.255.255 sentinels are all rejected.
func IsPublicIPv4(raw string) bool {
	parsed := net.ParseIP(raw)
	if parsed == nil {
		return false
	}
	v4 := parsed.To4()
	if v4 == nil {
		return false
	}
	if v4.IsPrivate() || v4.IsLoopback() || v4.IsLinkLocalUnicast() || v4.IsMulticast() {
		return false
	}
	if v4.IsUnspecified() || v4.Equal(net.IPv4bcast) {
		return false
	}
	return true
}

// ScanForIPs pulls every IPv4-looking substring out of free text. Used as the
// last-resort parser path when no structured shape matches.
func ScanForIPs(text string) []string {
	return ipv4Regex.FindAllString(text, -1)
}
