package parse

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/antchfx/xmlquery"

	"kestrel/internal/domain"
)

// Wrapper keys the known portal endpoints nest their row arrays under.
var wrapperKeys = []string{"rows", "list", "data", "items", "result", "results", "entries"}

// Field keys seen across JSON/XML shapes.
var (
	ipFieldKeys      = []string{"ip", "ip_address", "ipaddress", "ipAddr", "attacker_ip", "address", "host"}
	countryFieldKeys = []string{"country", "country_code", "nation", "geo"}
	reasonFieldKeys  = []string{"reason", "attack_type", "attackType", "type", "category", "description"}
	dateFieldKeys    = []string{"detection_date", "detected_at", "date", "reg_date", "created_at", "timestamp"}
	levelFieldKeys   = []string{"threat_level", "severity", "level", "risk"}
	expiryFieldKeys  = []string{"expiration_date", "expires_at", "expire_date", "until"}
)

// ParseStructured handles JSON and XML payloads by walking the known nested
// shapes recursively. When nothing matches it falls back to scanning the raw
// text for IPv4-looking substrings.
func ParseStructured(body []byte) ([]domain.Candidate, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrNoRows
	}

	var candidates []domain.Candidate
	switch {
	case trimmed[0] == '{' || trimmed[0] == '[':
		var decoded any
		if err := json.Unmarshal(trimmed, &decoded); err == nil {
			candidates = walkJSON(decoded)
		}
	case trimmed[0] == '<':
		candidates = parseXML(trimmed)
	}

	if len(candidates) == 0 {
		candidates = scanCandidates(string(trimmed))
	}
	if len(candidates) == 0 {
		return nil, ErrNoRows
	}
	return candidates, nil
}

func walkJSON(node any) []domain.Candidate {
	switch value := node.(type) {
	case []any:
		var out []domain.Candidate
		for _, item := range value {
			out = append(out, walkJSON(item)...)
		}
		return out
	case map[string]any:
		if candidate, ok := candidateFromMap(value); ok {
			return []domain.Candidate{candidate}
		}
		// Prefer the known wrapper keys before descending blindly.
		for _, key := range wrapperKeys {
			if nested, found := value[key]; found {
				if out := walkJSON(nested); len(out) > 0 {
					return out
				}
			}
		}
		var out []domain.Candidate
		for _, nested := range value {
			out = append(out, walkJSON(nested)...)
		}
		return out
	default:
		return nil
	}
}

func candidateFromMap(fields map[string]any) (domain.Candidate, bool) {
	ip := NormalizeIPv4(stringField(fields, ipFieldKeys))
	if ip == "" || !IsPublicIPv4(ip) {
		return domain.Candidate{}, false
	}

	candidate := domain.Candidate{
		IPAddress:   ip,
		Country:     stringField(fields, countryFieldKeys),
		AttackType:  stringField(fields, reasonFieldKeys),
		ThreatLevel: domain.ParseThreatLevel(stringField(fields, levelFieldKeys)),
	}
	if normalized, ok := NormalizeDate(stringField(fields, dateFieldKeys)); ok {
		candidate.DetectionDate = normalized
	}
	if normalized, ok := NormalizeDate(stringField(fields, expiryFieldKeys)); ok {
		candidate.ExpirationDate = normalized
	}
	return candidate, true
}

func stringField(fields map[string]any, keys []string) string {
	for _, key := range keys {
		for name, value := range fields {
			if !strings.EqualFold(name, key) {
				continue
			}
			if text, ok := value.(string); ok {
				return strings.TrimSpace(text)
			}
		}
	}
	return ""
}

func parseXML(body []byte) []domain.Candidate {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var candidates []domain.Candidate
	for _, selector := range []string{"//row", "//item", "//entry", "//record"} {
		for _, node := range xmlquery.Find(doc, selector) {
			fields := make(map[string]any)
			for child := node.FirstChild; child != nil; child = child.NextSibling {
				if child.Type != xmlquery.ElementNode {
					continue
				}
				fields[child.Data] = child.InnerText()
			}
			if candidate, ok := candidateFromMap(fields); ok {
				candidates = append(candidates, candidate)
			}
		}
		if len(candidates) > 0 {
			break
		}
	}
	return candidates
}

// scanCandidates is the last-resort path: raw text scanned for public IPv4s,
// carrying no other fields.
func scanCandidates(text string) []domain.Candidate {
	var candidates []domain.Candidate
	for _, raw := range ScanForIPs(text) {
		ip := NormalizeIPv4(raw)
		if ip == "" || !IsPublicIPv4(ip) {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			IPAddress:   ip,
			ThreatLevel: domain.ThreatMedium,
		})
	}
	return candidates
}
