package parse

import (
	"errors"
	"strings"
	"testing"

	"kestrel/internal/domain"
)

func TestParseTabularExportScenario(t *testing.T) {
	body := []byte(strings.Join([]string{
		"No,Attacker IP,Country,Attack Type,Detection Date",
		"1,8.8.8.8,US,SSH brute force,2024-03-01",
		"2,192.168.1.5,KR,Port scan,2024-03-01",
		"3,1.1.1.1,AU,Web attack,2024/03/02",
		"4,8.8.8.8,US,SSH brute force,2024-03-03",
	}, "\n"))

	candidates, err := ParseTabular(body)
	if err != nil {
		t.Fatalf("ParseTabular failed: %v", err)
	}

	// The private address must have been filtered out.
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(candidates))
	}
	for _, c := range candidates {
		if !IsPublicIPv4(c.IPAddress) {
			t.Fatalf("candidate %s is not a public IP", c.IPAddress)
		}
	}
	if candidates[0].Country != "US" || candidates[0].AttackType != "SSH brute force" {
		t.Fatalf("columns mismapped: %+v", candidates[0])
	}
	if candidates[2].DetectionDate != "2024-03-03" {
		t.Fatalf("date not normalized: %+v", candidates[2])
	}

	unique, duplicates := Dedupe(candidates)
	if len(unique) != 2 || duplicates != 1 {
		t.Fatalf("dedupe yielded %d unique, %d duplicates; want 2, 1", len(unique), duplicates)
	}
	if unique[0].IPAddress != "8.8.8.8" || unique[1].IPAddress != "1.1.1.1" {
		t.Fatalf("unexpected unique set: %+v", unique)
	}
}

func TestParseTabularDetectsIPColumnByContent(t *testing.T) {
	body := []byte(strings.Join([]string{
		"col_a,col_b,col_c",
		"x,8.8.8.8,y",
		"x,1.1.1.1,y",
	}, "\n"))

	candidates, err := ParseTabular(body)
	if err != nil {
		t.Fatalf("ParseTabular failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
}

func TestParseTabularHeaderlessKeepsFirstRow(t *testing.T) {
	body := []byte(strings.Join([]string{
		"8.8.8.8,US,SSH brute force",
		"1.1.1.1,AU,Web attack",
		"9.9.9.9,CH,DNS abuse",
	}, "\n"))

	candidates, err := ParseTabular(body)
	if err != nil {
		t.Fatalf("ParseTabular failed: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(candidates))
	}
	if candidates[0].IPAddress != "8.8.8.8" {
		t.Fatalf("first row lost: %+v", candidates)
	}
}

func TestParseTabularNoIPColumn(t *testing.T) {
	body := []byte("name,value\nfoo,bar\n")
	if _, err := ParseTabular(body); !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestParseMarkupListing(t *testing.T) {
	body := []byte(`<html><body>
<table class="board"><caption>Notice</caption><tr><td>hello</td></tr></table>
<table><caption>Blocked IP Blacklist</caption>
<tr><th>IP Address</th><th>Country</th><th>Attack Type</th><th>Date</th></tr>
<tr><td>8.8.8.8</td><td>US</td><td>SSH brute force</td><td>2024-03-01</td></tr>
<tr><td>10.0.0.1</td><td>KR</td><td>Port scan</td><td>2024-03-01</td></tr>
<tr><td>1.1.1.1</td><td>AU</td><td>Web attack</td><td>2024-03-02</td></tr>
<tr><td>short row</td></tr>
</table></body></html>`)

	candidates, err := ParseMarkup(body)
	if err != nil {
		t.Fatalf("ParseMarkup failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].IPAddress != "8.8.8.8" || candidates[1].IPAddress != "1.1.1.1" {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
	if candidates[0].DetectionDate != "2024-03-01" {
		t.Fatalf("date not normalized: %+v", candidates[0])
	}
}

func TestParseMarkupUnknownCaptionIsError(t *testing.T) {
	body := []byte(`<html><body>
<table><caption>Press Releases</caption>
<tr><td>nothing</td><td>relevant</td></tr>
</table></body></html>`)

	candidates, err := ParseMarkup(body)
	if !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected empty candidate list, got %d", len(candidates))
	}
}

func TestParseStructuredJSONWrapper(t *testing.T) {
	body := []byte(`{"status":"ok","data":{"rows":[
{"ip":"8.8.8.8","country":"US","attack_type":"bruteforce","detection_date":"2024-03-01","severity":"high"},
{"ip":"192.168.1.9","country":"KR","attack_type":"scan","detection_date":"2024-03-01"},
{"ip":"1.1.1.1","country":"AU","attack_type":"web","detection_date":"2024-03-02"}
]}}`)

	candidates, err := ParseStructured(body)
	if err != nil {
		t.Fatalf("ParseStructured failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].ThreatLevel != domain.ThreatHigh {
		t.Fatalf("severity not mapped: %+v", candidates[0])
	}
}

func TestParseStructuredXML(t *testing.T) {
	body := []byte(`<?xml version="1.0"?><response><rows>
<row><ip>8.8.8.8</ip><country>US</country><reason>bruteforce</reason><date>2024-03-01</date></row>
<row><ip>1.1.1.1</ip><country>AU</country><reason>web</reason><date>2024-03-02</date></row>
</rows></response>`)

	candidates, err := ParseStructured(body)
	if err != nil {
		t.Fatalf("ParseStructured failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].Country != "US" || candidates[0].DetectionDate != "2024-03-01" {
		t.Fatalf("fields mismapped: %+v", candidates[0])
	}
}

func TestParseStructuredRawScanFallback(t *testing.T) {
	body := []byte("log line with 8.8.8.8 seen, and 10.0.0.1 which is private")

	candidates, err := ParseStructured(body)
	if err != nil {
		t.Fatalf("ParseStructured failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].IPAddress != "8.8.8.8" {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
}

func TestParseDispatch(t *testing.T) {
	if _, err := Parse(&domain.RawPayload{Kind: "bogus", Body: []byte("x")}); err == nil {
		t.Fatal("expected error for unknown payload kind")
	}
	if _, err := Parse(nil); !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows for nil payload, got %v", err)
	}
}
