package parse

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"kestrel/internal/domain"
)

// tableMarkers identify the listing table inside a scraped portal page, by
// caption text or nearby heading.
var tableMarkers = []string{"blacklist", "block list", "blocked", "threat", "denied", "attack"}

// ParseMarkup extracts candidates from the HTML listing pages a markup-scrape
// strategy fetched. The target table is located by caption/heading marker or,
// failing that, by a header cell naming an IP column. Rows with fewer cells
// than the IP column position are skipped rather than fatal.
func ParseMarkup(body []byte) ([]domain.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	var candidates []domain.Candidate
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if !isTargetTable(table) {
			return
		}
		candidates = append(candidates, parseTableRows(table)...)
	})

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no listing table matched any known marker", ErrNoRows)
	}
	return candidates, nil
}

// CountMarkupRows is the cheap row probe the paginated scrape strategy uses
// as its stop condition. It does not validate row contents.
func CountMarkupRows(body []byte) int {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0
	}

	count := 0
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if !isTargetTable(table) {
			return
		}
		count += table.Find("tbody tr").Length()
		if count == 0 {
			// Tables without an explicit tbody still count their data rows.
			count += table.Find("tr").Length() - table.Find("tr th").Parent().Length()
		}
	})
	return count
}

func isTargetTable(table *goquery.Selection) bool {
	caption := strings.ToLower(table.Find("caption").Text())
	for _, marker := range tableMarkers {
		if strings.Contains(caption, marker) {
			return true
		}
	}

	// Some portals label the table through attributes or a preceding heading.
	for _, attr := range []string{"id", "class", "summary"} {
		if value, ok := table.Attr(attr); ok {
			lowered := strings.ToLower(value)
			for _, marker := range tableMarkers {
				if strings.Contains(lowered, marker) {
					return true
				}
			}
		}
	}

	headerText := strings.ToLower(table.Find("th").Text())
	return strings.Contains(headerText, "ip")
}

func parseTableRows(table *goquery.Selection) []domain.Candidate {
	var header []string
	table.Find("tr").First().Find("th").Each(func(_ int, cell *goquery.Selection) {
		header = append(header, strings.TrimSpace(cell.Text()))
	})

	ipCol := detectColumn(header, ipColumnKeywords)
	countryCol := detectColumn(header, countryColumnKeywords)
	dateCol := detectColumn(header, dateColumnKeywords)
	reasonCol := detectColumn(header, reasonColumnKeywords)
	levelCol := detectColumn(header, levelColumnKeywords)

	// Fixed fallback positions for portals that ship header-less tables:
	// IP, country, reason, date.
	if ipCol < 0 {
		ipCol, countryCol, reasonCol, dateCol = 0, 1, 2, 3
	}

	minCells := ipCol + 1

	var candidates []domain.Candidate
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < minCells {
			return
		}

		values := make([]string, cells.Length())
		cells.Each(func(i int, cell *goquery.Selection) {
			values[i] = strings.TrimSpace(cell.Text())
		})

		ip := NormalizeIPv4(cell(values, ipCol))
		if ip == "" || !IsPublicIPv4(ip) {
			return
		}

		candidate := domain.Candidate{
			IPAddress:   ip,
			Country:     cell(values, countryCol),
			AttackType:  cell(values, reasonCol),
			ThreatLevel: domain.ParseThreatLevel(cell(values, levelCol)),
		}
		if normalized, ok := NormalizeDate(cell(values, dateCol)); ok {
			candidate.DetectionDate = normalized
		}

		candidates = append(candidates, candidate)
	})

	return candidates
}
