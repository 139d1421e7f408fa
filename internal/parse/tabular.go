package parse

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"kestrel/internal/domain"
)

// ParseTabular reads a CSV-style bulk export and emits one candidate per row
// with a valid public IP. The IP column is located heuristically; whatever
// country, reason, severity and date columns exist are carried along.
func ParseTabular(body []byte) ([]domain.Candidate, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read export rows: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoRows
	}

	header := records[0]
	rows := records[1:]

	ipCol := DetectIPColumn(header, rows)
	if ipCol < 0 {
		// Header may be absent entirely; retry treating every row as data.
		header = nil
		rows = records
		ipCol = DetectIPColumn(nil, rows)
	} else if NormalizeIPv4(cell(header, ipCol)) != "" {
		// The first line carries an IP itself: the export shipped without a
		// header and that line is data.
		header = nil
		rows = records
	}
	if ipCol < 0 {
		return nil, fmt.Errorf("%w: no IP-bearing column found", ErrNoRows)
	}

	countryCol := detectColumn(header, countryColumnKeywords)
	dateCol := detectColumn(header, dateColumnKeywords)
	reasonCol := detectColumn(header, reasonColumnKeywords)
	levelCol := detectColumn(header, levelColumnKeywords)
	expiryCol := detectColumn(header, expiryColumnKeywords)

	candidates := make([]domain.Candidate, 0, len(rows))
	for _, row := range rows {
		ip := NormalizeIPv4(cell(row, ipCol))
		if ip == "" || !IsPublicIPv4(ip) {
			continue
		}

		candidate := domain.Candidate{
			IPAddress:   ip,
			Country:     cell(row, countryCol),
			AttackType:  cell(row, reasonCol),
			ThreatLevel: domain.ParseThreatLevel(cell(row, levelCol)),
		}
		if normalized, ok := NormalizeDate(cell(row, dateCol)); ok {
			candidate.DetectionDate = normalized
		}
		if normalized, ok := NormalizeDate(cell(row, expiryCol)); ok {
			candidate.ExpirationDate = normalized
		}

		candidates = append(candidates, candidate)
	}

	if len(candidates) == 0 {
		return nil, ErrNoRows
	}
	return candidates, nil
}
