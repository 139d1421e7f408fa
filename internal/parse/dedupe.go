package parse

import "kestrel/internal/domain"

// Dedupe removes intra-batch duplicates keyed on IP address. The first
// occurrence wins and first-appearance order is preserved. Cross-source
// duplicates are intentionally left alone since (ip, source) is the
// storage-level identity. Deduping an already-deduped batch returns it
// unchanged with a zero count.
func Dedupe(records []domain.Candidate) ([]domain.Candidate, int) {
	if len(records) == 0 {
		return records, 0
	}

	seen := make(map[string]struct{}, len(records))
	unique := make([]domain.Candidate, 0, len(records))
	duplicates := 0

	for _, record := range records {
		if _, found := seen[record.IPAddress]; found {
			duplicates++
			continue
		}
		seen[record.IPAddress] = struct{}{}
		unique = append(unique, record)
	}

	return unique, duplicates
}
