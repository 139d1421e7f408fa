package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"kestrel/internal/domain"
	"kestrel/internal/parse"
)

// Invalidator is the cache collaborator contract: the ingestion path only
// ever invalidates, never writes, cached views.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// CountryResolver fills in the country for feed rows that ship without one.
type CountryResolver interface {
	Country(ip string) string
}

// Writer is the ingestion endpoint of the collection pipeline. It upserts
// canonical records batch-transactionally and signals the cache collaborator
// after any batch that changed rows.
type Writer struct {
	Cache Invalidator
	Geo   CountryResolver
}

func (w *Writer) Upsert(ctx context.Context, records []domain.Candidate, source string) (domain.UpsertSummary, error) {
	if w.Geo != nil {
		for i := range records {
			if records[i].Country == "" {
				records[i].Country = w.Geo.Country(records[i].IPAddress)
			}
		}
	}

	summary, err := UpsertEntries(ctx, records, source)
	if err != nil {
		return summary, err
	}

	if summary.Applied() > 0 && w.Cache != nil {
		if err := w.Cache.Invalidate(ctx); err != nil {
			log.Warn("Failed to invalidate active IP cache", "error", err)
		}
	}
	return summary, nil
}

// UpsertEntries applies one candidate batch inside a single write-scoped
// transaction. Rows are keyed on (ip_address, source): existing rows get
// their mutable fields refreshed while first_seen_at stays untouched, new
// rows are created with both timestamps set. An individually malformed row is
// skipped and counted, never fatal; a database-level failure rolls the whole
// batch back and reports one aggregate error.
func UpsertEntries(ctx context.Context, records []domain.Candidate, source string) (domain.UpsertSummary, error) {
	var summary domain.UpsertSummary

	if DB == nil {
		return summary, errors.New("database not initialised")
	}
	if len(records) == 0 {
		return summary, nil
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	now := time.Now().UTC()

	tx := db.Begin()
	if tx.Error != nil {
		return summary, tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			log.Errorf("Transaction rolled back due to panic: %v", r)
		}
	}()

	for _, record := range records {
		// Defense in depth: the parser already filtered, but one malformed
		// row must never reach the store or abort its batch.
		if !parse.IsPublicIPv4(record.IPAddress) {
			summary.Skipped++
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("validation: %q is not a public IPv4 address", record.IPAddress))
			continue
		}

		var existing domain.BlacklistEntry
		err := tx.Where("ip_address = ? AND source = ?", record.IPAddress, source).
			First(&existing).Error

		switch {
		case err == nil:
			if err := tx.Model(&existing).Updates(mutableFields(record, now)).Error; err != nil {
				tx.Rollback()
				return domain.UpsertSummary{}, err
			}
			summary.Updated++
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry := newEntry(record, source, now)
			if err := tx.Create(&entry).Error; err != nil {
				tx.Rollback()
				return domain.UpsertSummary{}, err
			}
			summary.Imported++
		default:
			tx.Rollback()
			return domain.UpsertSummary{}, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return domain.UpsertSummary{}, err
	}
	return summary, nil
}

func mutableFields(record domain.Candidate, now time.Time) map[string]any {
	fields := map[string]any{
		"attack_type":    record.AttackType,
		"threat_level":   record.ThreatLevel,
		"source_details": record.SourceDetails,
		"active":         true,
		"last_seen_at":   now,
	}
	if record.Country != "" {
		fields["country"] = record.Country
	}
	if detected, ok := parseCanonicalDate(record.DetectionDate); ok {
		fields["detection_date"] = detected
	}
	if expires, ok := parseCanonicalDate(record.ExpirationDate); ok {
		fields["expiration_date"] = expires
	}
	return fields
}

func newEntry(record domain.Candidate, source string, now time.Time) domain.BlacklistEntry {
	entry := domain.BlacklistEntry{
		IPAddress:     record.IPAddress,
		Source:        source,
		Country:       record.Country,
		AttackType:    record.AttackType,
		ThreatLevel:   record.ThreatLevel,
		SourceDetails: record.SourceDetails,
		Active:        true,
		FirstSeenAt:   now,
		LastSeenAt:    now,
	}
	if entry.Country == "" {
		entry.Country = "Unknown"
	}
	if entry.ThreatLevel == "" {
		entry.ThreatLevel = domain.ThreatMedium
	}

	if detected, ok := parseCanonicalDate(record.DetectionDate); ok {
		entry.DetectionDate = detected
	} else {
		entry.DetectionDate = now
	}
	if expires, ok := parseCanonicalDate(record.ExpirationDate); ok {
		entry.ExpirationDate = &expires
	}
	return entry
}

func parseCanonicalDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// FindByIPAndSource looks one entry up by its store-level identity.
func FindByIPAndSource(ctx context.Context, ip, source string) (*domain.BlacklistEntry, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entry domain.BlacklistEntry
	err := db.Where("ip_address = ? AND source = ?", ip, source).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// ListByIP returns every entry recorded for one IP, across sources.
func ListByIP(ctx context.Context, ip string) ([]domain.BlacklistEntry, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entries []domain.BlacklistEntry
	if err := db.Where("ip_address = ?", ip).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListActive returns every active entry.
func ListActive(ctx context.Context) ([]domain.BlacklistEntry, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entries []domain.BlacklistEntry
	if err := db.Where("active = ?", true).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListActiveIPs returns the active entries as plain IPv4 strings, the shape
// the cached "active IP list" view serves.
func ListActiveIPs(ctx context.Context) ([]string, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var ips []string
	err := db.Model(&domain.BlacklistEntry{}).
		Where("active = ?", true).
		Distinct().
		Pluck("ip_address", &ips).Error
	if err != nil {
		return nil, err
	}
	return ips, nil
}

// Deactivate flags one entry inactive. Deactivation is the only removal path;
// the pipeline never deletes rows.
func Deactivate(ctx context.Context, ip, source string) (bool, error) {
	if DB == nil {
		return false, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	result := db.Model(&domain.BlacklistEntry{}).
		Where("ip_address = ? AND source = ? AND active = ?", ip, source, true).
		Update("active", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeactivateExpired flags every active entry whose expiration date has
// passed. Run by the maintenance sweep after each collection cycle.
func DeactivateExpired(ctx context.Context, today time.Time) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	result := db.Model(&domain.BlacklistEntry{}).
		Where("active = ? AND expiration_date IS NOT NULL AND expiration_date < ?", true, today.UTC()).
		Update("active", false)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
