package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"kestrel/internal/domain"
)

func setupBlacklistTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if err := db.AutoMigrate(&domain.BlacklistEntry{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	DB = db
	t.Cleanup(func() {
		DB = nil
	})

	return db
}

func candidateBatch() []domain.Candidate {
	return []domain.Candidate{
		{IPAddress: "8.8.8.8", Country: "US", AttackType: "SSH brute force", ThreatLevel: domain.ThreatHigh, DetectionDate: "2024-03-01"},
		{IPAddress: "1.1.1.1", Country: "AU", AttackType: "Web attack", ThreatLevel: domain.ThreatMedium, DetectionDate: "2024-03-02"},
	}
}

func TestUpsertEntriesIdempotence(t *testing.T) {
	db := setupBlacklistTestDB(t)
	ctx := context.Background()

	first, err := UpsertEntries(ctx, candidateBatch(), "test-feed")
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if first.Imported != 2 || first.Updated != 0 {
		t.Fatalf("first upsert = %+v, want imported=2 updated=0", first)
	}

	second, err := UpsertEntries(ctx, candidateBatch(), "test-feed")
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if second.Imported != 0 || second.Updated != 2 {
		t.Fatalf("second upsert = %+v, want imported=0 updated=2", second)
	}

	var count int64
	db.Model(&domain.BlacklistEntry{}).Count(&count)
	if count != 2 {
		t.Fatalf("row count = %d, want 2", count)
	}
}

func TestUpsertEntriesPreservesFirstSeen(t *testing.T) {
	setupBlacklistTestDB(t)
	ctx := context.Background()

	if _, err := UpsertEntries(ctx, candidateBatch(), "test-feed"); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	before, err := FindByIPAndSource(ctx, "8.8.8.8", "test-feed")
	if err != nil || before == nil {
		t.Fatalf("entry not found after first upsert: %v", err)
	}

	updated := candidateBatch()
	updated[0].AttackType = "Credential stuffing"
	if _, err := UpsertEntries(ctx, updated, "test-feed"); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	after, err := FindByIPAndSource(ctx, "8.8.8.8", "test-feed")
	if err != nil || after == nil {
		t.Fatalf("entry not found after second upsert: %v", err)
	}

	if !after.FirstSeenAt.Equal(before.FirstSeenAt) {
		t.Fatalf("first_seen_at changed on re-observation: %s != %s", after.FirstSeenAt, before.FirstSeenAt)
	}
	if after.AttackType != "Credential stuffing" {
		t.Fatalf("mutable field not updated: %q", after.AttackType)
	}
}

func TestUpsertEntriesSkipsMalformedRows(t *testing.T) {
	db := setupBlacklistTestDB(t)

	records := []domain.Candidate{
		{IPAddress: "8.8.8.8"},
		{IPAddress: "192.168.1.5"}, // private, must be skipped
		{IPAddress: "not-an-ip"},
		{IPAddress: "1.1.1.1"},
	}

	summary, err := UpsertEntries(context.Background(), records, "test-feed")
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if summary.Imported != 2 || summary.Skipped != 2 {
		t.Fatalf("summary = %+v, want imported=2 skipped=2", summary)
	}
	if len(summary.Errors) != 2 {
		t.Fatalf("error notes = %d, want 2", len(summary.Errors))
	}

	var count int64
	db.Model(&domain.BlacklistEntry{}).Count(&count)
	if count != 2 {
		t.Fatalf("row count = %d, want 2", count)
	}
}

func TestUpsertEntriesKeepsSourcesDistinct(t *testing.T) {
	db := setupBlacklistTestDB(t)
	ctx := context.Background()

	records := []domain.Candidate{{IPAddress: "8.8.8.8"}}
	if _, err := UpsertEntries(ctx, records, "feed-a"); err != nil {
		t.Fatalf("upsert feed-a failed: %v", err)
	}
	if _, err := UpsertEntries(ctx, records, "feed-b"); err != nil {
		t.Fatalf("upsert feed-b failed: %v", err)
	}

	var count int64
	db.Model(&domain.BlacklistEntry{}).Count(&count)
	if count != 2 {
		t.Fatalf("row count = %d, want 2 (one per source)", count)
	}
}

type recordingInvalidator struct {
	calls int
}

func (r *recordingInvalidator) Invalidate(context.Context) error {
	r.calls++
	return nil
}

type staticGeo struct{}

func (staticGeo) Country(string) string { return "US" }

func TestWriterInvalidatesCacheOnlyWhenRowsChanged(t *testing.T) {
	setupBlacklistTestDB(t)
	ctx := context.Background()

	cache := &recordingInvalidator{}
	writer := &Writer{Cache: cache}

	if _, err := writer.Upsert(ctx, candidateBatch(), "test-feed"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if cache.calls != 1 {
		t.Fatalf("cache invalidated %d times, want 1", cache.calls)
	}

	// A batch of nothing but malformed rows changes no rows and must not
	// invalidate the cache.
	if _, err := writer.Upsert(ctx, []domain.Candidate{{IPAddress: "10.0.0.1"}}, "test-feed"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if cache.calls != 1 {
		t.Fatalf("cache invalidated %d times, want still 1", cache.calls)
	}
}

func TestWriterFillsMissingCountry(t *testing.T) {
	setupBlacklistTestDB(t)
	ctx := context.Background()

	writer := &Writer{Geo: staticGeo{}}
	records := []domain.Candidate{{IPAddress: "8.8.8.8"}}
	if _, err := writer.Upsert(ctx, records, "test-feed"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	entry, err := FindByIPAndSource(ctx, "8.8.8.8", "test-feed")
	if err != nil || entry == nil {
		t.Fatalf("entry not found: %v", err)
	}
	if entry.Country != "US" {
		t.Fatalf("country = %q, want US", entry.Country)
	}
}

func TestDeactivateExpired(t *testing.T) {
	setupBlacklistTestDB(t)
	ctx := context.Background()

	records := []domain.Candidate{
		{IPAddress: "8.8.8.8", ExpirationDate: "2024-02-01"},
		{IPAddress: "1.1.1.1", ExpirationDate: "2024-12-31"},
		{IPAddress: "9.9.9.9"},
	}
	if _, err := UpsertEntries(ctx, records, "test-feed"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	today := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	deactivated, err := DeactivateExpired(ctx, today)
	if err != nil {
		t.Fatalf("DeactivateExpired failed: %v", err)
	}
	if deactivated != 1 {
		t.Fatalf("deactivated = %d, want 1", deactivated)
	}

	ips, err := ListActiveIPs(ctx)
	if err != nil {
		t.Fatalf("ListActiveIPs failed: %v", err)
	}
	if len(ips) != 2 {
		t.Fatalf("active IPs = %v, want 2 entries", ips)
	}
	for _, ip := range ips {
		if ip == "8.8.8.8" {
			t.Fatal("expired entry still active")
		}
	}
}

func TestFindByIPAndSourceMissing(t *testing.T) {
	setupBlacklistTestDB(t)

	entry, err := FindByIPAndSource(context.Background(), "203.0.113.1", "nowhere")
	if err != nil {
		t.Fatalf("FindByIPAndSource failed: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil for missing entry, got %+v", entry)
	}
}
