package domain

import "time"

// ThreatLevel is the severity a feed assigns to an observation.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// ParseThreatLevel maps free-form severity text from upstream feeds onto the
// enumerated levels. Unknown values fall back to medium.
func ParseThreatLevel(raw string) ThreatLevel {
	switch raw {
	case "low", "Low", "LOW", "info", "1":
		return ThreatLow
	case "high", "High", "HIGH", "3":
		return ThreatHigh
	case "critical", "Critical", "CRITICAL", "severe", "4":
		return ThreatCritical
	default:
		return ThreatMedium
	}
}

// BlacklistEntry stores one threat-intelligence observation. The pair
// (ip_address, source) is unique; re-ingesting the same pair updates the
// mutable fields instead of creating a new row. Rows are deactivated, never
// deleted, by the pipeline.
type BlacklistEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// IPAddress holds the normalized dotted-quad form (e.g. 192.0.2.1).
	IPAddress string `gorm:"size:45;not null;uniqueIndex:idx_entry_identity,priority:1"`

	// Source identifies the origin feed this observation came from.
	Source string `gorm:"size:128;not null;uniqueIndex:idx_entry_identity,priority:2"`

	Country     string      `gorm:"size:64;not null;default:'Unknown'"`
	AttackType  string      `gorm:"size:512;not null;default:''"`
	ThreatLevel ThreatLevel `gorm:"size:16;not null;default:'medium'"`

	// DetectionDate is the origin-system timestamp, not the ingestion time.
	DetectionDate  time.Time  `gorm:"type:date"`
	ExpirationDate *time.Time `gorm:"type:date"`

	// SourceDetails carries opaque origin metadata verbatim.
	SourceDetails string `gorm:"size:1024;not null;default:''"`

	Active bool `gorm:"not null;default:true;index"`

	FirstSeenAt time.Time `gorm:"autoCreateTime"`
	LastSeenAt  time.Time `gorm:"autoUpdateTime"`
}
