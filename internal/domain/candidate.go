package domain

// PayloadKind hints which parser path should handle a raw response body.
type PayloadKind string

const (
	PayloadTabular    PayloadKind = "tabular"
	PayloadMarkup     PayloadKind = "markup"
	PayloadStructured PayloadKind = "structured"
)

// RawPayload is the unparsed body a collection strategy fetched from the
// portal, together with its content-type hint.
type RawPayload struct {
	Kind PayloadKind
	Body []byte
}

// Empty reports whether the payload carries no usable body.
func (p *RawPayload) Empty() bool {
	return p == nil || len(p.Body) == 0
}

// Candidate is a canonical record produced by the parser, independent of the
// raw source format. Dates are normalized to YYYY-MM-DD.
type Candidate struct {
	IPAddress      string
	Country        string
	AttackType     string
	ThreatLevel    ThreatLevel
	DetectionDate  string
	ExpirationDate string
	SourceDetails  string
}

// UpsertSummary reports what a batch upsert applied to the store.
type UpsertSummary struct {
	Imported int
	Updated  int
	Skipped  int
	Errors   []string
}

// Applied is the number of rows the batch actually touched.
func (s UpsertSummary) Applied() int {
	return s.Imported + s.Updated
}
