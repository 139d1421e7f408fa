// Package parse turns raw portal responses of any shape (tabular exports,
// markup listings, JSON/XML bodies) into canonical candidate records.
package parse

import (
	"errors"
	"fmt"

	"kestrel/internal/domain"
)

// ErrNoRows signals that a payload contained nothing parseable. The
// orchestrator treats it as license to try the next strategy, never as a
// crash.
var ErrNoRows = errors.New("no parseable rows in payload")

// Parse dispatches a raw payload to the parser path its content-type hint
// names and funnels every path through the shared IP validity filter.
func Parse(payload *domain.RawPayload) ([]domain.Candidate, error) {
	if payload.Empty() {
		return nil, ErrNoRows
	}

	switch payload.Kind {
	case domain.PayloadTabular:
		return ParseTabular(payload.Body)
	case domain.PayloadMarkup:
		return ParseMarkup(payload.Body)
	case domain.PayloadStructured:
		return ParseStructured(payload.Body)
	default:
		return nil, fmt.Errorf("unknown payload kind %q", payload.Kind)
	}
}
