// Package collect drives the resilient collection pipeline: session
// management, the ordered fallback chain of strategies, parsing,
// deduplication and ingestion into the blacklist store.
package collect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"kestrel/internal/config"
	"kestrel/internal/domain"
	"kestrel/internal/parse"
)

// Ingestor is the store-side collaborator the orchestrator hands deduplicated
// records to. Implemented by the database package.
type Ingestor interface {
	Upsert(ctx context.Context, records []domain.Candidate, source string) (domain.UpsertSummary, error)
}

// CollectionResult is the per-run aggregate returned to the caller. Expected
// failure modes land in Errors; the run itself never panics.
type CollectionResult struct {
	Source            string
	Records           []domain.Candidate
	SucceededStrategy string
	Upsert            domain.UpsertSummary
	Stats             StatsSnapshot
	Errors            []*CollectError
}

// Succeeded reports whether any strategy produced usable records.
func (r *CollectionResult) Succeeded() bool {
	return r.SucceededStrategy != ""
}

// Orchestrator walks one source's strategy chain until a strategy yields
// records or the chain is exhausted. Strategies execute sequentially and
// retries sleep synchronously, deliberately, so one credential never produces
// a bursty request pattern upstream.
type Orchestrator struct {
	source     config.SourceConfig
	auth       *AuthSessionManager
	strategies []Strategy
	ingestor   Ingestor
	stats      *Stats

	retries    int
	retryDelay time.Duration

	// sleep is swappable so retry tests do not wait on the wall clock.
	sleep func(time.Duration)

	group singleflight.Group
}

func NewOrchestrator(source config.SourceConfig, auth *AuthSessionManager, strategies []Strategy, ingestor Ingestor, stats *Stats, retries int, retryDelay time.Duration) *Orchestrator {
	if stats == nil {
		stats = NewStats()
	}
	if retries < 1 {
		retries = 3
	}

	return &Orchestrator{
		source:     source,
		auth:       auth,
		strategies: strategies,
		ingestor:   ingestor,
		stats:      stats,
		retries:    retries,
		retryDelay: retryDelay,
		sleep:      time.Sleep,
	}
}

// Stats exposes the run counters for observability callers.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// Collect runs the full pipeline for this source. Concurrent calls collapse
// into one run via singleflight. The returned error is non-nil only for a
// store-level transaction failure; every other failure mode is classified
// inside the result.
func (o *Orchestrator) Collect(ctx context.Context, dates DateRange) (*CollectionResult, error) {
	value, err, _ := o.group.Do(o.source.Name, func() (interface{}, error) {
		return o.collect(ctx, dates)
	})

	result, _ := value.(*CollectionResult)
	return result, err
}

func (o *Orchestrator) collect(ctx context.Context, dates DateRange) (*CollectionResult, error) {
	o.stats.RecordAttempt()

	result := &CollectionResult{Source: o.source.Name}
	defer func() {
		result.Stats = o.stats.Snapshot()
	}()

	token, err := o.auth.GetValidToken(ctx)
	if err != nil || token == nil {
		// No strategy can succeed without a token; the run ends here.
		authErr := classifyAuth(err)
		o.stats.RecordError(KindAuthentication)
		result.Errors = append(result.Errors, authErr)
		log.Error("Collection aborted, authentication failed", "source", o.source.Name, "error", authErr)
		return result, nil
	}

	for _, strategy := range o.strategies {
		// Re-read the token each round: a strategy that observed a session
		// expiry invalidates it, and the next strategy must not reuse it.
		token, err = o.auth.GetValidToken(ctx)
		if err != nil || token == nil {
			authErr := classifyAuth(err)
			o.stats.RecordError(KindAuthentication)
			result.Errors = append(result.Errors, authErr)
			log.Error("Collection aborted, session could not be refreshed", "source", o.source.Name, "error", authErr)
			return result, nil
		}

		session := &Session{
			Client:    o.auth.Client(),
			Token:     token,
			Source:    o.source,
			onExpired: o.auth.Invalidate,
		}

		records, cerr := o.runStrategy(ctx, strategy, session, dates)
		if cerr != nil {
			result.Errors = append(result.Errors, cerr)
			continue
		}

		result.Records = records
		result.SucceededStrategy = strategy.Name()
		o.stats.RecordSuccess()
		o.stats.RecordStrategyUse(strategy.Name())
		break
	}

	if !result.Succeeded() {
		log.Warn("All collection strategies exhausted", "source", o.source.Name, "errors", len(result.Errors))
		return result, nil
	}

	log.Info("Collection succeeded",
		"source", o.source.Name,
		"strategy", result.SucceededStrategy,
		"records", len(result.Records),
	)

	if o.ingestor == nil {
		return result, nil
	}

	summary, err := o.ingestor.Upsert(ctx, result.Records, o.source.Name)
	if err != nil {
		// Store transaction failure is the one fatal, unretried condition.
		return result, fmt.Errorf("ingest batch for %s: %w", o.source.Name, err)
	}

	result.Upsert = summary
	o.stats.RecordValidationSkips(summary.Skipped)

	log.Info("Batch ingested",
		"source", o.source.Name,
		"imported", summary.Imported,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
	)
	return result, nil
}

// runStrategy performs one strategy's fetch with transport-class retries,
// then parses and deduplicates the payload. Any failure comes back as a
// classified error; a success returns at least one record.
func (o *Orchestrator) runStrategy(ctx context.Context, strategy Strategy, session *Session, dates DateRange) ([]domain.Candidate, *CollectError) {
	payload, cerr := o.fetchWithRetry(ctx, strategy, session, dates)
	if cerr != nil {
		o.stats.RecordError(cerr.Kind)
		return nil, cerr
	}

	if payload.Empty() {
		// A 200 with nothing usable still counts as strategy failure.
		o.stats.RecordError(KindParse)
		return nil, parseError(strategy.Name(), errors.New("strategy returned no data"))
	}

	candidates, err := parse.Parse(payload)
	if err != nil {
		o.stats.RecordError(KindParse)
		return nil, parseError(strategy.Name(), err)
	}

	unique, duplicates := parse.Dedupe(candidates)
	o.stats.RecordDuplicates(duplicates)

	if len(unique) == 0 {
		o.stats.RecordError(KindParse)
		return nil, parseError(strategy.Name(), errors.New("no valid records after dedupe"))
	}

	return unique, nil
}

func (o *Orchestrator) fetchWithRetry(ctx context.Context, strategy Strategy, session *Session, dates DateRange) (*domain.RawPayload, *CollectError) {
	var lastErr *CollectError

	for attempt := 1; attempt <= o.retries; attempt++ {
		payload, err := strategy.Fetch(ctx, session, dates)
		if err == nil {
			return payload, nil
		}

		lastErr = classify(strategy.Name(), err)
		if lastErr.Kind != KindTransport {
			// Auth- and parse-class failures fall through to the next
			// strategy immediately.
			return nil, lastErr
		}

		if attempt < o.retries {
			log.Debug("Transport failure, retrying strategy",
				"source", o.source.Name,
				"strategy", strategy.Name(),
				"attempt", attempt,
				"error", err,
			)
			o.sleep(o.retryDelay)
		}
	}

	return nil, lastErr
}

func classifyAuth(err error) *CollectError {
	if err == nil {
		return authError("no session token available")
	}
	var classified *CollectError
	if errors.As(err, &classified) {
		return classified
	}
	return &CollectError{Kind: KindAuthentication, Err: err}
}
