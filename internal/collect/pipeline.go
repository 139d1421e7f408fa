package collect

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Pipeline runs every enabled source's orchestrator in configuration order.
// Sources execute strictly one at a time so a shared upstream never sees
// parallel sessions from one collector instance.
type Pipeline struct {
	orchestrators []*Orchestrator
	rangeDays     int
	clock         Clock
}

func NewPipeline(orchestrators []*Orchestrator, rangeDays int, clock Clock) *Pipeline {
	if rangeDays <= 0 {
		rangeDays = 7
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Pipeline{
		orchestrators: orchestrators,
		rangeDays:     rangeDays,
		clock:         clock,
	}
}

// Source exposes the orchestrator's source name.
func (o *Orchestrator) Source() string {
	return o.source.Name
}

// RunCycle walks every source once. A failed source never blocks the
// remaining ones; store-level failures are logged and the cycle continues.
func (p *Pipeline) RunCycle(ctx context.Context) {
	if len(p.orchestrators) == 0 {
		log.Warn("No enabled sources, collection cycle skipped")
		return
	}

	started := p.clock.Now()
	dates := LastDays(p.rangeDays, started)

	for _, orchestrator := range p.orchestrators {
		if ctx.Err() != nil {
			return
		}

		result, err := orchestrator.Collect(ctx, dates)
		if err != nil {
			log.Error("Collection run failed at the store", "source", orchestrator.Source(), "error", err)
			continue
		}
		if result != nil && !result.Succeeded() {
			log.Warn("Collection run yielded no records", "source", orchestrator.Source(), "errors", len(result.Errors))
		}
	}

	log.Info("Collection cycle finished",
		"sources", len(p.orchestrators),
		"duration", p.clock.Now().Sub(started).Round(time.Millisecond),
	)
}
