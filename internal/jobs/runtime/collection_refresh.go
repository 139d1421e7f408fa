package runtime

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"kestrel/internal/config"
)

const collectionFallbackEvery = 6 * time.Hour

// CycleRunner is the collection pipeline contract the scheduler drives.
type CycleRunner interface {
	RunCycle(ctx context.Context)
}

// StartCollectionRoutine runs the periodic collection loop with dynamic
// rescheduling: interval changes from the settings file take effect without a
// restart. The first cycle fires immediately on startup.
func StartCollectionRoutine(ctx context.Context, runner CycleRunner) {
	if ctx == nil {
		ctx = context.Background()
	}

	var intervalValue atomic.Value
	initial := config.GetRefreshInterval()
	if initial <= 0 {
		initial = collectionFallbackEvery
	}
	intervalValue.Store(initial)

	updateSignal := make(chan struct{}, 1)
	updates := config.RefreshIntervalUpdates()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newInterval := <-updates:
				if newInterval <= 0 {
					newInterval = collectionFallbackEvery
				}
				intervalValue.Store(newInterval)
				select {
				case updateSignal <- struct{}{}:
				default:
				}
			}
		}
	}()

	runCollectionLoop(ctx, runner, &intervalValue, updateSignal)
}

func runCollectionLoop(ctx context.Context, runner CycleRunner, intervalValue *atomic.Value, updateSignal <-chan struct{}) {
	current := intervalValue.Load().(time.Duration)
	if current <= 0 {
		current = collectionFallbackEvery
	}

	ticker := time.NewTicker(current)
	defer ticker.Stop()

	triggerCycle(ctx, runner, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			triggerCycle(ctx, runner, "scheduled")
		case <-updateSignal:
			newInterval := intervalValue.Load().(time.Duration)
			if newInterval <= 0 {
				newInterval = collectionFallbackEvery
			}
			if newInterval == current {
				continue
			}
			drainTicker(ticker)
			current = newInterval
			ticker.Reset(current)
			log.Info("Collection interval updated", "interval", current)
		}
	}
}

func triggerCycle(ctx context.Context, runner CycleRunner, reason string) {
	log.Debug("Collection cycle starting", "reason", reason)
	runner.RunCycle(ctx)
}

func drainTicker(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
		default:
			return
		}
	}
}
