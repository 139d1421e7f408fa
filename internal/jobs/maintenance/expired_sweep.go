package maintenance

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"kestrel/internal/database"
	"kestrel/internal/support"
)

const (
	envSweepInterval        = "EXPIRED_SWEEP_INTERVAL"
	envSweepIntervalMinutes = "EXPIRED_SWEEP_INTERVAL_MINUTES"

	defaultSweepMinutes = 360
)

// StartExpiredSweepRoutine periodically deactivates entries whose expiration
// date has passed. Entries are flagged inactive, never deleted.
func StartExpiredSweepRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := resolveSweepInterval()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runExpiredSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runExpiredSweep(ctx)
		}
	}
}

func resolveSweepInterval() time.Duration {
	if raw := support.GetEnv(envSweepInterval, ""); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			return parsed
		}
		log.Warn("Invalid EXPIRED_SWEEP_INTERVAL value, falling back to minutes env", "value", raw)
	}

	minutes := support.GetEnvInt(envSweepIntervalMinutes, defaultSweepMinutes)
	if minutes <= 0 {
		minutes = defaultSweepMinutes
	}

	return time.Duration(minutes) * time.Minute
}

func runExpiredSweep(ctx context.Context) {
	start := time.Now()

	deactivated, err := database.DeactivateExpired(ctx, start.UTC())
	if err != nil {
		log.Error("Expired entry sweep failed", "error", err)
		return
	}
	if deactivated == 0 {
		return
	}

	log.Info("Expired entries deactivated",
		"count", deactivated,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}
