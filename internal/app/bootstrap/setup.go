package bootstrap

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"kestrel/internal/cache"
	"kestrel/internal/collect"
	"kestrel/internal/config"
	"kestrel/internal/database"
	"kestrel/internal/geo"
)

const tokenDir = "data/tokens"

// Setup wires the collection pipeline: settings, database, cache, geo
// enrichment and one orchestrator per enabled source. sourceFilter narrows the
// pipeline to a single named source when non-empty.
func Setup(redisClient *redis.Client, sourceFilter string) (*collect.Pipeline, error) {
	config.ReadSettings()

	if _, err := database.SetupDB(); err != nil {
		return nil, fmt.Errorf("set up database: %w", err)
	}
	config.SetBetweenTime()

	cfg := config.GetConfig()

	var activeList *cache.ActiveList
	if redisClient != nil {
		activeList = cache.NewActiveList(redisClient)
	}

	writer := &database.Writer{
		Cache: activeList,
		Geo:   geo.NewResolver(cfg.GeoIP.DatabasePath),
	}

	sources := config.EnabledSources()
	if sourceFilter != "" {
		var filtered []config.SourceConfig
		for _, src := range sources {
			if strings.EqualFold(src.Name, sourceFilter) {
				filtered = append(filtered, src)
			}
		}
		if len(filtered) == 0 {
			return nil, fmt.Errorf("source %q is not configured or not enabled", sourceFilter)
		}
		sources = filtered
	}

	orchestrators := make([]*collect.Orchestrator, 0, len(sources))
	for _, src := range sources {
		creds := config.GetCredentials(src.Name)
		if creds.Username == "" || creds.Password == "" {
			log.Warn("Source skipped, credentials not configured", "source", src.Name)
			continue
		}

		auth := collect.NewAuthSessionManager(
			src,
			creds,
			filepath.Join(tokenDir, src.Name+".json"),
			time.Duration(cfg.Collector.TimeoutSeconds)*time.Second,
			collect.SystemClock,
		)

		orchestrators = append(orchestrators, collect.NewOrchestrator(
			src,
			auth,
			collect.BuildStrategies(src),
			writer,
			collect.NewStats(),
			int(cfg.Collector.Retries),
			time.Duration(cfg.Collector.RetryDelaySeconds)*time.Second,
		))

		log.Debug("Source wired", "source", src.Name, "strategies", len(src.Strategies))
	}

	log.Info("Pipeline ready", "sources", len(orchestrators))

	return collect.NewPipeline(
		orchestrators,
		int(cfg.Collector.DateRangeDays),
		collect.SystemClock,
	), nil
}
