package app

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"kestrel/internal/app/bootstrap"
	"kestrel/internal/app/version"
	"kestrel/internal/config"
	"kestrel/internal/jobs/maintenance"
	"kestrel/internal/jobs/runtime"
	"kestrel/internal/support"
)

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(log.DebugLevel)
	log.Info("Starting kestrel", "version", version.BuildVersion())

	sourceFlag := flag.String("source", "", "Collect from a single named source")
	onceFlag := flag.Bool("once", false, "Run one collection cycle and exit")
	productionFlag := flag.Bool("production", false, "Run in production mode")
	flag.Parse()

	config.SetProductionMode(*productionFlag)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is optional: without it the pipeline runs with the cache and
	// heartbeat disabled.
	redisClient, err := support.GetRedisClient()
	if err != nil {
		log.Warn("Redis unavailable, running without cache and heartbeat", "error", err)
		redisClient = nil
	} else {
		defer func() {
			if err := support.CloseRedisClient(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()

		heartbeatCancel := runtime.LaunchInstanceHeartbeat(ctx, redisClient)
		defer heartbeatCancel()
	}

	pipeline, err := bootstrap.Setup(redisClient, *sourceFlag)
	if err != nil {
		return err
	}

	if *onceFlag {
		pipeline.RunCycle(ctx)
		return nil
	}

	go maintenance.StartExpiredSweepRoutine(ctx)
	runtime.StartCollectionRoutine(ctx, pipeline)

	log.Info("Shutting down")
	return nil
}
