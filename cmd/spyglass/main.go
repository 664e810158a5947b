package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spyglass-home/spyglass-core/internal/api"
	"github.com/spyglass-home/spyglass-core/internal/bridge"
	"github.com/spyglass-home/spyglass-core/internal/history"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/config"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/database"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/influxdb"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/logging"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/mqtt"

	_ "github.com/spyglass-home/spyglass-core/migrations"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("spyglass", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := *configPath
	if path == "" {
		path = getConfigPath()
	}

	if err := run(ctx, path); err != nil {
		fmt.Fprintln(os.Stderr, "spyglass:", err)
		os.Exit(1)
	}
}

// getConfigPath resolves the configuration file location, preferring the
// SPYGLASS_CONFIG environment variable over the built-in default.
func getConfigPath() string {
	if path := os.Getenv("SPYGLASS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("starting", "version", version, "site", cfg.Site.ID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Database and migrations.
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	repo := history.NewRepository(db)

	// MQTT is mandatory: without it there is no device surface.
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	mqttClient.SetLogger(logger)
	defer mqttClient.Close()

	// Metrics are optional; a nil client swallows writes.
	var metrics *influxdb.Client
	if cfg.InfluxDB.Enabled {
		metrics, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			// Degraded but functional: the bridge works without metrics.
			logger.Warn("influxdb unavailable, metrics disabled", "error", err)
			metrics = nil
		} else {
			defer metrics.Close()
		}
	}

	hub := api.NewHub(logger)

	b := bridge.New(cfg.Spy, bridge.Deps{
		MQTT:    mqttClient,
		History: repo,
		Metrics: metrics,
		Sink:    hub,
		Logger:  logger,
	})
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}

	health := bridge.NewHealthReporter(mqttClient, bridge.DefaultHealthInterval, b.Health, logger)
	health.Start()
	defer health.Stop()

	errCh := make(chan error, 1)
	if cfg.API.Enabled {
		server := api.NewServer(cfg.API, api.Deps{
			Registry: b.Registry(),
			Engine:   b.Engine(),
			History:  repo,
			Health:   b.Health,
			Hub:      hub,
			Logger:   logger,
		})
		go func() { errCh <- server.Start(ctx) }()
	}

	pruneDone := startRetentionLoop(ctx, repo, logger)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			cancel()
			<-pruneDone
			b.Wait()
			return fmt.Errorf("api server: %w", err)
		}
	}

	logger.Info("shutting down")
	<-pruneDone
	b.Wait()
	return nil
}

// startRetentionLoop prunes history rows older than 30 days, once a day.
func startRetentionLoop(ctx context.Context, repo *history.Repository, logger *logging.Logger) <-chan struct{} {
	const retention = 30 * 24 * time.Hour

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruneCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
				removed, err := repo.Prune(pruneCtx, time.Now().Add(-retention))
				cancel()
				if err != nil {
					logger.Warn("history prune failed", "error", err)
				} else if removed > 0 {
					logger.Info("history pruned", "rows", removed)
				}
			}
		}
	}()
	return done
}
