// CAD Core - authentication kernel for CAD deployments.
//
// This is the main entry point for the CAD Core service. It admits new
// accounts, verifies credentials, and issues time-bounded session tokens,
// enforcing each deployment's whitelist and bootstrap policy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/opencadhq/cad-core/migrations"

	"github.com/opencadhq/cad-core/internal/api"
	"github.com/opencadhq/cad-core/internal/auth"
	"github.com/opencadhq/cad-core/internal/infrastructure/config"
	"github.com/opencadhq/cad-core/internal/infrastructure/database"
	"github.com/opencadhq/cad-core/internal/infrastructure/influxdb"
	"github.com/opencadhq/cad-core/internal/infrastructure/logging"
	"github.com/opencadhq/cad-core/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting CAD Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and apply migrations
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories and the admission controller
	userRepo := auth.NewUserRepository(db.DB)
	cadRepo := auth.NewCadRepository(db.DB)
	admission := auth.NewController(userRepo, cadRepo, cfg.Security.JWT.Secret, log.Logger)

	// Connect to the event broker (optional)
	var events *mqtt.Client
	if cfg.MQTT.Enabled {
		events, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := events.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		events.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		events.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	}

	// Connect to the telemetry sink (optional)
	var telemetry *influxdb.Client
	if cfg.InfluxDB.Enabled {
		telemetry, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			// Telemetry is non-critical; log and continue without it.
			log.Warn("InfluxDB unavailable, continuing without telemetry", "error", err)
			telemetry = nil
		} else {
			defer func() {
				log.Info("closing InfluxDB")
				if closeErr := telemetry.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			telemetry.SetOnError(func(err error) {
				log.Warn("InfluxDB write error", "error", err)
			})
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	// Start the API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		Security:  cfg.Security,
		Logger:    log,
		Admission: admission,
		Users:     userRepo,
		Events:    events,
		Telemetry: telemetry,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	log.Info("shutdown signal received")

	return nil
}

// getConfigPath returns the configuration file path from the environment
// or the default.
func getConfigPath() string {
	if path := os.Getenv("CADCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
