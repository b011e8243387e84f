// Inkboard Auth - session and identity service for the Inkboard
// collaborative whiteboard.
//
// The service issues and rotates credential pairs, promotes guest
// identities to registered accounts, and fronts it all with a small
// JSON API. Guests are provisioned silently on first visit; nothing in
// the product flow ever forces a login.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	_ "github.com/inkboard/inkboard-auth/migrations"

	"github.com/inkboard/inkboard-auth/internal/api"
	"github.com/inkboard/inkboard-auth/internal/audit"
	"github.com/inkboard/inkboard-auth/internal/auth"
	"github.com/inkboard/inkboard-auth/internal/board"
	"github.com/inkboard/inkboard-auth/internal/events"
	"github.com/inkboard/inkboard-auth/internal/infrastructure/config"
	"github.com/inkboard/inkboard-auth/internal/infrastructure/database"
	"github.com/inkboard/inkboard-auth/internal/infrastructure/logging"
	"github.com/inkboard/inkboard-auth/internal/metrics"
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
	log.Info("starting Inkboard Auth",
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

	// Open database
	db, err := database.Open(database.Config{
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

	// Renewal record store: SQLite by default, Redis when configured.
	records, closeRecords, err := buildRecordStore(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("building record store: %w", err)
	}
	if closeRecords != nil {
		defer closeRecords()
	}
	log.Info("renewal record store ready", "backend", cfg.Records.Backend)

	// Optional collaborators.
	publisher, err := buildPublisher(cfg, log)
	if err != nil {
		return fmt.Errorf("connecting event publisher: %w", err)
	}
	defer publisher.Close()

	recorder := buildRecorder(cfg, log)
	defer recorder.Close()

	// Core auth wiring.
	identities := auth.NewIdentityStore(db.DB)
	codec := auth.NewCodec(auth.TokenPolicy{
		Secret:          cfg.Tokens.Secret,
		AccessTTL:       cfg.Tokens.AccessTTLDuration(),
		UserRenewalTTL:  cfg.Tokens.UserRenewalTTLDuration(),
		GuestRenewalTTL: cfg.Tokens.GuestRenewalTTLDuration(),
	})
	issuer := auth.NewIssuer(codec, records)
	auditRepo := audit.NewRepository(db.DB)

	service := auth.NewService(auth.ServiceDeps{
		Identities: identities,
		Issuer:     issuer,
		Gate:       auth.NewGate(codec, issuer),
		Codec:      codec,
		Promoter:   auth.NewPromoter(identities, issuer, board.NewStore(db.DB)),
		Audit:      auditRepo,
		Events:     publisher,
		Metrics:    recorder,
		Logger:     log.With("component", "auth"),
	})

	// HTTP front.
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log.With("component", "api"),
		Auth:    service,
		Audit:   auditRepo,
		Health:  db,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	log.Info("Inkboard Auth stopped")
	return nil
}

// buildRecordStore selects and connects the renewal record backend. The
// returned closer is non-nil only for backends with their own connection.
func buildRecordStore(ctx context.Context, cfg *config.Config, db *database.DB) (auth.RenewalRecordStore, func(), error) {
	switch cfg.Records.Backend {
	case config.RecordsBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Records.Redis.Addr,
			Password: cfg.Records.Redis.Password,
			DB:       cfg.Records.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("pinging redis at %s: %w", cfg.Records.Redis.Addr, err)
		}
		return auth.NewRedisRecordStore(client), func() { client.Close() }, nil

	default:
		return auth.NewRecordStore(db.DB), nil, nil
	}
}

// buildPublisher connects the MQTT event publisher, or returns the no-op
// implementation when disabled.
func buildPublisher(cfg *config.Config, log *logging.Logger) (events.Publisher, error) {
	if !cfg.MQTT.Enabled {
		log.Info("event publisher disabled")
		return events.Nop{}, nil
	}

	publisher, err := events.Connect(cfg.MQTT, log.With("component", "events"))
	if err != nil {
		return nil, err
	}
	log.Info("event publisher connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port),
		"client_id", cfg.MQTT.ClientID,
	)
	return publisher, nil
}

// buildRecorder creates the InfluxDB metrics recorder, or the no-op
// implementation when disabled.
func buildRecorder(cfg *config.Config, log *logging.Logger) metrics.Recorder {
	if !cfg.InfluxDB.Enabled {
		log.Info("metrics recorder disabled")
		return metrics.Nop{}
	}

	log.Info("metrics recorder connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return metrics.NewInflux(cfg.InfluxDB)
}

// getConfigPath returns the configuration file path.
// Uses INKBOARD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("INKBOARD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
