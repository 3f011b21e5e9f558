package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/remediarr/remediarr/internal/api"
	"github.com/remediarr/remediarr/internal/clock"
	"github.com/remediarr/remediarr/internal/config"
	"github.com/remediarr/remediarr/internal/db"
	"github.com/remediarr/remediarr/internal/eventbus"
	"github.com/remediarr/remediarr/internal/integration"
	"github.com/remediarr/remediarr/internal/logger"
	"github.com/remediarr/remediarr/internal/metrics"
	"github.com/remediarr/remediarr/internal/notifier"
	"github.com/remediarr/remediarr/internal/services"
)

func main() {
	// Define command line flags (these override environment variables)
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	// Configuration flags - all can also be set via environment variables
	flagPort := flag.String("port", "", "HTTP server port (env: REMEDIARR_PORT, default: 8189)")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: LOG_LEVEL, default: info)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: REMEDIARR_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Database file path (env: REMEDIARR_DATABASE_PATH)")
	flagIssueCooldown := flag.Duration("issue-cooldown", 0, "Window during which repeat deliveries of an issue are ignored (env: ISSUE_COOLDOWN_SEC, default: 90s)")
	flagRetentionDays := flag.Int("retention-days", -1, "Days to keep audit events, 0 to disable pruning (env: REMEDIARR_RETENTION_DAYS, default: 90)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("Remediarr %s\n", config.Version)
		os.Exit(0)
	}

	// Load configuration from environment variables
	config.Load()

	// Apply command-line flag overrides
	flagOverrides := config.FlagOverrides{
		Port:          flagPort,
		LogLevel:      flagLogLevel,
		DataDir:       flagDataDir,
		DatabasePath:  flagDatabasePath,
		IssueCooldown: flagIssueCooldown,
	}
	// Special handling for retention days: -1 means not set (use default), 0 means disable
	if *flagRetentionDays >= 0 {
		flagOverrides.RetentionDays = flagRetentionDays
	}
	config.ApplyFlags(flagOverrides)

	cfg := config.Get()

	// Initialize logger with configured log directory
	logger.Init(cfg.LogDir)
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("========================================")
	logger.Infof("Starting Remediarr %s...", config.Version)
	logger.Infof("Jellyseerr issue remediation for Radarr/Sonarr")
	logger.Infof("========================================")

	logger.Infof("Configuration:")
	logger.Infof("  Port: %s", cfg.Port)
	logger.Infof("  Log Level: %s", cfg.LogLevel)
	logger.Infof("  Data Directory: %s", cfg.DataDir)
	logger.Infof("  Database: %s", cfg.DatabasePath)
	logger.Infof("  Jellyseerr: %s", cfg.JellyseerrURL)
	logger.Infof("  Radarr: %s", cfg.RadarrURL)
	logger.Infof("  Sonarr: %s", cfg.SonarrURL)
	if cfg.BazarrURL != "" {
		logger.Infof("  Bazarr: %s (subtitle issues are delegated)", cfg.BazarrURL)
	}
	if cfg.TMDBAPIKey != "" && cfg.SearchOnlyIfDigitalRelease {
		logger.Infof("  TMDB digital-release gate: enabled")
	}
	logger.Infof("  Issue Cooldown: %s", cfg.IssueCooldown)
	logger.Infof("  Verify Grab: radarr=%s sonarr=%s (poll: %s)", cfg.RadarrVerifyGrab, cfg.SonarrVerifyGrab, cfg.VerifyPoll)
	logger.Infof("  *arr API Rate Limit: %.1f req/s (burst: %d)", cfg.ArrRateLimitRPS, cfg.ArrRateLimitBurst)
	if cfg.RetentionDays > 0 {
		logger.Infof("  Event Retention: %d days", cfg.RetentionDays)
	} else {
		logger.Infof("  Event Retention: disabled (no automatic pruning)")
	}

	// Initialize Database
	logger.Infof("Initializing database: %s", cfg.DatabasePath)
	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Database initialized successfully")

	stopCheckpoint := repo.StartPeriodicCheckpoint(5 * time.Minute)

	// Start scheduled maintenance goroutine (daily at 3 AM local time)
	go func() {
		retentionDays := cfg.RetentionDays
		for {
			now := time.Now()
			next3AM := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
			if now.After(next3AM) {
				next3AM = next3AM.Add(24 * time.Hour)
			}
			sleepDuration := next3AM.Sub(now)
			logger.Debugf("Next database maintenance scheduled in %v", sleepDuration)

			time.Sleep(sleepDuration)

			if err := repo.RunMaintenance(retentionDays); err != nil {
				logger.Errorf("Scheduled maintenance failed: %v", err)
			}
		}
	}()

	// Initialize Event Bus
	logger.Infof("Initializing Event Bus...")
	eb := eventbus.NewEventBus(repo.DB)
	logger.Infof("✓ Event Bus initialized")

	// Initialize Metrics Service (Prometheus metrics)
	metricsService := metrics.NewMetricsService(eb)
	metricsService.Start()
	logger.Infof("✓ Metrics Service (Prometheus endpoint at /metrics)")

	// Downstream clients share one circuit breaker registry and retry policy
	clk := clock.NewRealClock()
	breakers := integration.NewCircuitBreakerRegistry(integration.DefaultCircuitBreakerConfig())
	retryPolicy := integration.DefaultRetryPolicy(cfg.HTTPMaxRetries, cfg.HTTPRetryBackoff, nil)

	logger.Infof("Initializing downstream clients...")
	radarr := integration.NewRadarr(cfg.RadarrURL, cfg.RadarrAPIKey, cfg.RadarrHTTPTimeout, breakers, retryPolicy)
	sonarr := integration.NewSonarr(cfg.SonarrURL, cfg.SonarrAPIKey, cfg.SonarrHTTPTimeout, breakers, retryPolicy)
	jellyseerr := integration.NewJellyseerr(cfg.JellyseerrURL, cfg.JellyseerrAPIKey, breakers, retryPolicy)
	tmdb := integration.NewTMDB(cfg.TMDBAPIKey, clk, breakers, retryPolicy)
	bazarr := integration.NewBazarr(cfg.BazarrURL, cfg.BazarrAPIKey, breakers, retryPolicy)
	logger.Infof("✓ Downstream clients initialized")

	// Initialize Orchestrator
	orchestrator := services.NewOrchestrator(eb, radarr, sonarr, jellyseerr, tmdb, bazarr, clk)
	orchestrator.Start()
	logger.Infof("✓ Orchestrator (classifies issues and drives remediation)")

	// Initialize Health Monitor
	healthMonitor := services.NewHealthMonitor(eb, radarr, sonarr, jellyseerr, bazarr)
	if err := healthMonitor.Start(); err != nil {
		logger.Errorf("Failed to start health monitor: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Health Monitor (periodic downstream reachability checks)")

	// Initialize Notification Service
	notifierService := notifier.NewNotifier(eb, clk)
	if notifierService.Enabled() {
		notifierService.Start()
		logger.Infof("✓ Notification Service (Gotify/Apprise alerts)")
	} else {
		logger.Infof("Notification Service: no sinks configured, skipping")
	}

	// Startup reachability banner; unreachable downstreams do not block startup
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 60*time.Second)
	healthMonitor.StartupCheck(startupCtx)
	startupCancel()

	notifierService.SendStartup(config.Version)

	// Start API Server
	logger.Infof("Initializing REST API and WebSocket server...")
	apiServer := api.NewRESTServer(api.ServerDeps{
		Repo:           repo,
		EventBus:       eb,
		Metrics:        metricsService,
		Health:         healthMonitor,
		HealthNotifier: notifierService,
	})
	go func() {
		addr := ":" + cfg.Port
		if err := apiServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Failed to start API server: %v", err)
			os.Exit(1)
		}
	}()

	logger.Infof("========================================")
	logger.Infof("✓ Remediarr %s started successfully", config.Version)
	logger.Infof("✓ Server listening on port %s", cfg.Port)
	logger.Infof("✓ Webhook endpoint: POST /webhook/jellyseerr")
	logger.Infof("========================================")

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Infof("========================================")
	logger.Infof("Received signal %v, initiating graceful shutdown...", sig)
	logger.Infof("========================================")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown in reverse order of startup: stop accepting webhooks, drain
	// in-flight remediations, then flush the bus and close the database.
	logger.Infof("Stopping API Server...")
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API Server shutdown error: %v", err)
	} else {
		logger.Infof("✓ API Server stopped")
	}

	logger.Infof("Stopping Health Monitor...")
	healthMonitor.Stop()
	logger.Infof("✓ Health Monitor stopped")

	logger.Infof("Waiting for in-flight remediations...")
	orchestrator.Wait()
	logger.Infof("✓ Remediations drained")

	logger.Infof("Stopping Event Bus...")
	eb.Shutdown()
	logger.Infof("✓ Event Bus stopped")

	stopCheckpoint()

	logger.Infof("Closing database...")
	if err := repo.GracefulClose(); err != nil {
		logger.Errorf("Database close error: %v", err)
	} else {
		logger.Infof("✓ Database closed")
	}

	logger.Infof("========================================")
	logger.Infof("✓ Remediarr shutdown complete")
	logger.Infof("========================================")
}
