// File: cmd/monitor/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/campaignwatch/campaign-watch/internal/config"
	"github.com/campaignwatch/campaign-watch/internal/delivery"
	"github.com/campaignwatch/campaign-watch/internal/evaluator"
	"github.com/campaignwatch/campaign-watch/internal/feed"
	"github.com/campaignwatch/campaign-watch/internal/health"
	"github.com/campaignwatch/campaign-watch/internal/metrics"
	"github.com/campaignwatch/campaign-watch/internal/scheduler"
	"github.com/campaignwatch/campaign-watch/internal/scope"
	"github.com/campaignwatch/campaign-watch/internal/server"
	"github.com/campaignwatch/campaign-watch/internal/storage"
	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config         *config.Config
	logger         *logrus.Logger
	storage        storage.Storage
	feed           feed.Feed
	resolver       scope.Resolver
	evaluator      *evaluator.Evaluator
	scheduler      scheduler.Scheduler
	tracker        *health.Tracker
	engine         *delivery.Engine
	server         *server.HTTPServer
	metricsManager *metrics.Manager
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	// Initialize logger
	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize components
	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	app.metricsManager = metrics.NewManager()

	// Initialize storage
	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize evaluation pipeline
	app.feed = feed.NewStorageFeed(app.storage)
	app.resolver = scope.NewResolver(app.storage)
	app.evaluator = evaluator.NewEvaluator(app.feed, app.storage, &evaluator.Config{
		MinimumSentVolume: app.config.Evaluator.MinimumSentVolume,
	})

	// Initialize scheduler
	app.scheduler = scheduler.NewScheduler(app.storage, app.resolver, app.evaluator, &scheduler.Config{
		TickInterval:    app.config.Scheduler.TickInterval,
		Workers:         app.config.Scheduler.Workers,
		EvaluateTimeout: app.config.Scheduler.EvaluateTimeout,
	}, app.metricsManager)

	// Initialize delivery engine
	app.tracker = health.NewTracker(app.storage, &health.Config{
		MaxFailures: app.config.Delivery.MaxFailures,
	}, app.metricsManager)

	sender := delivery.NewHTTPSender(app.config.Delivery.MaxResponseBodyBytes)
	app.engine = delivery.NewEngine(app.storage, sender, app.tracker, &delivery.Config{
		Workers:              app.config.Delivery.Workers,
		PollInterval:         app.config.Delivery.PollInterval,
		BatchSize:            app.config.Delivery.BatchSize,
		BaseRetryDelay:       app.config.Delivery.BaseRetryDelay,
		MaxRetryDelay:        app.config.Delivery.MaxRetryDelay,
		MaxResponseBodyBytes: app.config.Delivery.MaxResponseBodyBytes,
	}, app.metricsManager)

	// Initialize HTTP server
	var err error
	app.server, err = server.NewHTTPServer(&app.config.Server, app.storage,
		app.scheduler, app.engine, app.evaluator, app.metricsManager)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	app.logger.Info("Initializing storage layer")

	var err error
	app.storage, err = storage.NewStorage(&app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	// Connect to storage
	if err := app.storage.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	// Run migrations
	if err := app.storage.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.logger.Info("Storage layer initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting Campaign Watch")

	// Start HTTP server
	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// Start delivery engine before the scheduler so the first tick's
	// triggers have workers waiting for them
	if err := app.engine.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start delivery engine: %w", err)
	}

	// Start monitoring scheduler
	if err := app.scheduler.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Start retention cleanup
	if app.config.Storage.RetentionDays > 0 {
		go app.retentionLoop()
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"tick_interval":  app.config.Scheduler.TickInterval,
		"storage":        app.config.Storage.Type,
	}).Info("Campaign Watch started successfully")

	return nil
}

// retentionLoop prunes delivered triggers and delivery log rows past the
// configured retention window, once a day.
func (app *Application) retentionLoop() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(app.ctx, 10*time.Minute)
			if err := app.storage.Cleanup(ctx, app.config.Storage.RetentionDays); err != nil {
				app.logger.WithField("error", err).Error("Retention cleanup failed")
			}
			cancel()
		}
	}
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping Campaign Watch")

	// Cancel context to stop all components
	app.cancel()

	// Stop components in reverse order
	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithField("error", err).Error("Failed to stop HTTP server")
		}
	}

	if app.scheduler != nil {
		if err := app.scheduler.Stop(); err != nil {
			app.logger.WithField("error", err).Error("Failed to stop scheduler")
		}
	}

	if app.engine != nil {
		if err := app.engine.Stop(); err != nil {
			app.logger.WithField("error", err).Error("Failed to stop delivery engine")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithField("error", err).Error("Failed to close storage")
		}
	}

	app.logger.Info("Campaign Watch stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "campaign-watch",
	Short:   "Campaign Watch webhook event monitor",
	Long:    `A monitoring pipeline that evaluates email campaign metrics against user-defined rules and delivers webhook notifications when they fire.`,
	Version: AppVersion,
	RunE:    runMonitor,
}

// runMonitor is the main command to run the monitor
func runMonitor(cmd *cobra.Command, args []string) error {
	// Load configuration
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create application
	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// Set up signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	// Start application
	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Wait for shutdown signal
	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	// Stop application
	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Campaign Watch %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Tick interval: %s\n", cfg.Scheduler.TickInterval)
		fmt.Printf("Delivery workers: %d\n", cfg.Delivery.Workers)

		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Testing Campaign Watch connectivity...")

		// Test storage
		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		if err := store.Ping(); err != nil {
			return fmt.Errorf("storage ping failed: %w", err)
		}
		fmt.Println("✓ Storage connection successful")

		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	// Add persistent flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
