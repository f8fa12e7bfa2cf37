package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/appvault/harvester"
	"github.com/appvault/harvester/api"
	"github.com/appvault/harvester/db"
	"github.com/appvault/harvester/linker"
	"github.com/appvault/harvester/metrics"
	"github.com/appvault/harvester/storage"
	"github.com/appvault/harvester/tracing"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("harvester service initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := tracing.InitTracer("harvester")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	// Default values
	defaultPort := getEnv("PORT", "8080")
	defaultStoragePath := getEnv("STORAGE_BASE_PATH", "./storage")
	defaultAssetBaseURL := getEnv("ASSET_BASE_URL", "")
	defaultRelevanceFloor := getEnv("RELEVANCE_FLOOR", "0.1")
	defaultMaxPages := getEnv("CRAWL_MAX_PAGES", "10")

	relevanceFloor, err := strconv.ParseFloat(defaultRelevanceFloor, 64)
	if err != nil {
		logger.Warn("invalid RELEVANCE_FLOOR value, using default",
			"provided", defaultRelevanceFloor,
			"default", 0.1,
			"error", err,
		)
		relevanceFloor = 0.1
	}

	if _, err := strconv.Atoi(defaultMaxPages); err != nil {
		logger.Warn("invalid CRAWL_MAX_PAGES value, using default",
			"provided", defaultMaxPages,
			"default", 10,
			"error", err,
		)
	}

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	floor := flag.Float64("relevance-floor", relevanceFloor, "Minimum similarity score for related-item links (0.0-1.0)")
	crawlDelay := flag.Duration("crawl-delay", 500*time.Millisecond, "Delay between listing page fetches")
	uploadDelay := flag.Duration("upload-delay", 250*time.Millisecond, "Delay between image uploads")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	flag.Parse()

	// PostgreSQL database configuration (required)
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}

	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "harvester")
	dbPassword := getEnv("DB_PASSWORD", "harvester_dev_pass")
	dbName := getEnv("DB_NAME", "harvester")

	dbConfig := db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort, dbUser, dbPassword, dbName),
	}
	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)

	harvesterConfig := harvester.DefaultConfig()
	harvesterConfig.CrawlDelay = *crawlDelay
	harvesterConfig.UploadDelay = *uploadDelay

	linkerConfig := linker.DefaultConfig()
	linkerConfig.RelevanceFloor = *floor

	// S3 asset storage is used when a bucket is configured; filesystem
	// storage otherwise.
	s3Bucket := getEnv("S3_BUCKET", "")
	config := api.Config{
		Addr:            ":" + *port,
		DBConfig:        dbConfig,
		HarvesterConfig: harvesterConfig,
		LinkerConfig:    linkerConfig,
		StorageConfig: storage.Config{
			BasePath:      defaultStoragePath,
			PublicBaseURL: defaultAssetBaseURL,
		},
		S3Config: storage.S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          s3Bucket,
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "") == "true",
			PublicBaseURL:   defaultAssetBaseURL,
		},
		CORSEnabled: !*disableCORS,
	}

	// Create server
	server, err := api.NewServer(config)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Connection pool metrics
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.UpdateDBStats(server.DB().Conn().Stats())
		}
	}()
	logger.Info("database metrics initialized")

	// Start server in a goroutine
	go func() {
		logger.Info("harvester service starting",
			"port", *port,
			"database_host", dbHost,
			"database_name", dbName,
			"storage_path", defaultStoragePath,
			"s3_bucket", s3Bucket,
			"relevance_floor", *floor,
			"crawl_delay", crawlDelay.String(),
		)

		if err := server.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
