package common

import (
	"context"
	"log"
	"os"
	"strings"

	"ubt-ledger-go/internal/database"
	"ubt-ledger-go/internal/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

// InitializeLogger builds the process-wide zap logger. When LOG_FILE is set
// the JSON output goes to a size-rotated file instead of stderr.
func InitializeLogger() (*zap.Logger, func()) {
	var logger *zap.Logger

	if path := os.Getenv("LOG_FILE"); path != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			sink,
			zap.InfoLevel,
		)
		logger = zap.New(core)
	} else {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeDatabase opens the economy store from configuration, loading
// the deposit-currency registry if one is configured.
func InitializeDatabase(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	currencies, err := LoadCurrencyConfig(cfg.Economy.CurrenciesFile)
	if err != nil {
		return nil, err
	}
	return database.NewService(ctx, cfg, currencies)
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
