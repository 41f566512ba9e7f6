package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	httpadapter "todolist/internal/adapter/http"
	"todolist/internal/adapter/telemetry"
	. "todolist/pkg/config"
	"todolist/pkg/logger"
)

const version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := Load(os.Args[1:], EnvMap())

	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	gin.SetMode(ginMode(config))

	appLogger, err := logger.New(config.Telemetry.ServiceName, config.LogLevel)

	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}

	defer appLogger.Sync()

	container, err := telemetry.NewContainer(ctx, telemetry.Config{
		ServiceName:    config.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    config.Environment,
		OTLPEndpoint:   config.Telemetry.OTLPEndpoint,
	})

	if err != nil {
		appLogger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := container.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	db, err := httpadapter.OpenDatabase(config.Database)

	if err != nil {
		appLogger.Fatal("Failed to open database",
			zap.String("driver", config.Database.Driver),
			zap.Error(err))
	}

	appLogger.Info("Configuration loaded",
		zap.String("source", config.Source),
		zap.String("environment", config.Environment),
		zap.String("driver", config.Database.Driver),
		zap.String("api_prefix", config.APIPrefix))

	probe := container.NewTelemetryProbe(appLogger)

	router := httpadapter.SetupRouter(
		httpadapter.NewContainer(db, appLogger, probe),
		httpadapter.RouterConfig{
			App:      config,
			Logger:   appLogger,
			Metrics:  container.AppMetrics,
			Gatherer: container.PrometheusRegistry,
		},
	)

	if err := httpadapter.NewServer(config, router, db, appLogger).Run(ctx); err != nil {
		appLogger.Error("Server error", zap.Error(err))
		os.Exit(1)
	}
}

func ginMode(config *AppConfig) string {
	if config.GinMode != "" {
		return config.GinMode
	}

	switch config.Environment {
	case EnvProduction:
		return gin.ReleaseMode
	case EnvTest:
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
