package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/entrepreneur-whisperer/site/server/internal/config"
	"github.com/entrepreneur-whisperer/site/server/internal/handler"
	"github.com/entrepreneur-whisperer/site/server/internal/middleware"
	"github.com/entrepreneur-whisperer/site/server/internal/service"
	"github.com/entrepreneur-whisperer/site/server/internal/telemetry"
)

// main is the single entry‑point for the REST API.
func main() {
	// Load configuration
	cfg := config.Load()

	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	missing := cfg.Missing()
	log.Info("configuration loaded",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.GenerationModel()),
		zap.Duration("deadline", cfg.AssistantTimeout),
		zap.Bool("api_key_set", cfg.OpenAIAPIKey != ""),
		zap.Bool("vector_store_set", cfg.VectorStoreID != ""),
		zap.Strings("missing", missing),
	)

	// Tracing
	var traceOut io.Writer
	if cfg.TraceStdout {
		traceOut = os.Stdout
	}
	shutdownTracing, err := telemetry.SetupTracing("entrepreneur-whisperer", traceOut)
	if err != nil {
		log.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()
	metrics := telemetry.NewMetrics()

	// Upstream clients
	httpClient := &http.Client{Timeout: config.MaxDeadline}
	oa := service.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	retriever := service.NewVectorStoreRetriever(httpClient, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey,
		cfg.VectorStoreID, service.NewOpenAIFiles(oa), log)

	var generator service.Generator
	switch cfg.Provider {
	case config.ProviderChat:
		generator = service.NewChatLLM(oa, log)
	case config.ProviderVertex:
		if cfg.ProjectID == "" {
			// Reported by Missing: requests answer 500 before generation.
			break
		}
		vertex, err := service.NewVertexLLM(context.Background(), cfg.ProjectID, cfg.Location, cfg.CredentialsFile, log)
		if err != nil {
			log.Fatal("failed to initialize Vertex AI", zap.Error(err))
		}
		defer vertex.Close()
		generator = vertex
	default:
		generator = service.NewResponsesLLM(httpClient, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, log)
	}

	// Initialize services
	assistantSvc := service.NewAssistantService(service.Options{
		Model:           cfg.GenerationModel(),
		Deadline:        cfg.AssistantTimeout,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Missing:         missing,
		Metrics:         metrics,
	}, retriever, generator, log)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "entrepreneur-whisperer",
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorHandler: handler.NewErrorHandler(log),
	})

	// Add middleware
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logging(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Accept,Accept-Language," + middleware.HeaderRequestID,
	}))

	// Register routes
	handler.RegisterRoutes(app,
		handler.NewAssistantHandler(assistantSvc, log),
		handler.NewHealthHandler(cfg.Provider, cfg.GenerationModel(), missing),
		metrics.Handler(),
	)
	app.Static("/", cfg.StaticDir)

	// Start server
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(config.MaxDeadline + 5*time.Second); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	log, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
