package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mongo_client "stockscore/clients/mongo"
	"stockscore/config"
	"stockscore/controllers"
	"stockscore/middleware"
	"stockscore/routes"
	"stockscore/scoring"
	"stockscore/services"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GracefulShutdown stops the server on SIGINT/SIGTERM, then runs cleanup in order.
func GracefulShutdown(server *http.Server, cleanup ...func()) {
	stopper := make(chan os.Signal, 1)
	// Listen for interrupt and SIGTERM signals
	signal.Notify(stopper, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-stopper
		zap.L().Info("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			zap.L().Error("Server shutdown failed", zap.Error(err))
		}
		for _, fn := range cleanup {
			fn()
		}
		sentry.Flush(2 * time.Second)
		zap.L().Info("Server exited gracefully")
	}()
}

func setupLogger(level string) {
	zc := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zc.Build()
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	zap.ReplaceGlobals(logger)
}

func setupSentry(cfg *config.Config) {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      cfg.Server.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.Sentry.SampleRate,
	}); err != nil {
		zap.L().Error("Sentry initialization failed", zap.Error(err))
	}
}

func main() {
	config.LoadDotEnv()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	setupLogger(cfg.Server.LogLevel)
	defer zap.L().Sync()

	if err := cfg.Validate(); err != nil {
		zap.L().Fatal("Invalid configuration", zap.Error(err))
	}

	setupSentry(cfg)

	ctx := context.Background()
	var cleanup []func()

	resolver := scoring.NewSectorResolver(scoring.DefaultSectors)
	startSectorReload(ctx, cfg, resolver, &cleanup)

	publisher, err := services.NewEventPublisher(cfg)
	if err != nil {
		zap.L().Error("Event publisher unavailable, events disabled", zap.String("driver", cfg.Events.Driver), zap.Error(err))
	}
	events := services.NewEventService(publisher)
	cleanup = append(cleanup, events.Close)

	var explainer scoring.Explainer
	gemini, err := services.NewGeminiExplainer(ctx, cfg.Explainer.APIKey, cfg.Explainer.Model, cfg.Explainer.RatePerMinute)
	if err != nil {
		zap.L().Warn("Explainer disabled", zap.Error(err))
	} else {
		explainer = gemini
	}

	pipeline := services.NewPipeline(cfg, resolver, explainer, events)
	scoreService := services.NewScoreService(pipeline)

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware())
	router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())

	routes.Routes(router, controllers.NewScoreController(scoreService), controllers.NewStockController(scoreService))

	// Create a server instance using gin engine as handler
	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	GracefulShutdown(server, cleanup...)

	zap.L().Info("Starting server", zap.String("port", cfg.Server.Port))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Error starting server: %v", err)
	}
}

// startSectorReload swaps in the mongo sector table and schedules its reload.
// Any failure leaves the built-in table in place.
func startSectorReload(ctx context.Context, cfg *config.Config, resolver *scoring.SectorResolver, cleanup *[]func()) {
	if cfg.Sectors.Source != config.SectorsMongo {
		return
	}

	client, err := mongo_client.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		zap.L().Error("MongoDB unavailable, using built-in sectors", zap.Error(err))
		return
	}
	*cleanup = append(*cleanup, func() { mongo_client.Disconnect(client) })

	collection := client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
	svc := services.NewSectorService(resolver, &services.MongoSectorLoader{Collection: collection})
	if err := svc.Reload(ctx); err != nil {
		zap.L().Warn("Initial sector load failed, using built-in sectors", zap.Error(err))
	}
	if err := svc.Start(cfg.Sectors.ReloadCron); err != nil {
		zap.L().Error("Sector reload not scheduled", zap.Error(err))
		return
	}
	// stop the schedule before the mongo client goes away
	*cleanup = append([]func(){svc.Stop}, *cleanup...)
}
