// Command aggregator runs the tutoring-assignment extraction pipeline: the
// claim-and-lease worker pool (C4/C5), the LLM extractor with circuit
// breaker (C3), duplicate grouping (C6), freshness tiering (C7), delivery
// fanout (C8), and a thin listing HTTP surface (C9), all wired from one
// process.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tutordex/aggregator/pkg/api"
	"github.com/tutordex/aggregator/pkg/config"
	"github.com/tutordex/aggregator/pkg/delivery"
	"github.com/tutordex/aggregator/pkg/duplicate"
	"github.com/tutordex/aggregator/pkg/extract"
	"github.com/tutordex/aggregator/pkg/freshness"
	"github.com/tutordex/aggregator/pkg/metrics"
	"github.com/tutordex/aggregator/pkg/observe"
	"github.com/tutordex/aggregator/pkg/queue"
	"github.com/tutordex/aggregator/pkg/store"
	"github.com/tutordex/aggregator/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config", getEnv("AGGREGATOR_CONFIG", "./deploy/aggregator.yaml"), "path to aggregator.yaml")
	podID := flag.String("pod-id", getEnv("POD_ID", "aggregator-1"), "identifier for this process instance")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	initLogger(cfg.Log)

	slog.Info("starting "+version.Full(), "pod_id", *podID, "pipeline_version", cfg.PipelineVersion)

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer st.Close()

	if err := store.Migrate(cfg.Database.DSN); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}
	slog.Info("database schema up to date")

	redisClient := newRedisClient(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	reg := metrics.New()
	emitter := observe.NewEmitter(nil)

	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	var llmExtractor extract.Extractor
	if apiKey == "" {
		slog.Warn("no LLM API key configured, extraction will fail permanently", "env_var", cfg.LLM.APIKeyEnv)
		llmExtractor = extract.UnavailableExtractor{}
	} else {
		llmExtractor = extract.NewAnthropicExtractor(apiKey, cfg.LLM.Model)
	}
	breakerExtractor := extract.NewBreakerExtractor(llmExtractor, cfg.LLM.Model, cfg.Breaker, cfg.LLM.MaxRetries)

	dupDetector := duplicate.New(st, cfg.Duplicate)
	fanout := delivery.New(st, delivery.LogTransport{}, redisClient, cfg.Delivery)

	pipeline := queue.NewPipeline(st, breakerExtractor, extract.MarkerCompilationHeuristic{}, dupDetector, fanout, emitter, reg, cfg.Queue)
	pool := queue.NewPool(*podID, cfg.PipelineVersion, st, pipeline, cfg.Queue)
	pool.Start(ctx)
	defer pool.Stop()
	slog.Info("worker pool started", "workers", cfg.Queue.WorkerCount)

	recomputer := freshness.New(st, cfg.Freshness)
	go recomputer.Run(ctx)
	defer recomputer.Stop()

	apiServer := api.NewServer(st, pool, reg.Gatherer())
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		slog.Info("listing API listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("listing API stopped unexpectedly", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("aggregator stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Warn("config file not found, using built-in defaults", "path", path)
		return config.Initialize(context.Background(), "")
	}
	return config.Initialize(context.Background(), path)
}

func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	password := ""
	if cfg.Password != "" {
		password = os.Getenv(cfg.Password)
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: password,
		DB:       cfg.DB,
	})
}
