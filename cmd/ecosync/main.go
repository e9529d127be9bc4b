package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/learnloop/ecosync/internal/config"
	"github.com/learnloop/ecosync/internal/modules"
	"github.com/learnloop/ecosync/internal/orchestrator"
	redisevents "github.com/learnloop/ecosync/pkg/adapters/events/redis"
	"github.com/learnloop/ecosync/pkg/adapters/llm"
	"github.com/learnloop/ecosync/pkg/adapters/metrics/prometheus"
	redisstorage "github.com/learnloop/ecosync/pkg/adapters/storage/redis"
	"github.com/learnloop/ecosync/pkg/api/http"
	"github.com/learnloop/ecosync/pkg/api/websocket"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting ecosync orchestrator",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	store := redisstorage.NewStore(redisClient, cfg.Redis.SummaryTTL, logger)

	eventBus := redisevents.NewStreamsBus(
		redisClient,
		"ecosync-consumers",
		fmt.Sprintf("ecosync-%d", os.Getpid()),
		logger,
	)

	llmClient, err := llm.NewClient(&llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to create LLM client", zap.Error(err))
	}

	metricsCollector := prometheus.NewCollector()

	graph := orchestrator.NewDependencyGraph(store)
	if err := graph.LoadFromStore(ctx); err != nil {
		logger.Fatal("failed to load dependency graph", zap.Error(err))
	}
	for _, edge := range orchestrator.DefaultEdges() {
		if _, err := graph.AddEdge(ctx, edge); err != nil {
			logger.Fatal("failed to register default edge", zap.Error(err))
		}
	}

	registry := modules.DefaultRegistry(llmClient, modules.GeneratorConfig{
		Model:       cfg.LLM.DefaultModel,
		Temperature: cfg.LLM.DefaultTemperature,
		MaxTokens:   cfg.LLM.DefaultMaxTokens,
	}, logger)

	planner := orchestrator.NewPlanner(graph, orchestrator.DefaultTriggerTable(), cfg.Engine.MaxGraphDepth)
	engine := orchestrator.NewEngine(
		graph,
		registry,
		metricsCollector,
		eventBus,
		logger,
		cfg.Engine.WorkerLimit,
		cfg.Timeouts.ModuleTimeout,
	)
	synchronizer := orchestrator.NewSynchronizer(store, logger, cfg.Sync.MaxConflictRetries)
	analyzer := orchestrator.NewAnalyzer(orchestrator.FeedbackThresholds{
		HighLatency:    cfg.Feedback.HighLatency,
		MinSuccessRate: cfg.Feedback.MinSuccessRate,
		SlowModule:     cfg.Feedback.SlowModule,
	})
	decisionLog := orchestrator.NewDecisionLog(store, eventBus, logger)

	manager := orchestrator.NewManager(
		planner,
		engine,
		synchronizer,
		analyzer,
		decisionLog,
		store,
		eventBus,
		metricsCollector,
		logger,
		cfg.Timeouts.RunTimeout,
	)

	httpServer := http.NewServer(&http.Config{
		Port:      cfg.HTTPPort,
		Manager:   manager,
		States:    store,
		Decisions: decisionLog,
		Logger:    logger,
	})

	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	logger.Info("ecosync orchestrator started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("worker_limit", cfg.Engine.WorkerLimit))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("manager shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("Redis close error", zap.Error(err))
	}

	logger.Info("ecosync orchestrator shut down complete")
}

// initLogger initializes the logger based on log level.
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
