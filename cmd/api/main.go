package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/recallhq/recall/internal/api"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/database"
	"github.com/recallhq/recall/internal/entity"
	"github.com/recallhq/recall/internal/memory"
	"github.com/recallhq/recall/internal/middleware"
	inats "github.com/recallhq/recall/internal/nats"
	"github.com/recallhq/recall/internal/provider"
	iredis "github.com/recallhq/recall/internal/redis"
	"github.com/recallhq/recall/internal/scoring"
	"github.com/recallhq/recall/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional)
	var (
		natsClient *inats.Client
		publisher  memory.ProfilePublisher
	)
	if cfg.NATS.Enabled {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = inats.NewPublisher(natsClient.JetStream())
	}

	// Model collaborators
	openAI := provider.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL,
		provider.WithEmbedModel(cfg.OpenAI.EmbedModel),
		provider.WithChatModel(cfg.OpenAI.ChatModel),
		provider.WithDimensions(cfg.OpenAI.Dimensions),
		provider.WithTimeout(cfg.OpenAI.Timeout),
	)

	extractor := entity.NewExtractor(openAI,
		entity.WithThreshold(cfg.Memory.EntityThreshold),
		entity.WithMaxEntities(cfg.Memory.EntityMax),
	)
	scorer := scoring.NewScorer()

	// Memory engine
	memCfg := memory.DefaultConfig()
	memCfg.TotalBudgetTokens = cfg.Memory.ContextWindowTokens
	memCfg.RecentWindowSize = cfg.Memory.RecentWindowSize

	recentStore := memory.NewRecentStore(redisClient, memCfg.RecentWindowSize, 24*time.Hour)
	repo := memory.NewPostgresRepository(pool)
	manager := memory.NewManager(repo, recentStore, openAI, extractor, scorer, publisher, memCfg)
	handler := memory.NewHandler(manager)

	// Profile fold consumer
	if natsClient != nil {
		consumer := memory.NewProfileConsumer(manager, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("profile consumer stopped", "error", err)
			}
		}()
	}

	rateLimiter := middleware.NewRateLimiter(redisClient, 120, 60)

	// Router
	router := api.NewRouter(pool, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RateLimiter:        rateLimiter.Middleware,
	}, api.HandlerSet{
		StoreMessage: handler.StoreMessage,
		GetContext:   handler.GetContext,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
