package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/aven-agent/backend/internal/api/handlers"
	"github.com/aven-agent/backend/internal/cache/redis"
	"github.com/aven-agent/backend/internal/calendar"
	"github.com/aven-agent/backend/internal/classifier"
	"github.com/aven-agent/backend/internal/guardrails"
	"github.com/aven-agent/backend/internal/ingestion"
	"github.com/aven-agent/backend/internal/llm"
	"github.com/aven-agent/backend/internal/metrics"
	"github.com/aven-agent/backend/internal/middleware/ratelimit"
	"github.com/aven-agent/backend/internal/middleware/security"
	"github.com/aven-agent/backend/internal/middleware/validation"
	"github.com/aven-agent/backend/internal/orchestrator"
	"github.com/aven-agent/backend/internal/retrieval"
	"github.com/aven-agent/backend/internal/search/web"
	"github.com/aven-agent/backend/internal/storage/sqlite"
	"github.com/aven-agent/backend/internal/vector/zilliz"
	"github.com/aven-agent/backend/pkg/config"
	appLogger "github.com/aven-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Aven Support Agent API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	zillizClient, err := zilliz.NewClient(
		cfg.Zilliz.Endpoint,
		cfg.Zilliz.APIKey,
		cfg.Zilliz.CollectionName,
		cfg.Zilliz.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Zilliz client", zap.Error(err))
	}
	defer zillizClient.Close()

	err = zillizClient.EnsureCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	var cacheClient *redis.Client
	cacheClient, err = redis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		time.Duration(cfg.Redis.TTLSeconds)*time.Second,
	)
	if err != nil {
		appLogger.Warn("Redis unavailable, response caching disabled", zap.Error(err))
		cacheClient = nil
	} else {
		defer cacheClient.Close()
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	var moderator guardrails.Moderator
	if cfg.LLM.Moderation {
		moderator = llmClient
	}

	engine := guardrails.NewEngine(guardrails.Config{
		MaxInputLength:    cfg.Guardrails.MaxInputLength,
		MaxResponseLength: cfg.Guardrails.MaxResponseLength,
		KeywordThreshold:  cfg.Guardrails.KeywordThreshold,
		RequestsPerMinute: cfg.Guardrails.RequestsPerMinute,
		RequestsPerHour:   cfg.Guardrails.RequestsPerHour,
		RequestsPerDay:    cfg.Guardrails.RequestsPerDay,
		BurstWindow:       time.Duration(cfg.Guardrails.BurstWindowMinutes) * time.Minute,
		BurstThreshold:    cfg.Guardrails.BurstThreshold,
		AuditLogSize:      1000,
	}, moderator)

	var embeddingCache retrieval.EmbeddingCache
	if cacheClient != nil {
		embeddingCache = cacheClient
	}
	retriever := retrieval.NewRetriever(llmClient, zillizClient, embeddingCache)
	calendarService := calendar.NewService()
	processor := ingestion.NewProcessor(sqliteClient, zillizClient, llmClient)

	var webSearcher orchestrator.WebSearcher
	if cfg.Search.Enabled {
		webSearcher = web.NewClient(
			cfg.Search.SerpAPIKey,
			llmClient,
			cfg.Search.MaxResults,
			time.Duration(cfg.Search.TimeoutSec)*time.Second,
		)
	}

	deps := orchestrator.Deps{
		Analyzer:    classifier.NewAnalyzer(),
		Guard:       engine,
		Retriever:   retriever,
		Generator:   llmClient,
		Scheduler:   calendarService,
		WebSearcher: webSearcher,
		Recorder:    sqliteClient,
		Sessions: orchestrator.NewSessionStore(
			cfg.Session.MaxTurns,
			time.Duration(cfg.Session.IdleTTLMinutes)*time.Minute,
		),
	}
	if cacheClient != nil {
		deps.Cache = cacheClient
	}
	orch := orchestrator.New(deps)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(fiberrecover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 120,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	// The transport cap stays above the guardrails input limit so the
	// engine's over-length WARNING band is reachable.
	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	chatHandler := handlers.NewChatHandler(orch, sqliteClient)
	safetyHandler := handlers.NewSafetyHandler(engine)
	knowledgeHandler := handlers.NewKnowledgeHandler(processor, cacheClient, sqliteClient)
	calendarHandler := handlers.NewCalendarHandler(calendarService)
	wsHandler := handlers.NewWebSocketHandler(orch)

	api := app.Group("/api/v1")

	api.Post("/chat", chatHandler.HandleChat)
	api.Get("/sessions/:id", chatHandler.GetSessionHistory)
	api.Delete("/sessions/:id", chatHandler.ClearSession)
	api.Post("/feedback", chatHandler.SubmitFeedback)

	api.Post("/safety/check", safetyHandler.CheckMessage)
	api.Get("/safety/stats", safetyHandler.GetStats)
	api.Get("/safety/export", safetyHandler.ExportLog)
	api.Post("/safety/block", safetyHandler.BlockUser)
	api.Post("/safety/unblock", safetyHandler.UnblockUser)

	api.Post("/knowledge", knowledgeHandler.IngestDocument)
	api.Get("/knowledge/:id", knowledgeHandler.GetDocument)
	api.Delete("/cache", knowledgeHandler.InvalidateCache)

	api.Get("/meetings", calendarHandler.ListMeetings)
	api.Delete("/meetings/:id", calendarHandler.CancelMeeting)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/health/detailed", func(c *fiber.Ctx) error {
		checks := fiber.Map{
			"sqlite": "ok",
			"zilliz": "ok",
		}
		if cacheClient != nil {
			if err := cacheClient.Ping(c.Context()); err != nil {
				checks["redis"] = "unavailable"
			} else {
				checks["redis"] = "ok"
			}
		} else {
			checks["redis"] = "disabled"
		}
		return c.JSON(fiber.Map{
			"status": "healthy",
			"checks": checks,
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
