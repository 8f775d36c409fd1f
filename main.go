package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"wiki-battle-system/handlers"
	"wiki-battle-system/middleware"
	"wiki-battle-system/models"
	"wiki-battle-system/services"
	"wiki-battle-system/utils"
	"wiki-battle-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// Not fatal when missing: containers inject env directly.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	logger.Info("starting battle & matchmaking engine")

	app := fiber.New(fiber.Config{})

	// Only Gateway requests allowed, no exceptions.
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-User-ID, X-Service-Token",
		AllowCredentials: true,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&models.UserRating{},
		&models.QueueEntry{},
		&models.BattleMatch{},
		&models.Lobby{},
		&models.LobbyParticipant{},
	); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	// Queue search index: Redis when configured, in-process otherwise.
	var queueIndex services.QueueIndex
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisDB := 0
		if v := os.Getenv("REDIS_DB"); v != "" {
			redisDB, _ = strconv.Atoi(v)
		}
		redisIndex, err := services.NewRedisQueueIndex(redisAddr, os.Getenv("REDIS_PASSWORD"), redisDB)
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redisIndex.Close()
		queueIndex = redisIndex
		logger.Info("queue index backed by Redis", zap.String("addr", redisAddr))
	} else {
		queueIndex = services.NewMemoryQueueIndex()
		logger.Info("queue index in memory (REDIS_ADDR not set)")
	}

	ratingService := services.NewRatingService(db, logger)
	bot := services.NewBotOpponent(services.NewHTTPLinkGraph(), nil, logger)
	battleService := services.NewBattleService(db, ratingService, bot, logger)
	queueService := services.NewQueueService(db, queueIndex, battleService, nil, logger)
	lobbyService := services.NewLobbyService(db, battleService, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stats/achievement updater is an external collaborator: we only emit
	// completed-match events to it.
	if statsWorker, err := workers.NewStatsNotifyWorker(db, logger); err != nil {
		logger.Warn("stats notification disabled", zap.Error(err))
	} else {
		statsWorker.Start(ctx)
	}

	if err := utils.InitR2(); err != nil {
		logger.Warn("replay archival disabled", zap.Error(err))
	} else {
		workers.NewReplayArchiveWorker(db, logger).Start(ctx)
	}

	reaper, err := services.StartReaper(db, queueIndex, logger)
	if err != nil {
		logger.Fatal("failed to start reaper", zap.Error(err))
	}
	defer func() { _ = reaper.Shutdown() }()

	handlers.SetupQueueRoutes(app, queueService)
	handlers.SetupBattleRoutes(app, battleService, ratingService)
	handlers.SetupLobbyRoutes(app, lobbyService)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	go func() {
		if err := app.Listen(port); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()

	logger.Info("server running", zap.String("port", port))

	<-ctx.Done()
	logger.Info("shutting down server")
	if err := app.Shutdown(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
}
