package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/sitetour/backend/internal/api/handlers"
	"github.com/sitetour/backend/internal/ingestion"
	"github.com/sitetour/backend/internal/locks"
	"github.com/sitetour/backend/internal/metrics"
	"github.com/sitetour/backend/internal/middleware/ratelimit"
	"github.com/sitetour/backend/internal/middleware/security"
	"github.com/sitetour/backend/internal/middleware/validation"
	"github.com/sitetour/backend/internal/storage/sqlite"
	"github.com/sitetour/backend/internal/uploader"
	"github.com/sitetour/backend/pkg/config"
	appLogger "github.com/sitetour/backend/pkg/logger"
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

	appLogger.Info("Starting tour ingestion API server")

	if err := os.MkdirAll(cfg.Scratch.Root, 0o755); err != nil {
		appLogger.Fatal("Failed to create scratch root", zap.Error(err))
	}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var lockMgr locks.Manager
	if cfg.Redis.Enabled {
		redisLocks, err := locks.NewRedisManager(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.LockTTL)*time.Second,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Redis lock manager", zap.Error(err))
		}
		defer redisLocks.Close()
		lockMgr = redisLocks
	} else {
		lockMgr = locks.NewLocalManager()
	}

	syncer := uploader.New(uploader.Config{
		Host:        cfg.Storage.Host,
		Account:     cfg.Storage.Account,
		SubUser:     cfg.Storage.SubUser,
		Roles:       cfg.Storage.Roles,
		KeyID:       cfg.Storage.KeyID,
		RootFolder:  cfg.Storage.RootFolder,
		Timeout:     time.Duration(cfg.Storage.TimeoutSec) * time.Second,
		MaxAttempts: cfg.Storage.MaxAttempts,
	})

	pipeline := ingestion.NewPipeline(sqliteClient, syncer, lockMgr, cfg.Scratch.Root)

	metrics.Init()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(validation.Middleware(validation.Config{
		MaxUploadSize: cfg.Server.BodyLimit,
		Logger:        appLogger.Log,
	}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.Log})
	app.Use(limiter.Middleware())

	surveyHandler := handlers.NewSurveyHandler(pipeline, sqliteClient, cfg.Scratch.Root)
	siteHandler := handlers.NewSiteHandler(sqliteClient, syncer, cfg.Scratch.Root)
	nodeHandler := handlers.NewNodeHandler(sqliteClient)

	api := app.Group("/api/v1")

	api.Post("/sites", siteHandler.CreateSite)
	api.Get("/sites/:siteID", siteHandler.GetSite)
	api.Post("/sites/:siteID/surveys", surveyHandler.UploadSurvey)
	api.Post("/sites/:siteID/minimap", siteHandler.UploadMinimapImage)
	api.Patch("/sites/:siteID/floors/:floor", siteHandler.UpdateFloorDetails)
	api.Get("/sites/:siteID/floors/empty", siteHandler.GetEmptyFloors)

	api.Patch("/nodes/:nodeID/coordinates", nodeHandler.UpdateCoordinates)
	api.Patch("/nodes/:nodeID/rotation", nodeHandler.UpdateRotation)
	api.Patch("/nodes/:nodeID/title", nodeHandler.UpdateTitle)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

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
