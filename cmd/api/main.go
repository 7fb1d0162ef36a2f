package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/jeovahfialho/lntools/internal/api"
	"github.com/jeovahfialho/lntools/internal/config"
	"github.com/jeovahfialho/lntools/internal/ingestion"
	"github.com/jeovahfialho/lntools/internal/service"
	"github.com/jeovahfialho/lntools/internal/storage/cache"
	"github.com/jeovahfialho/lntools/internal/storage/postgres"
	"github.com/jeovahfialho/lntools/internal/timeutils"
	"github.com/jeovahfialho/lntools/pkg/logger"
)

// @title lntools Directory Reader API
// @version 1.0
// @description Reads date-partitioned data directories into a single table

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.LogLevel, cfg.Environment == "development"); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer logger.Close()

	opts, err := cfg.DirectoryOptions()
	if err != nil {
		logger.Fatal("invalid reader configuration", zap.Error(err))
	}

	calendar, err := businessCalendar(cfg)
	if err != nil {
		logger.Fatal("invalid business calendar", zap.Error(err))
	}

	directories := service.NewDirectoryService(cfg.DataDir, opts, logger.Named("directory")).
		WithBusinessCalendar(calendar)
	handler := api.NewHandler(directories, cfg.MaxResponseRows)

	if db := connectPostgres(cfg); db != nil {
		defer db.Close()
		directories.WithLoader(ingestion.NewBulkLoader(db.Pool(), cfg.BatchSize))
		handler.WithHealthCheck("database", db)
	}

	if redisCache := connectRedis(cfg); redisCache != nil {
		defer redisCache.Close()
		directories.WithCache(redisCache)
		handler.WithCacheInvalidator(redisCache).WithHealthCheck("redis", redisCache)
	}

	app := fiber.New(fiber.Config{
		ServerHeader:    "lntools",
		AppName:         "lntools directory reader v1.0.0",
		ReadTimeout:     cfg.APIReadTimeout,
		WriteTimeout:    cfg.APIWriteTimeout,
		IdleTimeout:     120 * time.Second,
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
		ProxyHeader:     "X-Forwarded-For",
		BodyLimit:       1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	api.SetupRoutes(app, handler, api.RouteConfig{
		RateLimit:     cfg.APIRateLimit,
		AdminUser:     cfg.AdminUser,
		AdminPassword: cfg.AdminPassword,
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info("starting server",
		zap.String("addr", addr),
		zap.String("data_dir", directories.Root()))

	if err := app.Listen(addr); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// businessCalendar merges holidays from the environment and the sources file.
func businessCalendar(cfg *config.Config) (*timeutils.BusinessCalendar, error) {
	var extra []string
	if cfg.SourcesFile != "" {
		sources, err := config.LoadSources(cfg.SourcesFile)
		if err != nil {
			return nil, err
		}
		extra = sources.Holidays
	}
	return cfg.BusinessCalendar(extra...)
}

func connectPostgres(cfg *config.Config) *postgres.DB {
	db, err := postgres.NewDB(cfg)
	if err != nil {
		logger.Warn("postgres unavailable, loads disabled", zap.Error(err))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		db.Close()
		logger.Warn("postgres health check failed, loads disabled", zap.Error(err))
		return nil
	}

	logger.Info("connected to postgres")
	return db
}

func connectRedis(cfg *config.Config) *cache.RedisCache {
	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		logger.Warn("redis unavailable, continuing without cache", zap.Error(err))
		return nil
	}

	logger.Info("connected to redis")
	return redisCache
}
