package main

import (
	"context"
	"log"
	"time"

	"hijrachat/internal/api"
	"hijrachat/internal/auth"
	"hijrachat/internal/config"
	"hijrachat/internal/logger"
	"hijrachat/internal/redis"
	"hijrachat/internal/service/ai"
	"hijrachat/internal/service/assistant"
	"hijrachat/internal/storage"
	"hijrachat/internal/supabase"
	"hijrachat/internal/web"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLog := logger.New(cfg.BasicConfig.Mode)
	defer appLog.Sync()
	lg := appLog.Logger

	var rdb *redis.Client
	if cfg.RateLimitEnabled() {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			lg.Fatal("create redis client", zap.Error(err))
		}
		defer rdb.Close()
	}

	var (
		store    assistant.Store
		identity auth.Identity
	)
	switch cfg.BasicConfig.StoreDriver {
	case config.DriverSupabase:
		client, err := supabase.New(cfg.Supabase)
		if err != nil {
			lg.Fatal("create supabase client", zap.Error(err))
		}
		store, identity = client, client
	default:
		db, err := storage.Open(cfg.BasicConfig.StoreDriver, cfg.Database.DSN)
		if err != nil {
			lg.Fatal("open database", zap.Error(err))
		}
		defer db.Close()
		if err := storage.Migrate(db, cfg.BasicConfig.StoreDriver); err != nil {
			lg.Fatal("migrate database", zap.Error(err))
		}
		sqlStore := storage.NewSQLStore(db)
		if len(cfg.Database.SeedActiveEmails) > 0 {
			missing, err := sqlStore.ActivateSubscriptions(context.Background(), cfg.Database.SeedActiveEmails)
			if err != nil {
				lg.Fatal("seed subscriptions", zap.Error(err))
			}
			if len(missing) > 0 {
				lg.Warn("no account for seeded subscriptions", zap.Strings("emails", missing))
			}
		}
		store = sqlStore
		identity = auth.NewService(db, rdb, time.Duration(cfg.BasicConfig.TokenTTLHours)*time.Hour)
	}
	lg.Info("store ready", zap.String("driver", cfg.BasicConfig.StoreDriver))

	generator, err := ai.NewGenerator(context.Background(), cfg.Provider)
	if err != nil {
		lg.Fatal("create generator", zap.Error(err))
	}
	lg.Info("generator ready",
		zap.String("provider", cfg.Provider.Name),
		zap.String("model", cfg.Provider.Model))

	var limiter api.Limiter
	if rdb != nil {
		limiter = redis.NewRateLimiter(rdb, map[string]int{
			redis.ScopeChat: cfg.RateLimit.ChatPerMinute,
			redis.ScopeAuth: cfg.RateLimit.AuthPerMinute,
		}, time.Minute)
	}

	static, err := web.FS(cfg.BasicConfig.StaticDir)
	if err != nil {
		lg.Fatal("load static files", zap.Error(err))
	}

	assistantService := assistant.NewService(store, identity, generator, appLog)
	handlers := api.NewHandler(assistantService, identity, limiter, static, appLog)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), cors.Default())
	handlers.RegisterRoutes(router)

	addr := ":" + cfg.BasicConfig.Port
	lg.Info("server listening", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		lg.Fatal("server stopped", zap.Error(err))
	}
}
