package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ymliu/convo/internal/auth"
	"github.com/ymliu/convo/internal/cache"
	"github.com/ymliu/convo/internal/config"
	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/internal/handler"
	"github.com/ymliu/convo/internal/hub"
	"github.com/ymliu/convo/internal/middleware"
	"github.com/ymliu/convo/internal/repository"
	"github.com/ymliu/convo/internal/service"
	"github.com/ymliu/convo/internal/session"
	"github.com/ymliu/convo/internal/token"
	"github.com/ymliu/convo/pkg/database"
	"github.com/ymliu/convo/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()

	if cfg.JWT.Secret == "" {
		l.Fatal().Msg("SECRET_KEY is not set")
	}

	// Database
	db, err := database.New(&cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db,
		&domain.UserModel{}, &domain.RoomModel{}, &domain.MessageModel{},
	); err != nil {
		l.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Redis history cache
	historyCache, err := cache.NewRedisHistoryCache(cfg.Redis, cfg.History.CachePrefix)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer historyCache.Close()

	// Repositories
	userRepo := repository.NewGormUserRepository(db)
	roomRepo := repository.NewGormRoomRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)

	// Identity gate and services
	tokens := token.NewManager(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	gate := auth.NewGate(tokens, userRepo)
	userSvc := service.NewUserService(userRepo, tokens)
	roomSvc := service.NewRoomService(roomRepo)
	historySvc := service.NewHistoryService(messageRepo, historyCache, cfg.History.CacheTTL)

	// Live core
	registry := hub.NewRegistry()
	broadcaster := hub.NewBroadcaster(registry)
	sessionDeps := session.Deps{
		Gate:        gate,
		Messages:    messageRepo,
		Registry:    registry,
		Broadcaster: broadcaster,
		ReplayDepth: cfg.History.ReplayDepth,
	}

	// HTTP
	authMW := middleware.NewAuthMiddleware(gate)
	httpHandler := handler.NewHTTPHandler(userSvc, roomSvc, historySvc, authMW)
	wsHandler := handler.NewWSHandler(sessionDeps, cfg.WebSocket)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(l))

	httpHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("forced shutdown")
	}

	l.Info().Msg("stopped")
}
