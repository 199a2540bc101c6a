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

	"github.com/weiawesome/autoschool-chat/internal/cache"
	"github.com/weiawesome/autoschool-chat/internal/config"
	"github.com/weiawesome/autoschool-chat/internal/directory"
	"github.com/weiawesome/autoschool-chat/internal/domain"
	chatgrpc "github.com/weiawesome/autoschool-chat/internal/grpc"
	"github.com/weiawesome/autoschool-chat/internal/handler"
	"github.com/weiawesome/autoschool-chat/internal/hub"
	"github.com/weiawesome/autoschool-chat/internal/kafka"
	"github.com/weiawesome/autoschool-chat/internal/repository"
	"github.com/weiawesome/autoschool-chat/internal/router"
	"github.com/weiawesome/autoschool-chat/internal/service"
	"github.com/weiawesome/autoschool-chat/pkg/database"
	"github.com/weiawesome/autoschool-chat/pkg/jwt"
	pkglog "github.com/weiawesome/autoschool-chat/pkg/log"
	"github.com/weiawesome/autoschool-chat/pkg/middleware"
	"github.com/weiawesome/autoschool-chat/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "chat-service",
	})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chat service")

	// Initialize database
	db, err := database.New(cfg.Database.ToDatabaseConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, &domain.MessageModel{}, &domain.UserModel{}, &domain.AssignmentModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	repo := repository.NewGormMessageRepository(db, cfg.Store.OpTimeout)
	dir := directory.NewGormDirectory(db)

	// Initialize conversation cache (optional)
	var convCache cache.ConversationCache
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisConversationCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to connect to redis, conversation cache disabled")
		} else {
			convCache = redisCache
			defer redisCache.Close()
			logger.Info().Str("address", cfg.Redis.Address).Dur("ttl", cfg.Cache.TTL).Msg("conversation cache enabled")
		}
	}

	// Initialize Kafka producer (optional)
	var events kafka.EventProducer = kafka.NoopProducer{}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize kafka producer")
		}
		events = producer
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
	}
	defer events.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Hub
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run(ctx)

	// Initialize cross-instance relay (optional)
	var relay *router.Relay
	if cfg.Relay.Enabled {
		ps, err := pubsub.NewPubSub(cfg.PubSubConfig())
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.Relay.Driver).Msg("failed to initialize relay")
		}
		relay = router.NewRelay(ps, wsHub, cfg.Relay.InstanceID)
		if err := relay.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start relay")
		}
		defer relay.Close()
	}
	roomRouter := router.New(wsHub, relay)

	// Initialize services
	tracker := service.NewStatusTracker(repo, cfg.Status.AllowRegression)
	conversations := service.NewConversationService(repo, dir, dir, convCache, cfg.Cache.TTL)
	messaging := service.NewMessagingService(repo, tracker, conversations, dir, roomRouter, events)

	// Initialize auth
	tokens, err := jwt.NewManager(cfg.Auth.Secret, cfg.Auth.Issuer, 0, cfg.Auth.Leeway)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize token validator")
	}
	auth := middleware.NewAuthMiddleware(tokens, handler.TokenIdentity)

	// Start gRPC health server
	var grpcServer *chatgrpc.Server
	if cfg.GRPC.Enabled {
		grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		grpcServer, err = chatgrpc.StartGRPCServer(grpcAddr, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start grpc server")
		}
	}

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(pkglog.GinMiddleware(logger))

	handler.NewHTTPHandler(messaging, conversations).RegisterRoutes(engine, auth)
	handler.NewWSHandler(wsHub, messaging, tokens, cfg.WebSocket, cfg.Auth).RegisterRoutes(engine)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     engine,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("address", server.Addr).Msg("chat service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat service")

	if grpcServer != nil {
		grpcServer.SetServing(false)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Close live sockets.
	cancel()

	if grpcServer != nil {
		grpcServer.Shutdown()
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info().Msg("chat service stopped")
}
