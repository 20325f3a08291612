package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/api"
	"github.com/qs3c/guitar_dice_server/internal/api/handler"
	"github.com/qs3c/guitar_dice_server/internal/database"
	"github.com/qs3c/guitar_dice_server/internal/pkg/cron"
	"github.com/qs3c/guitar_dice_server/internal/pkg/email"
	"github.com/qs3c/guitar_dice_server/internal/pkg/logger"
	"github.com/qs3c/guitar_dice_server/internal/pkg/oauth"
	"github.com/qs3c/guitar_dice_server/internal/pkg/oss"
	"github.com/qs3c/guitar_dice_server/internal/pkg/pubsub"
	"github.com/qs3c/guitar_dice_server/internal/pkg/queue"
	"github.com/qs3c/guitar_dice_server/internal/pkg/ratelimit"
	"github.com/qs3c/guitar_dice_server/internal/pkg/storage"
	"github.com/qs3c/guitar_dice_server/internal/pkg/ws"
	"github.com/qs3c/guitar_dice_server/internal/repository"
	"github.com/qs3c/guitar_dice_server/internal/service"
)

// Redis 订阅断开后的重连间隔
const subscribeRetryDelay = 2 * time.Second

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.New(cfg.Server.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化数据库
	db, err := database.NewDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect database")
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("Database connected")

	// 初始化 Redis（可选，未配置时单机运行）
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = database.NewRedis(&cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")
	}

	// 初始化 OSS（可选）
	var mirror service.AudioMirror
	if cfg.OSS.Enabled() {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to init OSS client, audio stays local")
		} else {
			mirror = ossClient
			log.Info().Msg("OSS client initialized")
		}
	}

	fileStore, err := storage.NewFileStore(cfg.Upload.AudioDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init audio storage")
	}

	// WebSocket Hub 与广播
	wsHub := ws.NewHub()
	var broadcaster service.Broadcaster = service.NewHubBroadcaster(wsHub)
	var rewardQueue service.RewardQueue
	var stateStore *oauth.StateStore
	if rdb != nil {
		broadcaster = service.NewPubSubBroadcaster(pubsub.NewPublisher(rdb))
		rewardQueue = queue.NewQueue(rdb, cfg.Queue.RewardQueue)
		stateStore = oauth.NewStateStore(rdb)

		subscriber := pubsub.NewSubscriber(rdb)
		go subscriber.Run(ctx, service.RelayToHub(wsHub), subscribeRetryDelay)
	}

	// 限流
	connLimiter := newLimiter(ctx, cfg, rdb, "ws-conn", cfg.RateLimit.Connection)
	eventLimiter := newLimiter(ctx, cfg, rdb, "ws-event", cfg.RateLimit.ChatEvent)
	apiLimiter := newLimiter(ctx, cfg, rdb, "api", cfg.RateLimit.API)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	chatRepo := repository.NewChatRepository(db)

	// 初始化 Service
	mailer := email.NewService(&cfg.Email)
	quotaService := service.NewQuotaService(userRepo, cfg)
	referralService := service.NewReferralService(referralRepo, userRepo, rewardQueue, mailer, cfg)
	authService := service.NewAuthService(userRepo, referralService, mailer, cfg)
	userService := service.NewUserService(userRepo, quotaService)
	audioService := service.NewAudioService(fileStore, mirror, chatRepo, &cfg.Upload)
	chatService := service.NewChatService(chatRepo, broadcaster, audioService, &cfg.Chat)
	resolver := service.NewSessionResolver(userRepo, &cfg.Session)

	// 定时任务
	cronService := cron.NewService(quotaService, referralService, audioService, cfg)
	cronService.Start()
	defer cronService.Stop()

	// 初始化 Handler
	router := api.NewRouter(
		handler.NewAuthHandler(authService, stateStore, cfg),
		handler.NewUserHandler(userService),
		handler.NewUsageHandler(quotaService, &cfg.Quota),
		handler.NewReferralHandler(referralService),
		handler.NewChatHandler(chatService, audioService),
		handler.NewWebSocketHandler(wsHub, resolver, chatService, connLimiter, eventLimiter, cfg.CORS.AllowedOrigins),
		resolver,
		quotaService,
		apiLimiter,
		cfg,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

// newLimiter redis 后端需要 Redis 可用，否则退回进程内计数
func newLimiter(ctx context.Context, cfg *config.Config, rdb *redis.Client, prefix string, limit config.LimitConfig) ratelimit.Limiter {
	if cfg.RateLimit.Backend == "redis" && rdb != nil {
		return ratelimit.NewRedisLimiter(rdb, prefix, limit.Max, limit.Window())
	}
	limiter := ratelimit.NewMemoryLimiter(limit.Max, limit.Window())
	limiter.StartSweeper(ctx, time.Minute)
	return limiter
}
