package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/database"
	"github.com/qs3c/guitar_dice_server/internal/pkg/email"
	"github.com/qs3c/guitar_dice_server/internal/pkg/logger"
	"github.com/qs3c/guitar_dice_server/internal/pkg/queue"
	"github.com/qs3c/guitar_dice_server/internal/repository"
	"github.com/qs3c/guitar_dice_server/internal/service"
)

func main() {
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

	if !cfg.Redis.Enabled() {
		log.Fatal().Msg("Worker requires redis")
	}

	// 初始化数据库
	db, err := database.NewDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect database")
	}
	log.Info().Msg("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	rewardQueue := queue.NewQueue(rdb, cfg.Queue.RewardQueue)

	referralService := service.NewReferralService(
		repository.NewReferralRepository(db),
		repository.NewUserRepository(db),
		rewardQueue,
		email.NewService(&cfg.Email),
		cfg,
	)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	workers := cfg.Queue.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	log.Info().Int("max_workers", workers).Str("queue", cfg.Queue.RewardQueue).Msg("Worker started")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runWorker(ctx, workerID, rewardQueue, referralService)
		}(i)
	}

	wg.Wait()
	log.Info().Msg("Worker shutdown complete")
}

func runWorker(ctx context.Context, workerID int, rewardQueue *queue.Queue, referralService *service.ReferralService) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Int("worker", workerID).Msg("Worker shutting down")
			return
		default:
		}

		job, err := rewardQueue.Pop(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Int("worker", workerID).Msg("failed to pop reward job")
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue // 超时，继续等待
		}

		// 每个任务触发一轮完整处理，已发放的邀请会被跳过
		result, err := referralService.ProcessRewards(ctx)
		if err != nil {
			log.Error().Err(err).Int("worker", workerID).Int64("referee_user_id", job.RefereeUserID).Msg("process rewards failed")
			continue
		}
		log.Info().
			Int("worker", workerID).
			Str("reason", job.Reason).
			Int("processed", result.Processed).
			Int("errors", len(result.Errors)).
			Msg("reward job done")
	}
}
