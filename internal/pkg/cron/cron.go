package cron

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/service"
)

type Service struct {
	quotaService    *service.QuotaService
	referralService *service.ReferralService
	audioService    *service.AudioService
	rewardInterval  time.Duration
	stopChan        chan struct{}
	stopOnce        sync.Once
}

func NewService(
	quotaService *service.QuotaService,
	referralService *service.ReferralService,
	audioService *service.AudioService,
	cfg *config.Config,
) *Service {
	interval := time.Hour
	if cfg != nil && cfg.Referral.ProcessIntervalMinutes > 0 {
		interval = time.Duration(cfg.Referral.ProcessIntervalMinutes) * time.Minute
	}
	return &Service{
		quotaService:    quotaService,
		referralService: referralService,
		audioService:    audioService,
		rewardInterval:  interval,
		stopChan:        make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runDailyQuotaReset()
	go s.runRewardProcessing()
	go s.runCleanup()
	log.Info().Dur("reward_interval", s.rewardInterval).Msg("cron service started")
}

// Stop 停止定时任务，可重复调用
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		log.Info().Msg("cron service stopped")
	})
}

// runDailyQuotaReset 每天 UTC 零点批量重置过期配额。
// 扣减本身也会按日期重置，这里只是让长期不活跃的用户数据保持整洁。
func (s *Service) runDailyQuotaReset() {
	now := time.Now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	timer := time.NewTimer(nextMidnight.Sub(now))

	for {
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.resetDailyQuotas()
			timer.Reset(24 * time.Hour)
		}
	}
}

func (s *Service) resetDailyQuotas() {
	if s.quotaService == nil {
		return
	}
	rows, err := s.quotaService.ResetStaleQuotas()
	if err != nil {
		log.Error().Err(err).Msg("daily quota reset failed")
		return
	}
	log.Info().Int64("users", rows).Msg("daily quota reset completed")
}

// runRewardProcessing 按间隔发放邀请奖励，队列消费者之外的兜底
func (s *Service) runRewardProcessing() {
	ticker := time.NewTicker(s.rewardInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.processRewards()
		}
	}
}

func (s *Service) processRewards() {
	if s.referralService == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.rewardInterval)
	defer cancel()

	result, err := s.referralService.ProcessRewards(ctx)
	if err != nil {
		log.Error().Err(err).Msg("referral reward run failed")
		return
	}
	if result.Processed > 0 || len(result.Errors) > 0 {
		log.Info().Int("processed", result.Processed).Strs("errors", result.Errors).Msg("referral reward run completed")
	}
}

// runCleanup 每小时清理一次没有消息引用的语音文件
func (s *Service) runCleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanupAudio()
		}
	}
}

func (s *Service) cleanupAudio() {
	if s.audioService == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := s.audioService.CleanupOrphans(ctx, false)
	if err != nil {
		log.Error().Err(err).Msg("orphan audio cleanup failed")
		return
	}
	if len(report.Removed) > 0 {
		log.Info().Int("scanned", report.Scanned).Int("removed", len(report.Removed)).Msg("orphan audio cleanup completed")
	}
}

// RunNow 立即执行一轮配额重置和奖励发放（用于测试或手动触发）
func (s *Service) RunNow(ctx context.Context) error {
	log.Info().Msg("manual cron run triggered")
	if s.quotaService != nil {
		if _, err := s.quotaService.ResetStaleQuotas(); err != nil {
			return err
		}
	}
	if s.referralService != nil {
		if _, err := s.referralService.ProcessRewards(ctx); err != nil {
			return err
		}
	}
	return nil
}
