package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/model"
	"github.com/qs3c/guitar_dice_server/internal/model/dto"
	"github.com/qs3c/guitar_dice_server/internal/pkg/email"
	"github.com/qs3c/guitar_dice_server/internal/pkg/queue"
	"github.com/qs3c/guitar_dice_server/internal/repository"
)

var (
	ErrReferralCodeInvalid = errors.New("邀请码无效")
	ErrSelfReferral        = errors.New("不能使用自己的邀请码")
	ErrAlreadyReferred     = errors.New("已经使用过邀请码")
)

// RewardQueue 奖励任务队列
type RewardQueue interface {
	Push(ctx context.Context, job *queue.RewardJob) error
}

type ReferralService struct {
	referralRepo *repository.ReferralRepository
	userRepo     *repository.UserRepository
	queue        RewardQueue
	mailer       *email.Service
	cfg          *config.Config
	now          func() time.Time
}

func NewReferralService(
	referralRepo *repository.ReferralRepository,
	userRepo *repository.UserRepository,
	rewardQueue RewardQueue,
	mailer *email.Service,
	cfg *config.Config,
) *ReferralService {
	return &ReferralService{
		referralRepo: referralRepo,
		userRepo:     userRepo,
		queue:        rewardQueue,
		mailer:       mailer,
		cfg:          cfg,
		now:          time.Now,
	}
}

// WithClock 替换时钟（测试用）
func (s *ReferralService) WithClock(now func() time.Time) *ReferralService {
	s.now = now
	return s
}

func (s *ReferralService) rewardMonths() int {
	if s.cfg.Referral.RewardMonths > 0 {
		return s.cfg.Referral.RewardMonths
	}
	return 1
}

// ProcessRewards 为被邀请人已订阅的邀请发放奖励。
// 每条邀请单独一个事务：先抢占 reward_granted，抢占成功才延长邀请人订阅，
// 多个进程同时执行时每条邀请只会发放一次。单条失败记录后继续处理其余邀请。
func (s *ReferralService) ProcessRewards(ctx context.Context) (*dto.ProcessRewardsResult, error) {
	now := s.now().UTC()

	pending, err := s.referralRepo.ListPendingWithActiveReferee(now)
	if err != nil {
		return nil, fmt.Errorf("list pending referrals: %w", err)
	}

	result := &dto.ProcessRewardsResult{Errors: []string{}}
	for _, referral := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		granted, err := s.grantReward(referral, now)
		if err != nil {
			log.Error().Err(err).
				Int64("referral_id", referral.ID).
				Int64("referrer_id", referral.ReferrerUserID).
				Msg("referral reward failed")
			result.Errors = append(result.Errors, fmt.Sprintf("referral %d: %v", referral.ID, err))
			continue
		}
		if !granted {
			continue
		}

		result.Processed++
		log.Info().
			Int64("referral_id", referral.ID).
			Int64("referrer_id", referral.ReferrerUserID).
			Msg("referral reward granted")
		s.notifyReferrer(referral.ReferrerUserID)
	}

	return result, nil
}

// grantReward 返回 false 表示已被其他进程领取
func (s *ReferralService) grantReward(referral *model.Referral, now time.Time) (bool, error) {
	granted := false
	err := s.referralRepo.Transaction(func(tx *gorm.DB) error {
		rows, err := s.referralRepo.WithTx(tx).ClaimReward(referral.ID, now)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		if rows == 0 {
			return nil
		}

		rows, err = s.userRepo.WithTx(tx).ExtendSubscription(referral.ReferrerUserID, now, s.rewardMonths())
		if err != nil {
			return fmt.Errorf("extend subscription: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("referrer %d not found", referral.ReferrerUserID)
		}

		granted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}

func (s *ReferralService) notifyReferrer(referrerID int64) {
	if !s.mailer.Enabled() {
		return
	}

	referrer, err := s.userRepo.GetByID(referrerID)
	if err != nil || referrer.Email == nil {
		return
	}
	if err := s.mailer.SendReferralReward(*referrer.Email, referrer.Name(), s.rewardMonths()); err != nil {
		log.Warn().Err(err).Int64("user_id", referrerID).Msg("send referral reward email failed")
	}
}

// Redeem 当前用户填写邀请码，每个用户只能被邀请一次
func (s *ReferralService) Redeem(ctx context.Context, userID int64, code string) (*model.Referral, error) {
	code = NormalizeReferralCode(code)
	if code == "" {
		return nil, ErrReferralCodeInvalid
	}

	referrer, err := s.userRepo.GetByReferralCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralCodeInvalid
		}
		return nil, err
	}
	if referrer.ID == userID {
		return nil, ErrSelfReferral
	}

	if _, err := s.referralRepo.GetByReferee(userID); err == nil {
		return nil, ErrAlreadyReferred
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	referral := &model.Referral{
		ReferrerUserID: referrer.ID,
		RefereeUserID:  userID,
		ReferralCode:   code,
		SignupDate:     s.now().UTC(),
	}
	if err := s.referralRepo.Create(referral); err != nil {
		// 并发填写时由唯一索引兜底
		if _, getErr := s.referralRepo.GetByReferee(userID); getErr == nil {
			return nil, ErrAlreadyReferred
		}
		return nil, err
	}

	s.enqueue(ctx, &queue.RewardJob{
		ReferralID:    referral.ID,
		RefereeUserID: userID,
		Reason:        queue.ReasonRedeemed,
	})

	return referral, nil
}

// EnqueueProcessing 订阅状态变化后请求 worker 处理奖励
func (s *ReferralService) EnqueueProcessing(ctx context.Context, refereeUserID int64, reason string) {
	s.enqueue(ctx, &queue.RewardJob{RefereeUserID: refereeUserID, Reason: reason})
}

func (s *ReferralService) enqueue(ctx context.Context, job *queue.RewardJob) {
	if s.queue == nil {
		return
	}
	// 入队失败不影响主流程，定时任务会兜底
	if err := s.queue.Push(ctx, job); err != nil {
		log.Warn().Err(err).
			Int64("referral_id", job.ReferralID).
			Str("reason", job.Reason).
			Msg("enqueue reward job failed")
	}
}

// GetStats 我的邀请码与邀请统计
func (s *ReferralService) GetStats(userID int64) (*dto.ReferralStats, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	invited, err := s.referralRepo.CountByReferrer(userID)
	if err != nil {
		return nil, err
	}
	granted, err := s.referralRepo.CountGrantedByReferrer(userID)
	if err != nil {
		return nil, err
	}

	stats := &dto.ReferralStats{
		InvitedCount:   invited,
		RewardsGranted: granted,
		RewardsEarned:  user.ReferralRewardsEarned,
	}
	if user.ReferralCode != nil {
		stats.ReferralCode = *user.ReferralCode
	}
	return stats, nil
}

// NormalizeReferralCode 邀请码不区分大小写
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
