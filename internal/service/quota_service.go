package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/model"
	"github.com/qs3c/guitar_dice_server/internal/model/dto"
	"github.com/qs3c/guitar_dice_server/internal/repository"
)

const dayLayout = "2006-01-02"

var (
	ErrAdLimitReached = errors.New("今日广告奖励次数已用完，请明天再来")
	ErrUserNotFound   = errors.New("用户不存在")
)

// ConsumeResult 扣减结果，配额耗尽是正常业务结果而不是错误
type ConsumeResult struct {
	Denied bool
	Status *dto.DiceRollResult
}

type QuotaService struct {
	userRepo *repository.UserRepository
	cfg      *config.Config
	now      func() time.Time
}

func NewQuotaService(userRepo *repository.UserRepository, cfg *config.Config) *QuotaService {
	return &QuotaService{
		userRepo: userRepo,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock 替换时钟（测试用）
func (s *QuotaService) WithClock(now func() time.Time) *QuotaService {
	s.now = now
	return s
}

func (s *QuotaService) today() string {
	return s.now().UTC().Format(dayLayout)
}

// CanConsume 只读判断，不修改任何字段，可用于界面展示。
// 按 Consume 的实际扣减顺序计算余量（基础余量 + 奖励次数），而不是 used < limit + tokens：
// 消耗过奖励次数后 used 已超过 limit，再获得奖励时后者会误判为不可用。
func (s *QuotaService) CanConsume(userID int64) (bool, error) {
	user, err := s.getUser(userID)
	if err != nil {
		return false, err
	}

	if user.IsTestUser || user.IsPremium(s.now()) {
		return true, nil
	}
	return remainingRolls(user, s.effectiveUsed(user)) > 0, nil
}

// Consume 扣减一次：先按日重置，再扣基础次数，最后扣奖励次数。
// 每一步都是带条件的单条 UPDATE，并发调用下成功次数不会超过 limit + tokens。
func (s *QuotaService) Consume(userID int64) (*ConsumeResult, error) {
	user, err := s.getUser(userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if user.IsTestUser || user.IsPremium(now) {
		if _, err := s.userRepo.TouchLastActive(userID, now.UTC()); err != nil {
			return nil, fmt.Errorf("touch last active: %w", err)
		}
		return &ConsumeResult{Status: rollResult(user, user.DiceRollsUsed)}, nil
	}

	if _, err := s.userRepo.ResetQuotaIfStale(userID, s.today()); err != nil {
		return nil, fmt.Errorf("reset quota: %w", err)
	}

	rows, err := s.userRepo.ConsumeBaseRoll(userID)
	if err != nil {
		return nil, fmt.Errorf("consume base roll: %w", err)
	}
	if rows == 0 {
		rows, err = s.userRepo.ConsumeBonusToken(userID)
		if err != nil {
			return nil, fmt.Errorf("consume bonus token: %w", err)
		}
	}
	if rows == 0 {
		return &ConsumeResult{Denied: true}, nil
	}

	// 回读最新快照返回给前端
	updated, err := s.getUser(userID)
	if err != nil {
		return nil, err
	}
	return &ConsumeResult{Status: rollResult(updated, updated.DiceRollsUsed)}, nil
}

// GrantBonusToken 观看广告奖励一次，超过每日上限返回 ErrAdLimitReached
func (s *QuotaService) GrantBonusToken(userID int64) (*dto.UsageStatus, error) {
	now := s.now().UTC()
	rows, err := s.userRepo.GrantBonusToken(userID, s.today(), s.cfg.Quota.MaxAdsPerDay, now)
	if err != nil {
		return nil, fmt.Errorf("grant bonus token: %w", err)
	}
	if rows == 0 {
		// 区分用户不存在与达到上限
		if _, err := s.getUser(userID); err != nil {
			return nil, err
		}
		return nil, ErrAdLimitReached
	}

	log.Info().Int64("user_id", userID).Msg("bonus roll token granted")
	return s.GetStatus(userID)
}

// GetStatus 当前配额视图，按生效值计算但不落库
func (s *QuotaService) GetStatus(userID int64) (*dto.UsageStatus, error) {
	user, err := s.getUser(userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	used := s.effectiveUsed(user)
	premium := user.IsPremium(now)
	remaining := remainingRolls(user, used)

	adsWatched := user.AdsWatchedCount
	if user.AdsWatchDate == nil || *user.AdsWatchDate != s.today() {
		adsWatched = 0
	}

	return &dto.UsageStatus{
		DiceRollsUsed:       used,
		DiceRollsLimit:      user.DiceRollsLimit,
		ExtraRollTokens:     user.ExtraRollTokens,
		TotalAvailableRolls: user.DiceRollsLimit + user.ExtraRollTokens,
		RemainingRolls:      remaining,
		AdsWatchedCount:     adsWatched,
		CanUseDiceRoll:      user.IsTestUser || premium || remaining > 0,
		IsTestUser:          user.IsTestUser,
		IsPremium:           premium,
	}, nil
}

// ResetStaleQuotas 批量重置，供每日定时任务调用，与按需重置并发安全
func (s *QuotaService) ResetStaleQuotas() (int64, error) {
	rows, err := s.userRepo.ResetStaleQuotas(s.today())
	if err != nil {
		return 0, fmt.Errorf("reset stale quotas: %w", err)
	}
	return rows, nil
}

// effectiveUsed 重置日期不是今天时视为已清零
func (s *QuotaService) effectiveUsed(user *model.User) int {
	if user.RollsResetDate == nil || *user.RollsResetDate != s.today() {
		return 0
	}
	return user.DiceRollsUsed
}

func (s *QuotaService) getUser(userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// remainingRolls 基础次数余量加奖励次数。奖励次数被消耗时 used 同时递增，
// 因此不能直接用 limit + tokens - used。
func remainingRolls(user *model.User, used int) int {
	base := user.DiceRollsLimit - used
	if base < 0 {
		base = 0
	}
	return base + user.ExtraRollTokens
}

func rollResult(user *model.User, used int) *dto.DiceRollResult {
	return &dto.DiceRollResult{
		DiceRollsUsed:   used,
		DiceRollsLimit:  user.DiceRollsLimit,
		ExtraRollTokens: user.ExtraRollTokens,
		RemainingRolls:  remainingRolls(user, used),
	}
}
