package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/internal/model/dto"
	"github.com/qs3c/guitar_dice_server/internal/repository"
)

type UserService struct {
	userRepo *repository.UserRepository
	quota    *QuotaService
}

func NewUserService(userRepo *repository.UserRepository, quota *QuotaService) *UserService {
	return &UserService{
		userRepo: userRepo,
		quota:    quota,
	}
}

// GetProfile 获取用户详情，附带当前配额
func (s *UserService) GetProfile(userID int64) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	info := buildUserInfo(user)
	usage, err := s.quota.GetStatus(userID)
	if err != nil {
		return nil, err
	}
	info.Usage = usage
	return info, nil
}

// UpdateProfile 更新展示名与头像
func (s *UserService) UpdateProfile(userID int64, req *dto.UpdateProfileRequest) (*dto.UserInfo, error) {
	fields := map[string]interface{}{}
	if req.DisplayName != nil {
		fields["display_name"] = strings.TrimSpace(*req.DisplayName)
	}
	if req.AvatarURL != nil {
		fields["avatar_url"] = strings.TrimSpace(*req.AvatarURL)
	}

	if len(fields) > 0 {
		if _, err := s.userRepo.GetByID(userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
		if err := s.userRepo.UpdateFields(userID, fields); err != nil {
			return nil, err
		}
	}

	return s.GetProfile(userID)
}
