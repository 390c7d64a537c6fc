package repository

import (
	"context"

	"roamio/internal/models"

	"gorm.io/gorm"
)

// SocialAccountRepository defines persistence operations for third-party identities.
type SocialAccountRepository interface {
	GetByProviderUID(ctx context.Context, provider, uid string) (*models.SocialAccount, error)
	GetByUser(ctx context.Context, userID uint, provider string) (*models.SocialAccount, error)
	Create(ctx context.Context, account *models.SocialAccount) error
	UpdateProfile(ctx context.Context, account *models.SocialAccount) error
	DeleteByUser(ctx context.Context, userID uint, provider string) (bool, error)
}

type socialAccountRepository struct {
	db *gorm.DB
}

// NewSocialAccountRepository creates a new SocialAccountRepository.
func NewSocialAccountRepository(db *gorm.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

func (r *socialAccountRepository) GetByProviderUID(ctx context.Context, provider, uid string) (*models.SocialAccount, error) {
	var account models.SocialAccount
	if err := r.db.WithContext(ctx).Preload("User.Profile").
		Where("provider = ? AND uid = ?", provider, uid).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *socialAccountRepository) GetByUser(ctx context.Context, userID uint, provider string) (*models.SocialAccount, error) {
	var account models.SocialAccount
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *socialAccountRepository) Create(ctx context.Context, account *models.SocialAccount) error {
	return r.db.WithContext(ctx).Omit("User").Create(account).Error
}

// UpdateProfile refreshes the provider nickname and avatar.
func (r *socialAccountRepository) UpdateProfile(ctx context.Context, account *models.SocialAccount) error {
	return r.db.WithContext(ctx).Model(&models.SocialAccount{ID: account.ID}).
		Select("nickname", "avatar_url", "union_id").Updates(account).Error
}

func (r *socialAccountRepository) DeleteByUser(ctx context.Context, userID uint, provider string) (bool, error) {
	res := r.db.WithContext(ctx).Where("user_id = ? AND provider = ?", userID, provider).Delete(&models.SocialAccount{})
	return res.RowsAffected > 0, res.Error
}
