package repository

import (
	"context"
	"time"

	"roamio/internal/models"

	"gorm.io/gorm"
)

// VerificationCodeRepository defines persistence operations for emailed codes.
type VerificationCodeRepository interface {
	Create(ctx context.Context, code *models.EmailVerificationCode) error
	FindUsable(ctx context.Context, email, code string, typ models.VerificationType, now time.Time) (*models.EmailVerificationCode, error)
	MarkUsed(ctx context.Context, id uint, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type verificationCodeRepository struct {
	db *gorm.DB
}

// NewVerificationCodeRepository creates a new VerificationCodeRepository.
func NewVerificationCodeRepository(db *gorm.DB) VerificationCodeRepository {
	return &verificationCodeRepository{db: db}
}

func (r *verificationCodeRepository) Create(ctx context.Context, code *models.EmailVerificationCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

// FindUsable returns the newest unused, unexpired code matching all inputs.
func (r *verificationCodeRepository) FindUsable(
	ctx context.Context,
	email, code string,
	typ models.VerificationType,
	now time.Time,
) (*models.EmailVerificationCode, error) {
	var row models.EmailVerificationCode
	err := r.db.WithContext(ctx).
		Where("email = ? AND code = ? AND type = ? AND is_used = ? AND expires_at > ?", email, code, typ, false, now).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// MarkUsed consumes the code. It reports false when another request consumed it first.
func (r *verificationCodeRepository) MarkUsed(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.EmailVerificationCode{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]any{"is_used": true, "used_at": now})
	return res.RowsAffected == 1, res.Error
}

func (r *verificationCodeRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&models.EmailVerificationCode{})
	return res.RowsAffected, res.Error
}
