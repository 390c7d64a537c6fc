package repository

import (
	"context"
	"errors"

	"roamio/internal/models"
	"roamio/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PageStatRepository defines persistence operations for page counters and ownership.
type PageStatRepository interface {
	Get(ctx context.Context, page string) (*models.PageStat, error)
	GetOrCreate(ctx context.Context, page string) (*models.PageStat, error)
	IncrementViews(ctx context.Context, page string) (*models.PageStat, error)
	IncrementLikes(ctx context.Context, page string) (*models.PageStat, error)
	MarkCheckedIn(ctx context.Context, page string) (*models.PageStat, error)
	ClaimOwner(ctx context.Context, page string, userID uint) (bool, error)
	SetListed(ctx context.Context, page string, listed bool, ownerID *uint) (bool, error)
	ListListed(ctx context.Context, limit, offset int) ([]models.ListedPage, int64, error)
	ListedAmong(ctx context.Context, pages []string) (map[string]bool, error)
}

type pageStatRepository struct {
	db *gorm.DB
}

// NewPageStatRepository creates a new PageStatRepository.
func NewPageStatRepository(db *gorm.DB) PageStatRepository {
	return &pageStatRepository{db: db}
}

func (r *pageStatRepository) Get(ctx context.Context, page string) (*models.PageStat, error) {
	var stat models.PageStat
	if err := r.db.WithContext(ctx).Where("page = ?", page).First(&stat).Error; err != nil {
		return nil, err
	}
	return &stat, nil
}

// GetOrCreate returns the row for page, inserting a zeroed one if missing.
// Concurrent callers race on the unique index; the loser's insert is a no-op.
func (r *pageStatRepository) GetOrCreate(ctx context.Context, page string) (*models.PageStat, error) {
	return getOrCreatePage(ctx, r.db, page)
}

func getOrCreatePage(ctx context.Context, db *gorm.DB, page string) (*models.PageStat, error) {
	var stat models.PageStat
	err := db.WithContext(ctx).Where("page = ?", page).First(&stat).Error
	if err == nil {
		return &stat, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	stat = models.PageStat{Page: page}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "page"}}, DoNothing: true}).
		Create(&stat).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Where("page = ?", page).First(&stat).Error; err != nil {
		return nil, err
	}
	return &stat, nil
}

func (r *pageStatRepository) IncrementViews(ctx context.Context, page string) (*models.PageStat, error) {
	return r.increment(ctx, page, "views")
}

func (r *pageStatRepository) IncrementLikes(ctx context.Context, page string) (*models.PageStat, error) {
	return r.increment(ctx, page, "likes")
}

// increment bumps column in the database itself so concurrent requests never lose updates.
func (r *pageStatRepository) increment(ctx context.Context, page, column string) (*models.PageStat, error) {
	span, ctx := observability.StartRepositorySpan(ctx, "page_stats", "increment_"+column)
	defer span.End()

	var stat *models.PageStat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getOrCreatePage(ctx, tx, page); err != nil {
			return err
		}
		if err := tx.Model(&models.PageStat{}).Where("page = ?", page).
			Update(column, gorm.Expr(column+" + ?", 1)).Error; err != nil {
			return err
		}
		var fresh models.PageStat
		if err := tx.Where("page = ?", page).First(&fresh).Error; err != nil {
			return err
		}
		stat = &fresh
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return stat, nil
}

// MarkCheckedIn sets checked_in. Calling it again is harmless.
func (r *pageStatRepository) MarkCheckedIn(ctx context.Context, page string) (*models.PageStat, error) {
	stat, err := getOrCreatePage(ctx, r.db, page)
	if err != nil {
		return nil, err
	}
	if stat.CheckedIn {
		return stat, nil
	}
	if err := r.db.WithContext(ctx).Model(&models.PageStat{}).Where("page = ?", page).
		Update("checked_in", true).Error; err != nil {
		return nil, err
	}
	stat.CheckedIn = true
	return stat, nil
}

// ClaimOwner assigns userID as owner if the page has none yet. It reports whether
// this call made the assignment.
func (r *pageStatRepository) ClaimOwner(ctx context.Context, page string, userID uint) (bool, error) {
	if _, err := getOrCreatePage(ctx, r.db, page); err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Model(&models.PageStat{}).
		Where("page = ? AND owner_id IS NULL", page).
		Update("owner_id", userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetListed flips the discovery flag, creating the row if needed. When ownerID is
// non-nil it is recorded only if the page has no owner. It reports whether the flag changed.
func (r *pageStatRepository) SetListed(ctx context.Context, page string, listed bool, ownerID *uint) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stat, err := getOrCreatePage(ctx, tx, page)
		if err != nil {
			return err
		}
		updates := map[string]any{}
		if stat.Listed != listed {
			updates["listed"] = listed
			changed = true
		}
		if ownerID != nil && stat.OwnerID == nil {
			updates["owner_id"] = *ownerID
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&models.PageStat{}).Where("page = ?", page).Updates(updates).Error
	})
	return changed, err
}

func (r *pageStatRepository) ListListed(ctx context.Context, limit, offset int) ([]models.ListedPage, int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.ListedPage{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var pages []models.ListedPage
	err := q.Order("likes DESC").Order("views DESC").Order("page ASC").
		Limit(clampLimit(limit)).Offset(offset).
		Find(&pages).Error
	return pages, total, err
}

// ListedAmong reports which of pages carry the discovery flag. Pages without a row are absent.
func (r *pageStatRepository) ListedAmong(ctx context.Context, pages []string) (map[string]bool, error) {
	out := make(map[string]bool, len(pages))
	if len(pages) == 0 {
		return out, nil
	}
	var listed []string
	if err := readDB(r.db).WithContext(ctx).Model(&models.PageStat{}).
		Where("page IN ? AND listed = ?", pages, true).
		Pluck("page", &listed).Error; err != nil {
		return nil, err
	}
	for _, p := range listed {
		out[p] = true
	}
	return out, nil
}
