package repository

import (
	"context"
	"strings"

	"roamio/internal/models"
	"roamio/internal/observability"

	"gorm.io/gorm"
)

// TripFilter narrows trip listings.
type TripFilter struct {
	// ViewerID is the requester; 0 means anonymous.
	ViewerID uint
	// ViewerIsAdmin lifts the visibility restriction.
	ViewerIsAdmin bool
	AuthorID      uint
	Status        models.TripStatus
	Search        string
	Limit         int
	Offset        int
}

// TripRepository defines persistence operations for trip plans.
type TripRepository interface {
	Create(ctx context.Context, trip *models.Trip) error
	SlugExists(ctx context.Context, slug string) (bool, error)
	GetBySlug(ctx context.Context, slug string) (*models.Trip, error)
	List(ctx context.Context, filter TripFilter) ([]models.Trip, int64, error)
	ListByAuthor(ctx context.Context, authorID uint) ([]models.Trip, error)
	CountByAuthor(ctx context.Context, authorID uint, publicOnly bool) (int64, error)
	Update(ctx context.Context, trip *models.Trip) error
	Delete(ctx context.Context, trip *models.Trip) error
}

type tripRepository struct {
	db *gorm.DB
}

// NewTripRepository creates a new TripRepository.
func NewTripRepository(db *gorm.DB) TripRepository {
	return &tripRepository{db: db}
}

// Create inserts the trip and claims ownership of its page in one transaction.
func (r *tripRepository) Create(ctx context.Context, trip *models.Trip) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Author").Create(trip).Error; err != nil {
			return err
		}
		if _, err := getOrCreatePage(ctx, tx, trip.Slug); err != nil {
			return err
		}
		return tx.Model(&models.PageStat{}).
			Where("page = ? AND owner_id IS NULL", trip.Slug).
			Update("owner_id", trip.AuthorID).Error
	})
}

func (r *tripRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Trip{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *tripRepository) GetBySlug(ctx context.Context, slug string) (*models.Trip, error) {
	var trip models.Trip
	if err := r.db.WithContext(ctx).Preload("Author.Profile").Where("slug = ?", slug).First(&trip).Error; err != nil {
		return nil, err
	}
	return &trip, nil
}

func (r *tripRepository) List(ctx context.Context, filter TripFilter) ([]models.Trip, int64, error) {
	span, ctx := observability.StartRepositorySpan(ctx, "trips", "list")
	defer span.End()

	q := readDB(r.db).WithContext(ctx).Model(&models.Trip{})
	switch {
	case filter.ViewerIsAdmin:
	case filter.ViewerID != 0:
		q = q.Where("visibility = ? OR author_id = ?", models.TripVisibilityPublic, filter.ViewerID)
	default:
		q = q.Where("visibility = ?", models.TripVisibilityPublic)
	}
	if filter.AuthorID != 0 {
		q = q.Where("author_id = ?", filter.AuthorID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		span.SetError(err)
		return nil, 0, err
	}

	var trips []models.Trip
	err := q.Preload("Author.Profile").
		Order("updated_at DESC").Order("id DESC").
		Limit(clampLimit(filter.Limit)).Offset(filter.Offset).
		Find(&trips).Error
	if err != nil {
		span.SetError(err)
	}
	return trips, total, err
}

func (r *tripRepository) ListByAuthor(ctx context.Context, authorID uint) ([]models.Trip, error) {
	var trips []models.Trip
	err := readDB(r.db).WithContext(ctx).Preload("Author.Profile").
		Where("author_id = ?", authorID).
		Order("updated_at DESC").Order("id DESC").
		Find(&trips).Error
	return trips, err
}

func (r *tripRepository) CountByAuthor(ctx context.Context, authorID uint, publicOnly bool) (int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.Trip{}).Where("author_id = ?", authorID)
	if publicOnly {
		q = q.Where("visibility = ?", models.TripVisibilityPublic)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

// Update writes every editable column. Slug and author are immutable.
func (r *tripRepository) Update(ctx context.Context, trip *models.Trip) error {
	return r.db.WithContext(ctx).Model(&models.Trip{ID: trip.ID}).
		Select("title", "description", "icon", "start_date", "end_date", "status", "visibility",
			"config", "overview", "theme_color", "background_music").
		Updates(trip).Error
}

// Delete removes the trip together with the comments and statistics of its page.
func (r *tripRepository) Delete(ctx context.Context, trip *models.Trip) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Replies first so the delete does not depend on cascade support.
		if err := tx.Where("page = ? AND parent_id IS NOT NULL", trip.Slug).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("page = ?", trip.Slug).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("page = ?", trip.Slug).Delete(&models.PageStat{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Trip{}, trip.ID).Error
	})
}
