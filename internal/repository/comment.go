package repository

import (
	"context"
	"errors"

	"roamio/internal/models"

	"gorm.io/gorm"
)

// CommentFilter narrows comment listings. Zero values mean "no filter".
type CommentFilter struct {
	Page           string
	UserID         uint
	IncludeReplies bool
	Limit          int
	Offset         int
}

// ErrPageOwned is returned by CreateClaiming when another user owns the page.
var ErrPageOwned = errors.New("page is owned by another user")

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	CreateClaiming(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	List(ctx context.Context, filter CommentFilter) ([]models.Comment, int64, error)
	ListReplies(ctx context.Context, parentID uint) ([]models.Comment, error)
	CountReplies(ctx context.Context, parentIDs []uint) (map[uint]int64, error)
	CountByUser(ctx context.Context, userID uint) (int64, error)
	Update(ctx context.Context, comment *models.Comment) error
	SetPinned(ctx context.Context, id uint, pinned bool) error
	Delete(ctx context.Context, id uint) error
	MediaURLs(ctx context.Context, page string, id uint) ([]string, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Omit("User", "Parent").Create(comment).Error
}

// CreateClaiming records the author as owner of comment.Page, unless someone
// else already owns it, and inserts the comment in the same transaction. A
// failed insert leaves the page unclaimed.
func (r *commentRepository) CreateClaiming(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getOrCreatePage(ctx, tx, comment.Page); err != nil {
			return err
		}
		res := tx.Model(&models.PageStat{}).
			Where("page = ? AND (owner_id IS NULL OR owner_id = ?)", comment.Page, comment.UserID).
			Update("owner_id", comment.UserID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPageOwned
		}
		return tx.Omit("User", "Parent").Create(comment).Error
	})
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("User.Profile").First(&comment, id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// List returns comments newest first with pinned comments ahead, plus the unpaginated total.
func (r *commentRepository) List(ctx context.Context, filter CommentFilter) ([]models.Comment, int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.Comment{})
	if filter.Page != "" {
		q = q.Where("page = ?", filter.Page)
	}
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if !filter.IncludeReplies {
		q = q.Where("parent_id IS NULL")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var comments []models.Comment
	err := q.Preload("User.Profile").
		Order("is_pinned DESC").Order("timestamp DESC").Order("id DESC").
		Limit(clampLimit(filter.Limit)).Offset(filter.Offset).
		Find(&comments).Error
	return comments, total, err
}

func (r *commentRepository) ListReplies(ctx context.Context, parentID uint) ([]models.Comment, error) {
	var replies []models.Comment
	err := readDB(r.db).WithContext(ctx).Preload("User.Profile").
		Where("parent_id = ?", parentID).
		Order("timestamp ASC").Order("id ASC").
		Find(&replies).Error
	return replies, err
}

func (r *commentRepository) CountReplies(ctx context.Context, parentIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(parentIDs))
	if len(parentIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ParentID uint
		Count    int64
	}
	err := readDB(r.db).WithContext(ctx).Model(&models.Comment{}).
		Select("parent_id, COUNT(*) AS count").
		Where("parent_id IN ?", parentIDs).
		Group("parent_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ParentID] = row.Count
	}
	return counts, nil
}

func (r *commentRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := readDB(r.db).WithContext(ctx).Model(&models.Comment{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// Update writes the author-editable fields.
func (r *commentRepository) Update(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Model(&models.Comment{ID: comment.ID}).
		Select("content", "image", "video").Updates(comment).Error
}

func (r *commentRepository) SetPinned(ctx context.Context, id uint, pinned bool) error {
	res := r.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", id).Update("is_pinned", pinned)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the comment and its replies.
func (r *commentRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Comment{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// MediaURLs returns the image and video URLs attached to comments that a delete
// would remove: comment id and its replies when id is non-zero, else every
// comment on page.
func (r *commentRepository) MediaURLs(ctx context.Context, page string, id uint) ([]string, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.Comment{}).Select("image", "video")
	if id != 0 {
		q = q.Where("id = ? OR parent_id = ?", id, id)
	} else {
		q = q.Where("page = ?", page)
	}
	var rows []models.Comment
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	var urls []string
	for _, c := range rows {
		if c.Image != nil && *c.Image != "" {
			urls = append(urls, *c.Image)
		}
		if c.Video != nil && *c.Video != "" {
			urls = append(urls, *c.Video)
		}
	}
	return urls, nil
}
