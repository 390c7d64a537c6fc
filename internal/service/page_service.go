package service

import (
	"context"
	"errors"
	"strings"

	"roamio/internal/models"
	"roamio/internal/observability"
	"roamio/internal/repository"
	"roamio/internal/validation"

	"gorm.io/gorm"
)

// PageService exposes page counters and the discoverable page list.
type PageService struct {
	statRepo repository.PageStatRepository
	tripRepo repository.TripRepository
	isAdmin  AdminChecker
	// names maps legacy page keys to display names.
	names map[string]string
}

func NewPageService(
	statRepo repository.PageStatRepository,
	tripRepo repository.TripRepository,
	isAdmin AdminChecker,
	legacyNames map[string]string,
) *PageService {
	if legacyNames == nil {
		legacyNames = map[string]string{}
	}
	return &PageService{statRepo: statRepo, tripRepo: tripRepo, isAdmin: isAdmin, names: legacyNames}
}

// DisplayName picks the trip title, then the legacy fixture name, then the upper-cased key.
func (s *PageService) DisplayName(page, tripTitle string) string {
	if tripTitle != "" {
		return tripTitle
	}
	if name, ok := s.names[page]; ok && name != "" {
		return name
	}
	return strings.ToUpper(page)
}

// List returns the discoverable pages, most liked first.
func (s *PageService) List(ctx context.Context, limit, offset int) ([]models.PageView, int64, error) {
	rows, total, err := s.statRepo.ListListed(ctx, limit, offset)
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	out := make([]models.PageView, 0, len(rows))
	for _, row := range rows {
		v := models.PageView{
			Page:      row.Page,
			Views:     row.Views,
			Likes:     row.Likes,
			CheckedIn: row.CheckedIn,
			Listed:    row.Listed,
			OwnerID:   row.OwnerID,
		}
		var title string
		if row.TripID != nil {
			v.TripSlug = row.Page
			if row.TripTitle != nil {
				title = *row.TripTitle
			}
			if row.TripDescription != nil {
				v.Description = *row.TripDescription
			}
		}
		v.Name = s.DisplayName(row.Page, title)
		out = append(out, v)
	}
	return out, total, nil
}

// Get returns the page and counts the visit.
func (s *PageService) Get(ctx context.Context, page string, viewerID uint) (*models.PageView, error) {
	if err := validation.ValidatePageKey(page); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	stat, err := s.statRepo.IncrementViews(ctx, page)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	observability.PageViews.Inc()
	return s.view(ctx, stat, viewerID)
}

// Stats returns the counters without counting a visit.
func (s *PageService) Stats(ctx context.Context, page string, viewerID uint) (*models.PageView, error) {
	if err := validation.ValidatePageKey(page); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	stat, err := s.statRepo.GetOrCreate(ctx, page)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return s.view(ctx, stat, viewerID)
}

// Like adds one like. Likes are never removed.
func (s *PageService) Like(ctx context.Context, page string, viewerID uint) (*models.PageView, error) {
	if err := validation.ValidatePageKey(page); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	stat, err := s.statRepo.IncrementLikes(ctx, page)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	observability.PageLikes.Inc()
	return s.view(ctx, stat, viewerID)
}

// CheckIn marks the page as visited in person.
func (s *PageService) CheckIn(ctx context.Context, page string, viewerID uint) (*models.PageView, error) {
	if err := validation.ValidatePageKey(page); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	stat, err := s.statRepo.MarkCheckedIn(ctx, page)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return s.view(ctx, stat, viewerID)
}

// view decorates stat with the owning trip when the viewer may see it.
func (s *PageService) view(ctx context.Context, stat *models.PageStat, viewerID uint) (*models.PageView, error) {
	v := &models.PageView{
		Page:      stat.Page,
		Views:     stat.Views,
		Likes:     stat.Likes,
		CheckedIn: stat.CheckedIn,
		Listed:    stat.Listed,
		OwnerID:   stat.OwnerID,
	}

	trip, err := s.tripRepo.GetBySlug(ctx, stat.Page)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewInternalError(err)
	}
	var title string
	if trip != nil {
		admin, err := checkAdmin(ctx, s.isAdmin, viewerID)
		if err != nil {
			return nil, err
		}
		v.TripSlug = trip.Slug
		if CanViewTrip(trip, viewerID, admin) {
			title = trip.Title
			v.Description = trip.Description
		}
	}
	v.Name = s.DisplayName(stat.Page, title)
	return v, nil
}
