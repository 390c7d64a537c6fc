package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"roamio/internal/cache"
	"roamio/internal/featureflags"
	"roamio/internal/models"
	"roamio/internal/repository"
	"roamio/internal/validation"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FlagOpenTripTree lets trip authors attach and detach their own trips.
const FlagOpenTripTree = "open_trip_tree"

const (
	slugLength      = 12
	maxSlugAttempts = 10
	maxTitleLen     = 200
	cloneSuffix     = " (copy)"
)

type TripService struct {
	tripRepo    repository.TripRepository
	statRepo    repository.PageStatRepository
	commentRepo repository.CommentRepository
	media       *MediaService
	flags       *featureflags.Manager
	isAdmin     AdminChecker
	now         func() time.Time
}

type CreateTripInput struct {
	UserID          uint
	Slug            string
	Title           string
	Description     string
	Icon            string
	StartDate       *time.Time
	EndDate         *time.Time
	Status          models.TripStatus
	Visibility      models.TripVisibility
	Config          json.RawMessage
	Overview        json.RawMessage
	ThemeColor      string
	BackgroundMusic string
}

// UpdateTripInput changes only the fields that are set.
type UpdateTripInput struct {
	UserID          uint
	Slug            string
	Title           *string
	Description     *string
	Icon            *string
	StartDate       *time.Time
	EndDate         *time.Time
	Status          *models.TripStatus
	Visibility      *models.TripVisibility
	Config          json.RawMessage
	Overview        json.RawMessage
	ThemeColor      *string
	BackgroundMusic *string
}

type ListTripsInput struct {
	ViewerID uint
	AuthorID uint
	Status   models.TripStatus
	Search   string
	Limit    int
	Offset   int
}

func NewTripService(
	tripRepo repository.TripRepository,
	statRepo repository.PageStatRepository,
	commentRepo repository.CommentRepository,
	media *MediaService,
	flags *featureflags.Manager,
	isAdmin AdminChecker,
) *TripService {
	return &TripService{
		tripRepo:    tripRepo,
		statRepo:    statRepo,
		commentRepo: commentRepo,
		media:       media,
		flags:       flags,
		isAdmin:     isAdmin,
		now:         time.Now,
	}
}

func (s *TripService) CreateTrip(ctx context.Context, in CreateTripInput) (*models.TripView, error) {
	if in.UserID == 0 {
		return nil, models.NewUnauthenticatedError("Authentication required")
	}
	trip := &models.Trip{
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Icon:            in.Icon,
		AuthorID:        in.UserID,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		Status:          in.Status,
		Visibility:      in.Visibility,
		Config:          in.Config,
		Overview:        in.Overview,
		ThemeColor:      in.ThemeColor,
		BackgroundMusic: in.BackgroundMusic,
	}
	if trip.Status == "" {
		trip.Status = models.TripStatusDraft
	}
	if trip.Visibility == "" {
		trip.Visibility = models.TripVisibilityPrivate
	}
	if err := validateTrip(trip); err != nil {
		return nil, err
	}

	slug := strings.TrimSpace(in.Slug)
	if slug != "" {
		if err := validation.ValidateSlug(slug); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		if err := s.checkSlugAvailable(ctx, slug, in.UserID); err != nil {
			return nil, err
		}
	}
	if err := s.insert(ctx, trip, slug); err != nil {
		return nil, err
	}
	return s.GetTrip(ctx, trip.Slug, in.UserID)
}

// insert stores trip under slug, or under a generated slug when slug is empty.
// Generated slugs are retried when a concurrent insert takes them first.
func (s *TripService) insert(ctx context.Context, trip *models.Trip, slug string) error {
	for attempt := 0; attempt < 3; attempt++ {
		trip.Slug = slug
		if slug == "" {
			generated, err := s.generateSlug(ctx, trip.Title)
			if err != nil {
				return err
			}
			trip.Slug = generated
		}
		err := s.tripRepo.Create(ctx, trip)
		if err == nil {
			return nil
		}
		if !repository.IsUniqueViolation(err) {
			return models.NewInternalError(err)
		}
		if slug != "" {
			return models.NewConflictError("A trip with this slug already exists")
		}
		trip.ID = 0
	}
	return models.NewConflictError("Could not allocate a unique slug")
}

// generateSlug hashes title, a random UUID and the current time. On collision a
// counter is appended to the hash input.
func (s *TripService) generateSlug(ctx context.Context, title string) (string, error) {
	seed := title + uuid.NewString() + s.now().UTC().Format(time.RFC3339Nano)
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		input := seed
		if attempt > 0 {
			input += strconv.Itoa(attempt)
		}
		sum := sha256.Sum256([]byte(input))
		slug := hex.EncodeToString(sum[:])[:slugLength]
		exists, err := s.tripRepo.SlugExists(ctx, slug)
		if err != nil {
			return "", models.NewInternalError(err)
		}
		if !exists {
			return slug, nil
		}
	}
	return "", models.NewInternalError(errors.New("slug generation exhausted"))
}

// checkSlugAvailable rejects slugs taken by a trip or by a legacy page someone else owns.
func (s *TripService) checkSlugAvailable(ctx context.Context, slug string, userID uint) error {
	exists, err := s.tripRepo.SlugExists(ctx, slug)
	if err != nil {
		return models.NewInternalError(err)
	}
	if exists {
		return models.NewConflictError("A trip with this slug already exists")
	}
	stat, err := s.statRepo.Get(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return models.NewInternalError(err)
	}
	if stat.OwnerID != nil && *stat.OwnerID != userID {
		return models.NewConflictError("This page key belongs to another user")
	}
	return nil
}

func validateTrip(trip *models.Trip) error {
	if trip.Title == "" {
		return models.NewValidationError("Title is required")
	}
	if utf8.RuneCountInString(trip.Title) > maxTitleLen {
		return models.NewValidationError("Title too long (max 200 characters)")
	}
	if !trip.Status.Valid() {
		return models.NewValidationError("Status must be draft or published")
	}
	if !trip.Visibility.Valid() {
		return models.NewValidationError("Visibility must be private or public")
	}
	if trip.StartDate != nil && trip.EndDate != nil && trip.EndDate.Before(*trip.StartDate) {
		return models.NewValidationError("End date must not be before start date")
	}
	var err error
	if trip.Config, err = normalizeJSONObject(trip.Config, "config"); err != nil {
		return err
	}
	if trip.Overview, err = normalizeJSONObject(trip.Overview, "overview"); err != nil {
		return err
	}
	return nil
}

// normalizeJSONObject defaults empty documents to {} and rejects anything but an object.
func normalizeJSONObject(raw json.RawMessage, field string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage(`{}`), nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, models.NewValidationError(field + " must be a JSON object")
	}
	return json.RawMessage(trimmed), nil
}

// ListTrips returns the trips the viewer may see: public ones, plus their own.
func (s *TripService) ListTrips(ctx context.Context, in ListTripsInput) ([]models.TripView, int64, error) {
	admin, err := checkAdmin(ctx, s.isAdmin, in.ViewerID)
	if err != nil {
		return nil, 0, err
	}
	if in.Status != "" && !in.Status.Valid() {
		return nil, 0, models.NewValidationError("Status must be draft or published")
	}
	trips, total, err := s.tripRepo.List(ctx, repository.TripFilter{
		ViewerID:      in.ViewerID,
		ViewerIsAdmin: admin,
		AuthorID:      in.AuthorID,
		Status:        in.Status,
		Search:        in.Search,
		Limit:         in.Limit,
		Offset:        in.Offset,
	})
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	views, err := s.views(ctx, trips, in.ViewerID)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// MyTrips returns every trip authored by userID regardless of visibility.
func (s *TripService) MyTrips(ctx context.Context, userID uint) ([]models.TripView, error) {
	trips, err := s.tripRepo.ListByAuthor(ctx, userID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return s.views(ctx, trips, userID)
}

// cachedTrip keeps the author, which Trip omits from JSON.
type cachedTrip struct {
	Trip   models.Trip  `json:"trip"`
	Author *models.User `json:"author"`
}

func (s *TripService) load(ctx context.Context, slug string) (*models.Trip, error) {
	var entry cachedTrip
	err := cache.Aside(ctx, cache.TripKey(slug), &entry, cache.TripTTL, func() error {
		trip, err := s.tripRepo.GetBySlug(ctx, slug)
		if err != nil {
			return translateRepoError(err, "Trip", slug)
		}
		entry = cachedTrip{Trip: *trip, Author: trip.Author}
		return nil
	})
	if err != nil {
		return nil, err
	}
	trip := entry.Trip
	trip.Author = entry.Author
	return &trip, nil
}

// loadVisible loads the trip and reports it missing to viewers who may not read it.
func (s *TripService) loadVisible(ctx context.Context, slug string, viewerID uint) (*models.Trip, bool, error) {
	trip, err := s.load(ctx, slug)
	if err != nil {
		return nil, false, err
	}
	admin, err := checkAdmin(ctx, s.isAdmin, viewerID)
	if err != nil {
		return nil, false, err
	}
	if !CanViewTrip(trip, viewerID, admin) {
		return nil, false, models.NewNotFoundError("Trip", slug)
	}
	return trip, admin, nil
}

func (s *TripService) GetTrip(ctx context.Context, slug string, viewerID uint) (*models.TripView, error) {
	trip, _, err := s.loadVisible(ctx, slug, viewerID)
	if err != nil {
		return nil, err
	}
	views, err := s.views(ctx, []models.Trip{*trip}, viewerID)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *TripService) UpdateTrip(ctx context.Context, in UpdateTripInput) (*models.TripView, error) {
	trip, admin, err := s.loadVisible(ctx, in.Slug, in.UserID)
	if err != nil {
		return nil, err
	}
	if !CanModifyTrip(trip, in.UserID, admin) {
		return nil, models.NewUnauthorizedError("You can only edit your own trips")
	}

	if in.Title != nil {
		trip.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		trip.Description = *in.Description
	}
	if in.Icon != nil {
		trip.Icon = *in.Icon
	}
	if in.StartDate != nil {
		trip.StartDate = in.StartDate
	}
	if in.EndDate != nil {
		trip.EndDate = in.EndDate
	}
	if in.Status != nil {
		trip.Status = *in.Status
	}
	if in.Visibility != nil {
		trip.Visibility = *in.Visibility
	}
	if in.Config != nil {
		trip.Config = in.Config
	}
	if in.Overview != nil {
		trip.Overview = in.Overview
	}
	if in.ThemeColor != nil {
		trip.ThemeColor = *in.ThemeColor
	}
	if in.BackgroundMusic != nil {
		trip.BackgroundMusic = *in.BackgroundMusic
	}
	if err := validateTrip(trip); err != nil {
		return nil, err
	}

	if err := s.tripRepo.Update(ctx, trip); err != nil {
		return nil, models.NewInternalError(err)
	}
	cache.InvalidateTrip(ctx, trip.Slug)
	return s.GetTrip(ctx, trip.Slug, in.UserID)
}

// DeleteTrip removes the trip, the comments of its page and its statistics.
func (s *TripService) DeleteTrip(ctx context.Context, userID uint, slug string) error {
	trip, admin, err := s.loadVisible(ctx, slug, userID)
	if err != nil {
		return err
	}
	if !CanModifyTrip(trip, userID, admin) {
		return models.NewUnauthorizedError("You can only delete your own trips")
	}
	urls, err := s.commentRepo.MediaURLs(ctx, trip.Slug, 0)
	if err != nil {
		return models.NewInternalError(err)
	}
	if err := s.tripRepo.Delete(ctx, trip); err != nil {
		return translateRepoError(err, "Trip", slug)
	}
	cache.InvalidateTrip(ctx, trip.Slug)
	s.media.DeleteAsync(ctx, urls...)
	return nil
}

// CloneTrip copies the descriptive fields of a readable trip into a new private
// draft owned by userID. Comments and statistics stay with the source.
func (s *TripService) CloneTrip(ctx context.Context, userID uint, slug string) (*models.TripView, error) {
	if userID == 0 {
		return nil, models.NewUnauthenticatedError("Authentication required")
	}
	src, _, err := s.loadVisible(ctx, slug, userID)
	if err != nil {
		return nil, err
	}
	title := src.Title
	if utf8.RuneCountInString(title)+utf8.RuneCountInString(cloneSuffix) > maxTitleLen {
		title = string([]rune(title)[:maxTitleLen-utf8.RuneCountInString(cloneSuffix)])
	}
	return s.CreateTrip(ctx, CreateTripInput{
		UserID:          userID,
		Title:           title + cloneSuffix,
		Description:     src.Description,
		Icon:            src.Icon,
		StartDate:       src.StartDate,
		EndDate:         src.EndDate,
		Status:          models.TripStatusDraft,
		Visibility:      models.TripVisibilityPrivate,
		Config:          append(json.RawMessage(nil), src.Config...),
		Overview:        append(json.RawMessage(nil), src.Overview...),
		ThemeColor:      src.ThemeColor,
		BackgroundMusic: src.BackgroundMusic,
	})
}

// AttachToTree lists the trip's page in the discoverable list. It reports
// whether the page was newly listed.
func (s *TripService) AttachToTree(ctx context.Context, userID uint, slug string) (*models.TripView, bool, error) {
	trip, err := s.treeTarget(ctx, userID, slug)
	if err != nil {
		return nil, false, err
	}
	if !trip.IsPublic() {
		return nil, false, models.NewValidationError("Only public trips can be added to the trip tree")
	}
	changed, err := s.statRepo.SetListed(ctx, trip.Slug, true, &trip.AuthorID)
	if err != nil {
		return nil, false, models.NewInternalError(err)
	}
	view, err := s.GetTrip(ctx, trip.Slug, userID)
	return view, changed, err
}

// DetachFromTree clears the listing flag and keeps the counters.
func (s *TripService) DetachFromTree(ctx context.Context, userID uint, slug string) (*models.TripView, error) {
	trip, err := s.treeTarget(ctx, userID, slug)
	if err != nil {
		return nil, err
	}
	changed, err := s.statRepo.SetListed(ctx, trip.Slug, false, nil)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if !changed {
		return nil, models.NewNotFoundError("Trip tree entry", slug)
	}
	return s.GetTrip(ctx, trip.Slug, userID)
}

func (s *TripService) treeTarget(ctx context.Context, userID uint, slug string) (*models.Trip, error) {
	trip, admin, err := s.loadVisible(ctx, slug, userID)
	if err != nil {
		return nil, err
	}
	open := s.flags.Enabled(FlagOpenTripTree, userID)
	if !CanManageTree(trip, userID, admin, open) {
		if !open && !admin {
			return nil, models.NewUnauthorizedError("The trip tree is managed by administrators")
		}
		return nil, models.NewUnauthorizedError("You can only manage your own trips in the trip tree")
	}
	return trip, nil
}

func (s *TripService) views(ctx context.Context, trips []models.Trip, viewerID uint) ([]models.TripView, error) {
	out := make([]models.TripView, 0, len(trips))
	if len(trips) == 0 {
		return out, nil
	}
	slugs := make([]string, 0, len(trips))
	for _, t := range trips {
		slugs = append(slugs, t.Slug)
	}
	listed, err := s.statRepo.ListedAmong(ctx, slugs)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	for i := range trips {
		t := &trips[i]
		out = append(out, models.TripView{
			Trip:       t,
			AuthorInfo: t.Author.Public(),
			InTree:     listed[t.Slug],
			IsOwner:    viewerID != 0 && t.AuthorID == viewerID,
		})
	}
	return out, nil
}
