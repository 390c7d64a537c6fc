package service

import (
	"context"
	"errors"
	"strings"

	"roamio/internal/models"
	"roamio/internal/repository"
	"roamio/internal/validation"

	"gorm.io/gorm"
)

const (
	maxBioLen              = 2000
	maxTagsLen             = 500
	maxVisitedCountriesLen = 1000
)

type UserService struct {
	userRepo    repository.UserRepository
	tripRepo    repository.TripRepository
	commentRepo repository.CommentRepository
	socialRepo  repository.SocialAccountRepository
	media       *MediaService
	verifier    *VerificationService
	isAdmin     AdminChecker
}

// UpdateProfileInput changes only the fields that are set.
type UpdateProfileInput struct {
	UserID           uint
	Username         *string
	Bio              *string
	Tags             *string
	VisitedCountries *string
}

type BindEmailInput struct {
	UserID            uint
	Email             string
	VerificationToken string
}

func NewUserService(
	userRepo repository.UserRepository,
	tripRepo repository.TripRepository,
	commentRepo repository.CommentRepository,
	socialRepo repository.SocialAccountRepository,
	media *MediaService,
	verifier *VerificationService,
	isAdmin AdminChecker,
) *UserService {
	return &UserService{
		userRepo:    userRepo,
		tripRepo:    tripRepo,
		commentRepo: commentRepo,
		socialRepo:  socialRepo,
		media:       media,
		verifier:    verifier,
		isAdmin:     isAdmin,
	}
}

// GetProfile returns the user with a freshly computed level. Private fields are
// included for the user themself and for administrators.
func (s *UserService) GetProfile(ctx context.Context, userID, viewerID uint) (*models.UserView, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	private := viewerID == userID
	if !private {
		if private, err = checkAdmin(ctx, s.isAdmin, viewerID); err != nil {
			return nil, err
		}
	}
	return s.view(ctx, user, private)
}

// Stats counts trips and comments and derives the level from them. The counts
// are read live on every call; the level is never cached.
func (s *UserService) Stats(ctx context.Context, userID uint) (*models.UserStats, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	var (
		stats models.UserStats
		err   error
	)
	if stats.TripsCount, err = s.tripRepo.CountByAuthor(ctx, userID, false); err != nil {
		return nil, models.NewInternalError(err)
	}
	if stats.PublicTripsCount, err = s.tripRepo.CountByAuthor(ctx, userID, true); err != nil {
		return nil, models.NewInternalError(err)
	}
	if stats.CommentsCount, err = s.commentRepo.CountByUser(ctx, userID); err != nil {
		return nil, models.NewInternalError(err)
	}
	stats.Level = models.LevelFor(stats.PublicTripsCount, stats.CommentsCount)
	return &stats, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.UserView, error) {
	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username != user.Username {
			if err := validation.ValidateUsername(username); err != nil {
				return nil, models.NewValidationError(err.Error())
			}
			taken, err := s.userRepo.ExistsUsername(ctx, username)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, models.NewConflictError("Username already taken")
			}
			user.Username = username
			if err := s.userRepo.Update(ctx, user); err != nil {
				return nil, err
			}
		}
	}

	profile := profileOf(user)
	if in.Bio != nil {
		if len([]rune(*in.Bio)) > maxBioLen {
			return nil, models.NewValidationError("Bio too long (max 2000 characters)")
		}
		profile.Bio = strings.TrimSpace(*in.Bio)
	}
	if in.Tags != nil {
		profile.Tags = validation.NormalizeTags(*in.Tags)
		if len(profile.Tags) > maxTagsLen {
			return nil, models.NewValidationError("Too many tags")
		}
	}
	if in.VisitedCountries != nil {
		profile.VisitedCountries = validation.NormalizeTags(*in.VisitedCountries)
		if len(profile.VisitedCountries) > maxVisitedCountriesLen {
			return nil, models.NewValidationError("Too many visited countries")
		}
	}
	if err := s.userRepo.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}

	return s.GetProfile(ctx, in.UserID, in.UserID)
}

// UploadAvatar replaces the avatar of targetID. Only the user themself or an
// administrator may do so. The previous avatar is removed in the background.
func (s *UserService) UploadAvatar(ctx context.Context, requesterID, targetID uint, file UploadMediaInput) (string, error) {
	if requesterID != targetID {
		admin, err := checkAdmin(ctx, s.isAdmin, requesterID)
		if err != nil {
			return "", err
		}
		if !admin {
			return "", models.NewUnauthorizedError("You can only change your own avatar")
		}
	}
	user, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return "", err
	}

	file.UserID = targetID
	url, err := s.media.UploadAvatar(ctx, file)
	if err != nil {
		return "", err
	}

	profile := profileOf(user)
	previous := profile.Avatar
	profile.Avatar = url
	if err := s.userRepo.UpsertProfile(ctx, profile); err != nil {
		s.media.DeleteAsync(ctx, url)
		return "", err
	}
	s.media.DeleteAsync(ctx, previous)
	return url, nil
}

// BindEmail sets the address of the account after the email proved ownership
// through a bind_email verification token.
func (s *UserService) BindEmail(ctx context.Context, in BindEmailInput) (*models.UserView, error) {
	email := validation.NormalizeEmail(in.Email)
	if email == "" {
		return nil, models.NewValidationError("Email is required")
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := s.verifier.CheckToken(ctx, in.VerificationToken, email, models.VerificationBindEmail); err != nil {
		return nil, err
	}

	other, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if other != nil && other.ID != in.UserID {
		return nil, models.NewConflictError("This email is already used by another account")
	}

	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	user.Email = &email
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	s.verifier.DiscardToken(ctx, in.VerificationToken)

	return s.GetProfile(ctx, in.UserID, in.UserID)
}

func (s *UserService) view(ctx context.Context, user *models.User, private bool) (*models.UserView, error) {
	stats, err := s.Stats(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	profile := profileOf(user)
	v := &models.UserView{
		ID:         user.ID,
		Username:   user.Username,
		IsAdmin:    user.IsAdmin,
		DateJoined: user.CreatedAt,
		Profile: models.ProfileView{
			Avatar:           profile.Avatar,
			Bio:              profile.Bio,
			Tags:             profile.Tags,
			VisitedCountries: profile.VisitedCountries,
			Level:            stats.Level,
		},
	}
	if private {
		v.Email = user.EmailValue()
		if s.socialRepo != nil {
			_, err := s.socialRepo.GetByUser(ctx, user.ID, models.ProviderQQ)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.NewInternalError(err)
			}
			bound := err == nil
			v.QQBound = &bound
		}
	}
	return v, nil
}

// profileOf returns a copy of the user's profile, or an empty one bound to the user.
func profileOf(user *models.User) *models.UserProfile {
	if user.Profile == nil {
		return &models.UserProfile{UserID: user.ID}
	}
	p := *user.Profile
	// The upsert is keyed on user_id.
	p.ID = 0
	p.UserID = user.ID
	return &p
}
