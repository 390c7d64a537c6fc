package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"roamio/internal/config"
	"roamio/internal/middleware"
	"roamio/internal/models"
	"roamio/internal/repository"
	"roamio/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const blacklistKeyPrefix = "blacklist:"

// TokenPair is an access token with the refresh token that renews it.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// AuthResult is returned by every flow that signs a user in.
type AuthResult struct {
	User    *models.UserView `json:"user"`
	Access  string           `json:"access"`
	Refresh string           `json:"refresh"`
	// EmailOptional tells the client a QQ sign-up may add an email later.
	EmailOptional bool `json:"email_optional,omitempty"`
}

type RegisterInput struct {
	Username          string
	Email             string
	Password          string
	VerificationToken string
}

type ResetPasswordInput struct {
	Email             string
	VerificationToken string
	NewPassword       string
}

type AuthService struct {
	userRepo   repository.UserRepository
	users      *UserService
	verifier   *VerificationService
	rdb        *redis.Client
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
	now        func() time.Time
}

func NewAuthService(
	userRepo repository.UserRepository,
	users *UserService,
	verifier *VerificationService,
	rdb *redis.Client,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		users:      users,
		verifier:   verifier,
		rdb:        rdb,
		secret:     cfg.JWTSecret,
		accessTTL:  time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		refreshTTL: time.Duration(cfg.RefreshTokenTTLHours) * time.Hour,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// Register creates an account. An email is optional; when given with a
// verification token the token must prove the address.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, models.NewValidationError("Username and password are required")
	}
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	var email *string
	if e := validation.NormalizeEmail(in.Email); e != "" {
		if err := validation.ValidateEmail(e); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		if in.VerificationToken != "" {
			if err := s.verifier.CheckToken(ctx, in.VerificationToken, e, models.VerificationRegister); err != nil {
				return nil, err
			}
		}
		existing, err := s.userRepo.GetByEmail(ctx, e)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, models.NewConflictError("This email is already registered")
		}
		email = &e
	}

	taken, err := s.userRepo.ExistsUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, models.NewConflictError("Username already taken")
	}

	user, err := s.createUser(ctx, username, email, in.Password)
	if err != nil {
		return nil, err
	}
	s.verifier.DiscardToken(ctx, in.VerificationToken)
	return s.SignIn(ctx, user)
}

// createUser hashes password and inserts the user with an empty profile.
func (s *AuthService) createUser(ctx context.Context, username string, email *string, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user := &models.User{
		Username: username,
		Email:    email,
		Password: string(hash),
		IsActive: true,
		Profile:  &models.UserProfile{},
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login accepts a username or an email address as the identifier.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, models.NewValidationError("Username and password are required")
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.userRepo.GetByEmail(ctx, validation.NormalizeEmail(identifier))
	} else {
		user, err = s.userRepo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthenticatedError("Invalid credentials")
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); cmpErr != nil {
		return nil, models.NewUnauthenticatedError("Invalid credentials")
	}
	if !user.IsActive {
		return nil, models.NewUnauthenticatedError("Account is disabled")
	}
	return s.SignIn(ctx, user)
}

// SignIn issues a token pair for user and attaches the private user view.
func (s *AuthService) SignIn(ctx context.Context, user *models.User) (*AuthResult, error) {
	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	view, err := s.users.GetProfile(ctx, user.ID, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: view, Access: pair.Access, Refresh: pair.Refresh}, nil
}

// Refresh exchanges a refresh token for a new pair. The old refresh token is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, models.NewValidationError("Refresh token is required")
	}
	claims, err := middleware.ParseToken(s.secret, refreshToken, middleware.TokenTypeRefresh)
	if err != nil {
		return nil, models.NewUnauthenticatedError("Invalid or expired refresh token")
	}
	revoked, err := s.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if revoked {
		return nil, models.NewUnauthenticatedError("Refresh token has been revoked")
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthenticatedError("User no longer exists")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, models.NewUnauthenticatedError("Account is disabled")
	}

	s.revoke(ctx, claims)
	return s.issuePair(user)
}

// Logout revokes the access token in use and, when given, the refresh token.
func (s *AuthService) Logout(ctx context.Context, access *middleware.TokenClaims, refreshToken string) error {
	if access != nil {
		s.revoke(ctx, access)
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := middleware.ParseToken(s.secret, refreshToken, middleware.TokenTypeRefresh)
	if err != nil {
		return models.NewValidationError("Invalid refresh token")
	}
	if access != nil && claims.UserID != access.UserID {
		return models.NewValidationError("Refresh token belongs to another user")
	}
	s.revoke(ctx, claims)
	return nil
}

// IsRevoked reports whether jti is on the revocation list.
func (s *AuthService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s.rdb == nil || jti == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, blacklistKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// revoke lists the token until it would have expired anyway.
func (s *AuthService) revoke(ctx context.Context, claims *middleware.TokenClaims) {
	if s.rdb == nil || claims.JTI == "" {
		middleware.Logger.WarnContext(ctx, "token revocation skipped, redis unavailable")
		return
	}
	ttl := time.Until(time.Unix(claims.ExpiresAt, 0))
	if ttl <= 0 {
		return
	}
	if err := s.rdb.Set(ctx, blacklistKeyPrefix+claims.JTI, claims.UserID, ttl).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "token revocation failed",
			slog.String("jti", claims.JTI), slog.String("error", err.Error()))
	}
}

// Me returns the caller's private view with a freshly computed level.
func (s *AuthService) Me(ctx context.Context, userID uint) (*models.UserView, error) {
	return s.users.GetProfile(ctx, userID, userID)
}

// ResetPassword sets a new password after the email proved ownership.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	email := validation.NormalizeEmail(in.Email)
	if email == "" || in.VerificationToken == "" || in.NewPassword == "" {
		return models.NewValidationError("Email, verification token and new password are required")
	}
	if err := s.verifier.CheckToken(ctx, in.VerificationToken, email, models.VerificationResetPassword); err != nil {
		return err
	}
	if err := validation.ValidatePassword(in.NewPassword); err != nil {
		return models.NewValidationError(err.Error())
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return models.NewNotFoundError("User", email)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.bcryptCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	s.verifier.DiscardToken(ctx, in.VerificationToken)
	return nil
}

func (s *AuthService) issuePair(user *models.User) (*TokenPair, error) {
	access, err := s.generateToken(user, middleware.TokenTypeAccess, s.accessTTL)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	refresh, err := s.generateToken(user, middleware.TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// generateToken creates a signed JWT of typ for user.
func (s *AuthService) generateToken(user *models.User, typ string, ttl time.Duration) (string, error) {
	if s.secret == "" {
		return "", errors.New("JWT secret not configured")
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatUint(uint64(user.ID), 10),
		"username": user.Username,
		"typ":      typ,
		"iss":      middleware.TokenIssuer,
		"aud":      middleware.TokenAudience,
		"exp":      now.Add(ttl).Unix(),
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"jti":      fmt.Sprintf("%d-%s", now.Unix(), uuid.NewString()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}
