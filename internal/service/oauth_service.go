package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"roamio/internal/middleware"
	"roamio/internal/models"
	"roamio/internal/oauth/qq"
	"roamio/internal/repository"
	"roamio/internal/validation"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	oauthStateKeyPrefix = "qq_oauth_state:"
	OAuthStateTTL       = 30 * time.Minute

	maxQQUsernameLen   = 20
	defaultQQUsername  = "qq_user"
	maxUsernameSuffix  = 1000
	randomPasswordSize = 24
)

var qqUsernameUnsafe = regexp.MustCompile(`[^\w\x{4e00}-\x{9fff}-]`)

// QQProvider is the part of the QQ client the service needs.
type QQProvider interface {
	Enabled() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Identity(ctx context.Context, tok *oauth2.Token) (*qq.Identity, error)
}

type LoginURLResult struct {
	AuthorizeURL string `json:"authorize_url"`
	State        string `json:"state"`
}

type QQBindInput struct {
	Code              string
	State             string
	Email             string
	VerificationToken string
}

type OAuthService struct {
	provider   QQProvider
	userRepo   repository.UserRepository
	socialRepo repository.SocialAccountRepository
	auth       *AuthService
	verifier   *VerificationService
	rdb        *redis.Client
}

func NewOAuthService(
	provider QQProvider,
	userRepo repository.UserRepository,
	socialRepo repository.SocialAccountRepository,
	auth *AuthService,
	verifier *VerificationService,
	rdb *redis.Client,
) *OAuthService {
	return &OAuthService{
		provider:   provider,
		userRepo:   userRepo,
		socialRepo: socialRepo,
		auth:       auth,
		verifier:   verifier,
		rdb:        rdb,
	}
}

// LoginURL stores a fresh state and returns the QQ authorization URL for it.
func (s *OAuthService) LoginURL(ctx context.Context) (*LoginURLResult, error) {
	if !s.provider.Enabled() {
		return nil, models.NewValidationError("QQ login is not configured")
	}
	if s.rdb == nil {
		return nil, models.NewInternalError(errRedisUnavailable)
	}
	state, err := randomHex(16)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.rdb.Set(ctx, oauthStateKeyPrefix+state, "1", OAuthStateTTL).Err(); err != nil {
		return nil, models.NewInternalError(err)
	}
	return &LoginURLResult{AuthorizeURL: s.provider.AuthCodeURL(state), State: state}, nil
}

// Callback signs in the user bound to the QQ identity, creating an account on first login.
func (s *OAuthService) Callback(ctx context.Context, code, state string) (*AuthResult, error) {
	ident, err := s.identify(ctx, code, state)
	if err != nil {
		return nil, err
	}

	account, err := s.socialRepo.GetByProviderUID(ctx, models.ProviderQQ, ident.OpenID)
	switch {
	case err == nil:
		s.refreshAccount(ctx, account, ident)
		if account.User == nil {
			return nil, models.NewInternalError(fmt.Errorf("social account %d has no user", account.ID))
		}
		if !account.User.IsActive {
			return nil, models.NewUnauthenticatedError("Account is disabled")
		}
		return s.auth.SignIn(ctx, account.User)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, models.NewInternalError(err)
	}

	username, err := s.uniqueUsername(ctx, ident.Nickname)
	if err != nil {
		return nil, err
	}
	user, err := s.createWithRandomPassword(ctx, username, nil)
	if err != nil {
		return nil, err
	}
	if err := s.link(ctx, user, ident); err != nil {
		return nil, err
	}
	s.adoptAvatar(ctx, user, ident.AvatarURL)

	res, err := s.auth.SignIn(ctx, user)
	if err != nil {
		return nil, err
	}
	res.EmailOptional = true
	return res, nil
}

// Bind links a QQ identity to the account owning a verified email, creating
// that account when none exists.
func (s *OAuthService) Bind(ctx context.Context, in QQBindInput) (*AuthResult, error) {
	email := validation.NormalizeEmail(in.Email)
	if email == "" || in.VerificationToken == "" {
		return nil, models.NewValidationError("Email and verification token are required")
	}
	if err := s.verifier.CheckToken(ctx, in.VerificationToken, email, models.VerificationBindEmail); err != nil {
		return nil, err
	}
	ident, err := s.identify(ctx, in.Code, in.State)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnbound(ctx, ident.OpenID, 0); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if _, err := s.socialRepo.GetByUser(ctx, user.ID, models.ProviderQQ); err == nil {
			return nil, models.NewConflictError("This account is already bound to another QQ account")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewInternalError(err)
		}
	} else {
		base := strings.SplitN(email, "@", 2)[0]
		username, err := s.uniqueUsername(ctx, base)
		if err != nil {
			return nil, err
		}
		if user, err = s.createWithRandomPassword(ctx, username, &email); err != nil {
			return nil, err
		}
	}

	if err := s.link(ctx, user, ident); err != nil {
		return nil, err
	}
	s.adoptAvatar(ctx, user, ident.AvatarURL)
	s.verifier.DiscardToken(ctx, in.VerificationToken)
	return s.auth.SignIn(ctx, user)
}

// BindExisting links a QQ identity to the signed-in user.
func (s *OAuthService) BindExisting(ctx context.Context, userID uint, code, state string) (*models.UserView, error) {
	if userID == 0 {
		return nil, models.NewUnauthenticatedError("Authentication required")
	}
	if _, err := s.socialRepo.GetByUser(ctx, userID, models.ProviderQQ); err == nil {
		return nil, models.NewConflictError("This account is already bound to a QQ account")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewInternalError(err)
	}

	ident, err := s.identify(ctx, code, state)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnbound(ctx, ident.OpenID, userID); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.link(ctx, user, ident); err != nil {
		return nil, err
	}
	s.adoptAvatar(ctx, user, ident.AvatarURL)
	return s.auth.Me(ctx, userID)
}

// Unbind removes the QQ link of the signed-in user.
func (s *OAuthService) Unbind(ctx context.Context, userID uint) error {
	removed, err := s.socialRepo.DeleteByUser(ctx, userID, models.ProviderQQ)
	if err != nil {
		return models.NewInternalError(err)
	}
	if !removed {
		return models.NewNotFoundError("QQ binding", userID)
	}
	return nil
}

// identify consumes state and resolves code to a QQ identity.
func (s *OAuthService) identify(ctx context.Context, code, state string) (*qq.Identity, error) {
	if code == "" || state == "" {
		return nil, models.NewValidationError("Code and state are required")
	}
	if err := s.consumeState(ctx, state); err != nil {
		return nil, err
	}
	tok, err := s.provider.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, qq.ErrNotConfigured) {
			return nil, models.NewValidationError("QQ login is not configured")
		}
		return nil, models.NewExternalError("QQ authorization failed", err)
	}
	ident, err := s.provider.Identity(ctx, tok)
	if err != nil {
		return nil, models.NewExternalError("Failed to fetch QQ identity", err)
	}
	return ident, nil
}

func (s *OAuthService) consumeState(ctx context.Context, state string) error {
	if s.rdb == nil {
		return models.NewInternalError(errRedisUnavailable)
	}
	n, err := s.rdb.Del(ctx, oauthStateKeyPrefix+state).Result()
	if err != nil {
		return models.NewInternalError(err)
	}
	if n == 0 {
		return models.NewValidationError("Invalid or expired state")
	}
	return nil
}

// ensureUnbound fails when openID is linked to a user other than allowed.
func (s *OAuthService) ensureUnbound(ctx context.Context, openID string, allowed uint) error {
	account, err := s.socialRepo.GetByProviderUID(ctx, models.ProviderQQ, openID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return models.NewInternalError(err)
	}
	if allowed != 0 && account.UserID == allowed {
		return nil
	}
	return models.NewConflictError("This QQ account is already bound to another user")
}

func (s *OAuthService) link(ctx context.Context, user *models.User, ident *qq.Identity) error {
	account := &models.SocialAccount{
		Provider:  models.ProviderQQ,
		UID:       ident.OpenID,
		UnionID:   ident.UnionID,
		UserID:    user.ID,
		Nickname:  ident.Nickname,
		AvatarURL: ident.AvatarURL,
	}
	if err := s.socialRepo.Create(ctx, account); err != nil {
		if repository.IsUniqueViolation(err) {
			return models.NewConflictError("This QQ account is already bound to another user")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (s *OAuthService) refreshAccount(ctx context.Context, account *models.SocialAccount, ident *qq.Identity) {
	if account.Nickname == ident.Nickname && account.AvatarURL == ident.AvatarURL {
		return
	}
	account.Nickname = ident.Nickname
	account.AvatarURL = ident.AvatarURL
	account.UnionID = ident.UnionID
	if err := s.socialRepo.UpdateProfile(ctx, account); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to refresh qq profile",
			slog.Uint64("user_id", uint64(account.UserID)), slog.String("error", err.Error()))
	}
}

// adoptAvatar sets the QQ avatar when the user has none.
func (s *OAuthService) adoptAvatar(ctx context.Context, user *models.User, avatarURL string) {
	profile := profileOf(user)
	if avatarURL == "" || profile.Avatar != "" {
		return
	}
	profile.Avatar = avatarURL
	if err := s.userRepo.UpsertProfile(ctx, profile); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to set qq avatar",
			slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		return
	}
	user.Profile = profile
}

func (s *OAuthService) createWithRandomPassword(ctx context.Context, username string, email *string) (*models.User, error) {
	password, err := randomHex(randomPasswordSize)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return s.auth.createUser(ctx, username, email, password)
}

// uniqueUsername derives a free username from a nickname, appending _N on collision.
func (s *OAuthService) uniqueUsername(ctx context.Context, nickname string) (string, error) {
	base := SanitizeQQUsername(nickname)
	candidate := base
	for i := 1; i <= maxUsernameSuffix; i++ {
		taken, err := s.userRepo.ExistsUsername(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
	suffix, err := randomHex(4)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return "qq_" + suffix, nil
}

// SanitizeQQUsername replaces characters outside word, CJK and dash with "_"
// and truncates to 20 runes.
func SanitizeQQUsername(nickname string) string {
	name := qqUsernameUnsafe.ReplaceAllString(strings.TrimSpace(nickname), "_")
	name = strings.Trim(name, "_-")
	if r := []rune(name); len(r) > maxQQUsernameLen {
		name = strings.Trim(string(r[:maxQQUsernameLen]), "_-")
	}
	if len([]rune(name)) < 3 {
		return defaultQQUsername
	}
	return name
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
