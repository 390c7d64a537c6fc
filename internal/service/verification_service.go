package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"roamio/internal/mailer"
	"roamio/internal/middleware"
	"roamio/internal/models"
	"roamio/internal/observability"
	"roamio/internal/repository"
	"roamio/internal/validation"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	CodeTTL          = 10 * time.Minute
	VerifiedTokenTTL = 5 * time.Minute

	emailCodeLimit  = 3
	emailCodeWindow = 5 * time.Minute
	ipCodeLimit     = 10
	ipCodeWindow    = time.Hour

	emailRateKeyPrefix     = "email_verification_rate_limit:"
	ipRateKeyPrefix        = "ip_verification_rate_limit:"
	verifiedTokenKeyPrefix = "email_verified_token:"
)

var errRedisUnavailable = errors.New("redis client not configured")

type SendCodeInput struct {
	Email string
	Type  models.VerificationType
	IP    string
	// UserID is set when a signed-in user asks for a bind_email code.
	UserID uint
}

type SendCodeResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
}

type VerifyCodeResult struct {
	Success           bool   `json:"success"`
	Verified          bool   `json:"verified"`
	Email             string `json:"email"`
	VerificationToken string `json:"verification_token"`
	ExpiresIn         int    `json:"expires_in"`
}

// verifiedEmail is the payload stored behind a verification token.
type verifiedEmail struct {
	Email            string                  `json:"email"`
	VerificationType models.VerificationType `json:"verification_type"`
	VerifiedAt       time.Time               `json:"verified_at"`
}

// VerificationService mails six digit codes and exchanges them for short-lived
// one-time tokens that other flows consume.
type VerificationService struct {
	codeRepo repository.VerificationCodeRepository
	userRepo repository.UserRepository
	sender   mailer.Sender
	rdb      *redis.Client
	now      func() time.Time

	janitorOnce sync.Once
}

func NewVerificationService(
	codeRepo repository.VerificationCodeRepository,
	userRepo repository.UserRepository,
	sender mailer.Sender,
	rdb *redis.Client,
) *VerificationService {
	return &VerificationService{
		codeRepo: codeRepo,
		userRepo: userRepo,
		sender:   sender,
		rdb:      rdb,
		now:      time.Now,
	}
}

// SendCode checks the address against the code type, applies the per-email and
// per-IP limits and mails a new code.
func (s *VerificationService) SendCode(ctx context.Context, in SendCodeInput) (*SendCodeResult, error) {
	email := validation.NormalizeEmail(in.Email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if !in.Type.Valid() {
		return nil, models.NewValidationError("Unknown verification type")
	}
	if s.rdb == nil {
		return nil, models.NewInternalError(errRedisUnavailable)
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	switch in.Type {
	case models.VerificationRegister:
		if existing != nil {
			return nil, models.NewConflictError("This email is already registered")
		}
	case models.VerificationResetPassword, models.VerificationLogin:
		if existing == nil {
			return nil, models.NewValidationError("This email is not registered")
		}
	case models.VerificationBindEmail:
		// Anonymous callers bind through QQ, which may reuse the address's account.
		if existing != nil && in.UserID != 0 && existing.ID != in.UserID {
			return nil, models.NewConflictError("This email is already used by another account")
		}
	}

	if err := s.limit(ctx, emailRateKeyPrefix+email, emailCodeLimit, emailCodeWindow,
		"Too many codes requested for this email"); err != nil {
		return nil, err
	}
	if ip := strings.TrimSpace(in.IP); ip != "" {
		if err := s.limit(ctx, ipRateKeyPrefix+ip, ipCodeLimit, ipCodeWindow,
			"Too many codes requested from this address"); err != nil {
			return nil, err
		}
	}

	code, err := randomCode()
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	row := &models.EmailVerificationCode{
		Email:     email,
		Code:      code,
		Type:      in.Type,
		ExpiresAt: s.now().Add(CodeTTL),
		IPAddress: in.IP,
	}
	if existing != nil {
		row.UserID = &existing.ID
	}
	if err := s.codeRepo.Create(ctx, row); err != nil {
		return nil, models.NewInternalError(err)
	}

	subject, body, err := mailer.VerificationEmail(string(in.Type), code, int(CodeTTL/time.Minute))
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	err = s.sender.Send(ctx, email, subject, body)
	observability.EmailsSent.WithLabelValues(string(in.Type), observability.ResultLabel(err)).Inc()
	if err != nil {
		return nil, models.NewExternalError("Failed to send verification email", err)
	}

	return &SendCodeResult{
		Success:   true,
		Message:   "Verification code sent",
		ExpiresIn: int(CodeTTL / time.Second),
	}, nil
}

func (s *VerificationService) limit(ctx context.Context, key string, limit int64, window time.Duration, msg string) error {
	count, ttl, err := middleware.IncrWindow(ctx, s.rdb, key, window)
	if err != nil {
		return models.NewInternalError(err)
	}
	if count > limit {
		secs := int(ttl.Seconds())
		if secs < 1 {
			secs = 1
		}
		return models.NewRateLimitedError(fmt.Sprintf("%s, retry in %d seconds", msg, secs), secs)
	}
	return nil
}

// VerifyCode consumes a code and returns a token proving control of the address.
func (s *VerificationService) VerifyCode(ctx context.Context, email, code string, typ models.VerificationType) (*VerifyCodeResult, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateCode(code); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if !typ.Valid() {
		return nil, models.NewValidationError("Unknown verification type")
	}
	if s.rdb == nil {
		return nil, models.NewInternalError(errRedisUnavailable)
	}

	now := s.now()
	row, err := s.codeRepo.FindUsable(ctx, email, code, typ, now)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewValidationError("Invalid or expired verification code")
		}
		return nil, models.NewInternalError(err)
	}
	used, err := s.codeRepo.MarkUsed(ctx, row.ID, now)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if !used {
		return nil, models.NewValidationError("Invalid or expired verification code")
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	payload, err := json.Marshal(verifiedEmail{Email: email, VerificationType: typ, VerifiedAt: now.UTC()})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.rdb.Set(ctx, verifiedTokenKeyPrefix+token, payload, VerifiedTokenTTL).Err(); err != nil {
		return nil, models.NewInternalError(err)
	}

	return &VerifyCodeResult{
		Success:           true,
		Verified:          true,
		Email:             email,
		VerificationToken: token,
		ExpiresIn:         int(VerifiedTokenTTL / time.Second),
	}, nil
}

// CheckToken validates a verification token for email and typ without consuming it.
func (s *VerificationService) CheckToken(ctx context.Context, token, email string, typ models.VerificationType) error {
	if strings.TrimSpace(token) == "" {
		return models.NewValidationError("Verification token is required")
	}
	if s.rdb == nil {
		return models.NewInternalError(errRedisUnavailable)
	}
	raw, err := s.rdb.Get(ctx, verifiedTokenKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewValidationError("Verification token is invalid or expired, verify the email again")
	}
	if err != nil {
		return models.NewInternalError(err)
	}
	var data verifiedEmail
	if err := json.Unmarshal(raw, &data); err != nil {
		return models.NewValidationError("Verification token is invalid or expired, verify the email again")
	}
	if data.Email != validation.NormalizeEmail(email) {
		return models.NewValidationError("Verification token does not match this email")
	}
	if data.VerificationType != typ {
		return models.NewValidationError("Verification token has the wrong type")
	}
	return nil
}

// DiscardToken makes a token unusable. Tokens are single use.
func (s *VerificationService) DiscardToken(ctx context.Context, token string) {
	if s.rdb == nil || token == "" {
		return
	}
	if err := s.rdb.Del(ctx, verifiedTokenKeyPrefix+token).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to discard verification token", slog.String("error", err.Error()))
	}
}

// PurgeExpired deletes codes that expired before now.
func (s *VerificationService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.codeRepo.DeleteExpired(ctx, s.now())
}

// StartJanitor purges expired codes every interval until ctx ends.
func (s *VerificationService) StartJanitor(ctx context.Context, interval time.Duration) {
	s.janitorOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					op := observability.StartAsyncOperation(ctx, "verification.purge")
					if _, err := s.PurgeExpired(ctx); err != nil {
						op.Fail(ctx, err)
						continue
					}
					op.Done(ctx)
				}
			}
		}()
	})
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
