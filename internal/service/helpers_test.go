package service

import (
	"context"
	"errors"
	"testing"

	"roamio/internal/config"
	"roamio/internal/featureflags"
	"roamio/internal/mailer"
	"roamio/internal/models"
	"roamio/internal/repository"
	"roamio/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret-with-at-least-32-characters!"

// assertAppCode asserts that err is an AppError carrying code.
func assertAppCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code, "message: %s", appErr.Message)
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppCode(t, err, models.CodeValidation)
}

func assertUnauthorizedError(t *testing.T, err error) {
	t.Helper()
	assertAppCode(t, err, models.CodeUnauthorized)
}

func assertNotFoundError(t *testing.T, err error) {
	t.Helper()
	assertAppCode(t, err, models.CodeNotFound)
}

func assertConflictError(t *testing.T, err error) {
	t.Helper()
	assertAppCode(t, err, models.CodeConflict)
}

// testEnv wires every service against one in-memory database and one miniredis.
type testEnv struct {
	db    *gorm.DB
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	store *testutil.MemoryStore
	mail  *mailer.LogSender

	users    repository.UserRepository
	trips    repository.TripRepository
	comments repository.CommentRepository
	stats    repository.PageStatRepository
	social   repository.SocialAccountRepository
	codes    repository.VerificationCodeRepository

	media    *MediaService
	pageSvc  *PageService
	comment  *CommentService
	trip     *TripService
	verifier *VerificationService
	user     *UserService
	auth     *AuthService
}

func newTestEnv(t *testing.T, flags string) *testEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		db:       db,
		mr:       mr,
		rdb:      rdb,
		store:    testutil.NewMemoryStore(),
		mail:     &mailer.LogSender{},
		users:    repository.NewUserRepository(db),
		trips:    repository.NewTripRepository(db),
		comments: repository.NewCommentRepository(db),
		stats:    repository.NewPageStatRepository(db),
		social:   repository.NewSocialAccountRepository(db),
		codes:    repository.NewVerificationCodeRepository(db),
	}
	cfg := &config.Config{
		JWTSecret:             testJWTSecret,
		AccessTokenTTLMinutes: 15,
		RefreshTokenTTLHours:  24,
	}
	isAdmin := AdminChecker(env.users.IsAdmin)

	env.media = NewMediaService(env.store, cfg)
	env.pageSvc = NewPageService(env.stats, env.trips, isAdmin, map[string]string{"trip1": "Sanchahe day trip"})
	env.comment = NewCommentService(env.comments, env.trips, env.stats, env.media, isAdmin)
	env.trip = NewTripService(env.trips, env.stats, env.comments, env.media, featureflags.NewManager(flags), isAdmin)
	env.verifier = NewVerificationService(env.codes, env.users, env.mail, rdb)
	env.user = NewUserService(env.users, env.trips, env.comments, env.social, env.media, env.verifier, isAdmin)
	env.auth = NewAuthService(env.users, env.user, env.verifier, rdb, cfg)
	env.auth.bcryptCost = 4
	return env
}

// issueVerifiedToken runs the send and verify steps and returns the token.
func (e *testEnv) issueVerifiedToken(t *testing.T, email string, typ models.VerificationType) string {
	t.Helper()
	ctx := context.Background()
	_, err := e.verifier.SendCode(ctx, SendCodeInput{Email: email, Type: typ})
	require.NoError(t, err)

	var row models.EmailVerificationCode
	require.NoError(t, e.db.Where("email = ? AND type = ?", email, typ).Order("id DESC").First(&row).Error)
	res, err := e.verifier.VerifyCode(ctx, email, row.Code, typ)
	require.NoError(t, err)
	return res.VerificationToken
}

func ptr[T any](v T) *T { return &v }
