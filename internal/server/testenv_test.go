package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"roamio/internal/config"
	"roamio/internal/mailer"
	"roamio/internal/models"
	"roamio/internal/oauth/qq"
	"roamio/internal/quotes"
	"roamio/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret-with-at-least-32-characters!"

// MockQQProvider is a testify mock of the QQ client.
type MockQQProvider struct {
	mock.Mock
}

func (m *MockQQProvider) Enabled() bool {
	return m.Called().Bool(0)
}

func (m *MockQQProvider) AuthCodeURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockQQProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	tok, _ := args.Get(0).(*oauth2.Token)
	return tok, args.Error(1)
}

func (m *MockQQProvider) Identity(ctx context.Context, tok *oauth2.Token) (*qq.Identity, error) {
	args := m.Called(ctx, tok)
	id, _ := args.Get(0).(*qq.Identity)
	return id, args.Error(1)
}

type staticQuotes struct{ quote quotes.Quote }

func (q staticQuotes) Today(context.Context) quotes.Quote { return q.quote }

// apiEnv is a fully wired Server on sqlite and miniredis.
type apiEnv struct {
	t     *testing.T
	db    *gorm.DB
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	store *testutil.MemoryStore
	mail  *mailer.LogSender
	qq    *MockQQProvider
	srv   *Server
	app   *fiber.App
}

func newAPIEnv(t *testing.T, flags string) *apiEnv {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	db := testutil.NewSQLiteDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		Env:                   "test",
		JWTSecret:             testJWTSecret,
		AccessTokenTTLMinutes: 15,
		RefreshTokenTTLHours:  24,
		FeatureFlags:          flags,
		AllowedOrigins:        "http://localhost:5173",
	}
	env := &apiEnv{
		t:     t,
		db:    db,
		mr:    mr,
		rdb:   rdb,
		store: testutil.NewMemoryStore(),
		mail:  &mailer.LogSender{},
		qq:    &MockQQProvider{},
	}
	srv, err := NewServerWithDeps(cfg, db, rdb, Deps{
		Store:       env.store,
		Mailer:      env.mail,
		QQ:          env.qq,
		Quotes:      staticQuotes{quote: quotes.Quote{Content: "Go far.", Author: "Tester"}},
		LegacyNames: map[string]string{"trip1": "三岔河一日游"},
	})
	require.NoError(t, err)
	env.srv = srv
	env.app = srv.NewApp()
	return env
}

// login signs in a user created by testutil.CreateUser and returns its access token.
func (e *apiEnv) login(user *models.User) string {
	e.t.Helper()
	res, err := e.srv.authService.SignIn(context.Background(), user)
	require.NoError(e.t, err)
	return res.Access
}

func (e *apiEnv) do(method, path string, body any, token string) *http.Response {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.send(req, token)
}

func (e *apiEnv) send(req *http.Request, token string) *http.Response {
	e.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// pagedBody is a list envelope with typed results.
type pagedBody[T any] struct {
	Count   int64 `json:"count"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Results []T   `json:"results"`
}
