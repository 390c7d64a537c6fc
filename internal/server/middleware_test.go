package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"roamio/internal/middleware"
	"roamio/internal/models"
	"roamio/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_AuthRequired(t *testing.T) {
	env := newAPIEnv(t, "")
	app := fiber.New()
	app.Get("/protected", env.srv.AuthRequired(), func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"userID": viewerID(c)})
	})

	generateToken := func(userID uint, issuer, audience, typ, jti string, exp time.Duration) string {
		claims := jwt.MapClaims{
			"sub": strconv.FormatUint(uint64(userID), 10),
			"iss": issuer,
			"aud": audience,
			"typ": typ,
			"exp": time.Now().Add(exp).Unix(),
			"jti": jti,
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		str, _ := token.SignedString([]byte(testJWTSecret))
		return str
	}
	valid := func(jti string) string {
		return generateToken(123, middleware.TokenIssuer, middleware.TokenAudience,
			middleware.TokenTypeAccess, jti, time.Hour)
	}

	env.mr.Set("blacklist:revoked-jti", "123")

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Valid Token",
			authHeader:     "Bearer " + valid("test-jti-valid"),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Expired Token",
			authHeader:     "Bearer " + generateToken(123, middleware.TokenIssuer, middleware.TokenAudience, middleware.TokenTypeAccess, "a", -time.Hour),
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Invalid or expired token",
		},
		{
			name:           "Invalid Issuer",
			authHeader:     "Bearer " + generateToken(123, "wrong-issuer", middleware.TokenAudience, middleware.TokenTypeAccess, "a", time.Hour),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid Audience",
			authHeader:     "Bearer " + generateToken(123, middleware.TokenIssuer, "wrong-audience", middleware.TokenTypeAccess, "a", time.Hour),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Refresh Token Rejected",
			authHeader:     "Bearer " + generateToken(123, middleware.TokenIssuer, middleware.TokenAudience, middleware.TokenTypeRefresh, "a", time.Hour),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Revoked Token",
			authHeader:     "Bearer " + valid("revoked-jti"),
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Token has been revoked",
		},
		{
			name:           "Missing Header",
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Authorization required",
		},
		{
			name:           "Malformed Bearer Format",
			authHeader:     "Token " + valid("x"),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			if tt.expectedError != "" {
				body := decode[models.ErrorResponse](t, resp)
				assert.Equal(t, tt.expectedError, body.Error)
				assert.Equal(t, models.CodeUnauthenticated, body.Code)
			}
		})
	}
}

func TestServer_OptionalAuth(t *testing.T) {
	env := newAPIEnv(t, "")
	user := testutil.CreateUser(t, env.db, "wanderer", false)
	token := env.login(user)

	app := fiber.New()
	app.Get("/maybe", env.srv.OptionalAuth(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userID": viewerID(c)})
	})

	for name, tc := range map[string]struct {
		header string
		want   float64
	}{
		"anonymous":     {"", 0},
		"signed in":     {"Bearer " + token, float64(user.ID)},
		"garbage token": {"Bearer nope", 0},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/maybe", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			body := decode[map[string]float64](t, resp)
			assert.Equal(t, tc.want, body["userID"])
		})
	}
}

func TestServer_AdminRequired(t *testing.T) {
	env := newAPIEnv(t, "open_trip_tree=on")
	admin := testutil.CreateUser(t, env.db, "root", true)
	member := testutil.CreateUser(t, env.db, "member", false)

	resp := env.do(http.MethodGet, "/api/admin/feature_flags", nil, env.login(member))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/admin/feature_flags", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/admin/feature_flags", nil, env.login(admin))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Raw       map[string]string `json:"raw"`
		Evaluated map[string]bool   `json:"evaluated"`
	}](t, resp)
	assert.Equal(t, "on", body.Raw["open_trip_tree"])
	assert.True(t, body.Evaluated["open_trip_tree"])
}
