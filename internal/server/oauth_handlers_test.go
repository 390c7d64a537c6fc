package server

import (
	"errors"
	"net/http"
	"testing"

	"roamio/internal/models"
	"roamio/internal/oauth/qq"
	"roamio/internal/service"
	"roamio/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// qqState asks the API for a login URL and returns the state it issued.
func (e *apiEnv) qqState() string {
	e.t.Helper()
	resp := e.do(http.MethodGet, "/api/auth/qq_login_url", nil, "")
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	res := decode[service.LoginURLResult](e.t, resp)
	require.NotEmpty(e.t, res.State)
	return res.State
}

func (e *apiEnv) expectQQIdentity(code string, ident *qq.Identity) {
	tok := &oauth2.Token{AccessToken: "tok-" + code}
	e.qq.On("Exchange", mock.Anything, code).Return(tok, nil).Once()
	e.qq.On("Identity", mock.Anything, tok).Return(ident, nil).Once()
}

func TestOAuth_LoginURLDisabled(t *testing.T) {
	env := newAPIEnv(t, "")
	env.qq.On("Enabled").Return(false)

	resp := env.do(http.MethodGet, "/api/auth/qq_login_url", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env.qq.AssertExpectations(t)
}

func TestOAuth_CallbackCreatesThenSignsIn(t *testing.T) {
	env := newAPIEnv(t, "")
	env.qq.On("Enabled").Return(true)
	env.qq.On("AuthCodeURL", mock.AnythingOfType("string")).Return("https://graph.qq.com/oauth2.0/authorize?x=1")

	ident := &qq.Identity{OpenID: "OPENID-1", Nickname: "旅行者 ✈"}

	env.expectQQIdentity("first", ident)
	resp := env.do(http.MethodPost, "/api/auth/qq_callback", map[string]any{"code": "first", "state": env.qqState()}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[service.AuthResult](t, resp)
	assert.True(t, first.EmailOptional)
	assert.Equal(t, "旅行者", first.User.Username)

	env.expectQQIdentity("second", ident)
	resp = env.do(http.MethodPost, "/api/auth/qq_callback", map[string]any{"code": "second", "state": env.qqState()}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[service.AuthResult](t, resp)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.False(t, second.EmailOptional)

	env.qq.AssertExpectations(t)
}

func TestOAuth_CallbackRejectsReplayedState(t *testing.T) {
	env := newAPIEnv(t, "")
	env.qq.On("Enabled").Return(true)
	env.qq.On("AuthCodeURL", mock.AnythingOfType("string")).Return("https://graph.qq.com/oauth2.0/authorize")
	state := env.qqState()

	env.expectQQIdentity("c1", &qq.Identity{OpenID: "OPENID-2", Nickname: "once"})
	resp := env.do(http.MethodPost, "/api/auth/qq_callback", map[string]any{"code": "c1", "state": state}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(http.MethodPost, "/api/auth/qq_callback", map[string]any{"code": "c1", "state": state}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOAuth_CallbackProviderFailure(t *testing.T) {
	env := newAPIEnv(t, "")
	env.qq.On("Enabled").Return(true)
	env.qq.On("AuthCodeURL", mock.AnythingOfType("string")).Return("https://graph.qq.com/oauth2.0/authorize")
	env.qq.On("Exchange", mock.Anything, "bad").Return(nil, errors.New("qq: invalid code")).Once()

	resp := env.do(http.MethodPost, "/api/auth/qq_callback", map[string]any{"code": "bad", "state": env.qqState()}, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, models.CodeExternal, decode[models.ErrorResponse](t, resp).Code)
}

func TestOAuth_BindExistingAndUnbind(t *testing.T) {
	env := newAPIEnv(t, "")
	env.qq.On("Enabled").Return(true)
	env.qq.On("AuthCodeURL", mock.AnythingOfType("string")).Return("https://graph.qq.com/oauth2.0/authorize")
	user := testutil.CreateUser(t, env.db, "linker", false)
	token := env.login(user)

	resp := env.do(http.MethodDelete, "/api/auth/qq_unbind", nil, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.expectQQIdentity("bind", &qq.Identity{OpenID: "OPENID-3", Nickname: "linker"})
	resp = env.do(http.MethodPost, "/api/auth/qq_bind_existing", map[string]any{"code": "bind", "state": env.qqState()}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[models.UserView](t, resp)
	require.NotNil(t, view.QQBound)
	assert.True(t, *view.QQBound)

	resp = env.do(http.MethodPost, "/api/auth/qq_bind_existing", map[string]any{"code": "again", "state": env.qqState()}, token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(http.MethodDelete, "/api/auth/qq_unbind", nil, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
