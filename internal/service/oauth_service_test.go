package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"roamio/internal/models"
	"roamio/internal/oauth/qq"
	"roamio/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeQQ maps authorization codes to identities.
type fakeQQ struct {
	disabled   bool
	identities map[string]*qq.Identity
}

func (f *fakeQQ) Enabled() bool { return !f.disabled }

func (f *fakeQQ) AuthCodeURL(state string) string {
	return "https://graph.qq.test/oauth2.0/authorize?state=" + state
}

func (f *fakeQQ) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if f.disabled {
		return nil, qq.ErrNotConfigured
	}
	if _, ok := f.identities[code]; !ok {
		return nil, errors.New("invalid_grant")
	}
	return &oauth2.Token{AccessToken: "at-" + code}, nil
}

func (f *fakeQQ) Identity(_ context.Context, tok *oauth2.Token) (*qq.Identity, error) {
	id := f.identities[strings.TrimPrefix(tok.AccessToken, "at-")]
	cp := *id
	return &cp, nil
}

func newOAuthEnv(t *testing.T) (*testEnv, *OAuthService, *fakeQQ) {
	t.Helper()
	env := newTestEnv(t, "")
	provider := &fakeQQ{identities: map[string]*qq.Identity{
		"code-ming": {OpenID: "OPEN-MING", Nickname: "小明 the traveller!", AvatarURL: "https://q.qlogo.cn/ming"},
		"code-anon": {OpenID: "OPEN-ANON", Nickname: "??"},
		"code-bind": {OpenID: "OPEN-BIND", Nickname: "binder", AvatarURL: "https://q.qlogo.cn/bind"},
	}}
	svc := NewOAuthService(provider, env.users, env.social, env.auth, env.verifier, env.rdb)
	return env, svc, provider
}

func loginState(t *testing.T, svc *OAuthService) string {
	t.Helper()
	res, err := svc.LoginURL(context.Background())
	require.NoError(t, err)
	require.Contains(t, res.AuthorizeURL, res.State)
	return res.State
}

func TestSanitizeQQUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"小明 the traveller!", "小明_the_traveller"},
		{"  plain_name  ", "plain_name"},
		{"??", defaultQQUsername},
		{"", defaultQQUsername},
		{"abcdefghijklmnopqrstuvwxyz", "abcdefghijklmnopqrst"},
		{"ok-name", "ok-name"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeQQUsername(tt.in), tt.in)
	}
}

func TestOAuthService_StateIsSingleUse(t *testing.T) {
	t.Parallel()
	env, svc, _ := newOAuthEnv(t)
	ctx := context.Background()

	state := loginState(t, svc)
	assert.True(t, env.mr.Exists(oauthStateKeyPrefix+state))

	_, err := svc.Callback(ctx, "code-ming", state)
	require.NoError(t, err)

	_, err = svc.Callback(ctx, "code-ming", state)
	assertValidationError(t, err)

	_, err = svc.Callback(ctx, "code-ming", "forged")
	assertValidationError(t, err)
}

func TestOAuthService_CallbackCreatesThenLogsIn(t *testing.T) {
	t.Parallel()
	env, svc, _ := newOAuthEnv(t)
	ctx := context.Background()

	first, err := svc.Callback(ctx, "code-ming", loginState(t, svc))
	require.NoError(t, err)
	assert.True(t, first.EmailOptional)
	assert.Equal(t, "小明_the_traveller", first.User.Username)
	assert.Equal(t, "https://q.qlogo.cn/ming", first.User.Profile.Avatar)
	assert.Empty(t, first.User.Email)
	require.NotNil(t, first.User.QQBound)
	assert.True(t, *first.User.QQBound)

	second, err := svc.Callback(ctx, "code-ming", loginState(t, svc))
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.False(t, second.EmailOptional)

	var count int64
	require.NoError(t, env.db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestOAuthService_CallbackDedupesUsername(t *testing.T) {
	t.Parallel()
	env, svc, _ := newOAuthEnv(t)
	testutil.CreateUser(t, env.db, defaultQQUsername, false)

	res, err := svc.Callback(context.Background(), "code-anon", loginState(t, svc))
	require.NoError(t, err)
	assert.Equal(t, defaultQQUsername+"_1", res.User.Username)
}

func TestOAuthService_ProviderErrors(t *testing.T) {
	t.Parallel()
	_, svc, provider := newOAuthEnv(t)
	ctx := context.Background()

	_, err := svc.Callback(ctx, "unknown-code", loginState(t, svc))
	assertAppCode(t, err, models.CodeExternal)

	_, err = svc.Callback(ctx, "", "state")
	assertValidationError(t, err)

	provider.disabled = true
	_, err = svc.LoginURL(ctx)
	assertValidationError(t, err)
}

func TestOAuthService_BindCreatesAccountForVerifiedEmail(t *testing.T) {
	t.Parallel()
	env, svc, _ := newOAuthEnv(t)
	ctx := context.Background()

	token := env.issueVerifiedToken(t, "john.doe@example.com", models.VerificationBindEmail)
	res, err := svc.Bind(ctx, QQBindInput{
		Code:              "code-bind",
		State:             loginState(t, svc),
		Email:             "john.doe@example.com",
		VerificationToken: token,
	})
	require.NoError(t, err)
	assert.Equal(t, "john_doe", res.User.Username)
	assert.Equal(t, "john.doe@example.com", res.User.Email)
	assert.Equal(t, "https://q.qlogo.cn/bind", res.User.Profile.Avatar)

	assertValidationError(t, env.verifier.CheckToken(ctx, token, "john.doe@example.com", models.VerificationBindEmail))
}

func TestOAuthService_BindReusesExistingAccount(t *testing.T) {
	t.Parallel()
	env, svc, _ := newOAuthEnv(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, env.db, "existing", false)

	token := env.issueVerifiedToken(t, "existing@example.com", models.VerificationBindEmail)
	res, err := svc.Bind(ctx, QQBindInput{
		Code:              "code-bind",
		State:             loginState(t, svc),
		Email:             "existing@example.com",
		VerificationToken: token,
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)

	token = env.issueVerifiedToken(t, "existing@example.com", models.VerificationBindEmail)
	_, err = svc.Bind(ctx, QQBindInput{
		Code:              "code-bind",
		State:             loginState(t, svc),
		Email:             "existing@example.com",
		VerificationToken: token,
	})
	assertConflictError(t, err)
}

func TestOAuthService_BindExistingAndUnbind(t *testing.T) {
	t.Parallel()
	env, svc, _ := newOAuthEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "alice", false)
	bob := testutil.CreateUser(t, env.db, "bob", false)

	view, err := svc.BindExisting(ctx, alice.ID, "code-bind", loginState(t, svc))
	require.NoError(t, err)
	require.NotNil(t, view.QQBound)
	assert.True(t, *view.QQBound)
	assert.Equal(t, "https://q.qlogo.cn/bind", view.Profile.Avatar)

	_, err = svc.BindExisting(ctx, alice.ID, "code-ming", loginState(t, svc))
	assertConflictError(t, err)

	_, err = svc.BindExisting(ctx, bob.ID, "code-bind", loginState(t, svc))
	assertConflictError(t, err)

	require.NoError(t, svc.Unbind(ctx, alice.ID))
	assertNotFoundError(t, svc.Unbind(ctx, alice.ID))

	_, err = svc.BindExisting(ctx, bob.ID, "code-bind", loginState(t, svc))
	require.NoError(t, err)
}
