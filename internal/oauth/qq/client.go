// Package qq implements the QQ Connect OAuth 2.0 flow.
package qq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roamio/internal/config"
	"roamio/internal/observability"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every call to the provider.
const DefaultTimeout = 10 * time.Second

// ErrNotConfigured is returned when no app ID is set.
var ErrNotConfigured = errors.New("qq: oauth is not configured")

// Identity is what QQ tells us about the signed-in user.
type Identity struct {
	OpenID    string `json:"openid"`
	UnionID   string `json:"unionid,omitempty"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
}

// Options configures a Client.
type Options struct {
	AppID        string
	AppKey       string
	RedirectURI  string
	AuthorizeURL string
	TokenURL     string
	OpenIDURL    string
	UserInfoURL  string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// OptionsFromConfig maps application config onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AppID:        cfg.QQAppID,
		AppKey:       cfg.QQAppKey,
		RedirectURI:  cfg.QQRedirectURI,
		AuthorizeURL: cfg.QQAuthorizeURL,
		TokenURL:     cfg.QQTokenURL,
		OpenIDURL:    cfg.QQOpenIDURL,
		UserInfoURL:  cfg.QQUserInfoURL,
	}
}

// Client talks to graph.qq.com.
type Client struct {
	oauth       *oauth2.Config
	openIDURL   string
	userInfoURL string
	timeout     time.Duration
	http        *http.Client
	limiter     *rate.Limiter
}

// NewClient builds a Client. Outbound calls share one limiter so a burst of
// logins cannot exceed the provider's quota.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     opts.AppID,
			ClientSecret: opts.AppKey,
			RedirectURL:  opts.RedirectURI,
			Scopes:       []string{"get_user_info"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthorizeURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		openIDURL:   opts.OpenIDURL,
		userInfoURL: opts.UserInfoURL,
		timeout:     opts.Timeout,
		http:        opts.HTTPClient,
		limiter:     rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
	}
}

// Enabled reports whether credentials are configured.
func (c *Client) Enabled() bool {
	return c.oauth.ClientID != ""
}

// AuthCodeURL returns the authorization page URL carrying state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	span, ctx := observability.StartExternalSpan(ctx, "qq", "exchange")
	defer span.End()
	defer observability.TrackExternal("qq", "exchange")()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("fmt", "json"))
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("qq: exchange code: %w", err)
	}
	return tok, nil
}

// Identity resolves the openid of tok and, when available, the user's nickname and avatar.
// A failed profile lookup still yields the openid.
func (c *Client) Identity(ctx context.Context, tok *oauth2.Token) (*Identity, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, errors.New("qq: missing access token")
	}
	span, ctx := observability.StartExternalSpan(ctx, "qq", "identity")
	defer span.End()
	defer observability.TrackExternal("qq", "identity")()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.openID(ctx, tok.AccessToken)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	info, err := c.userInfo(ctx, tok.AccessToken, id.OpenID)
	if err != nil {
		return id, nil
	}
	id.Nickname = info.Nickname
	id.AvatarURL = firstNonEmpty(info.FigureQQ2, info.Figure2, info.Figure1)
	return id, nil
}

type openIDResponse struct {
	ClientID         string `json:"client_id"`
	OpenID           string `json:"openid"`
	UnionID          string `json:"unionid"`
	Error            int    `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) openID(ctx context.Context, accessToken string) (*Identity, error) {
	q := url.Values{"access_token": {accessToken}, "unionid": {"1"}}
	body, err := c.get(ctx, c.openIDURL, q)
	if err != nil {
		return nil, err
	}

	var resp openIDResponse
	if err := json.Unmarshal(unwrapJSONP(body), &resp); err != nil {
		return nil, fmt.Errorf("qq: decode openid: %w", err)
	}
	if resp.OpenID == "" {
		return nil, fmt.Errorf("qq: openid lookup failed: %d %s", resp.Error, resp.ErrorDescription)
	}
	return &Identity{OpenID: resp.OpenID, UnionID: resp.UnionID}, nil
}

type userInfoResponse struct {
	Ret       int    `json:"ret"`
	Msg       string `json:"msg"`
	Nickname  string `json:"nickname"`
	Figure1   string `json:"figureurl_1"`
	Figure2   string `json:"figureurl_2"`
	FigureQQ2 string `json:"figureurl_qq_2"`
}

func (c *Client) userInfo(ctx context.Context, accessToken, openID string) (*userInfoResponse, error) {
	q := url.Values{
		"access_token":       {accessToken},
		"oauth_consumer_key": {c.oauth.ClientID},
		"openid":             {openID},
	}
	body, err := c.get(ctx, c.userInfoURL, q)
	if err != nil {
		return nil, err
	}
	var resp userInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("qq: decode user info: %w", err)
	}
	if resp.Ret != 0 {
		return nil, fmt.Errorf("qq: user info: %d %s", resp.Ret, resp.Msg)
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qq: request %s: %w", endpoint, err)
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qq: %s returned %d", endpoint, res.StatusCode)
	}
	return body, nil
}

// unwrapJSONP turns `callback( {...} );` into `{...}`.
func unwrapJSONP(body []byte) []byte {
	s := strings.TrimSpace(string(body))
	if strings.HasPrefix(s, "callback(") {
		s = strings.TrimPrefix(s, "callback(")
		s = strings.TrimSuffix(s, ";")
		s = strings.TrimSuffix(strings.TrimSpace(s), ")")
	}
	return []byte(strings.TrimSpace(s))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
