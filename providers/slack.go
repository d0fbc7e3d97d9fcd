package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	slackAuthURL  = "https://slack.com/oauth/v2/authorize"
	slackTokenURL = "https://slack.com/api/oauth.v2.access"
	slackAPIURL   = "https://slack.com/api"

	// SlackWorkspaces holds one document per connected workspace.
	SlackWorkspaces = "slackWorkspaces"

	// Slack rotating refresh tokens carry this prefix; bot tokens without rotation do not.
	slackRefreshTokenPrefix = "xoxe-"
)

// SlackAdapter implements Slack's proprietary OAuth v2 exchange. Bot tokens do not expire,
// so Refresh validates the token with auth.test unless it is a rotating refresh token.
// Each workspace is its own connection, keyed by team id.
type SlackAdapter struct {
	descriptor  Descriptor
	credentials *CredentialResolver
	httpClient  *http.Client
	apiURL      string
}

var (
	_ Adapter           = (*SlackAdapter)(nil)
	_ AuxiliaryRecorder = (*SlackAdapter)(nil)
)

func NewSlack(credentials *CredentialResolver, opts ...Option) *SlackAdapter {
	o := buildOptions(options{
		authURL:  slackAuthURL,
		tokenURL: slackTokenURL,
		apiURL:   slackAPIURL,
		scopes:   UnionScopes(Slack),
	}, opts)
	apiURL := strings.TrimRight(o.apiURL, "/")
	if o.revokeURL == "" {
		o.revokeURL = apiURL + "/auth.revoke"
	}

	return &SlackAdapter{
		descriptor: Descriptor{
			Name:            Slack,
			DisplayName:     "Slack",
			AuthURL:         o.authURL,
			TokenURL:        o.tokenURL,
			RevokeURL:       o.revokeURL,
			Scopes:          o.scopes,
			MultiConnection: true,
		},
		credentials: credentials,
		httpClient:  o.httpClient,
		apiURL:      apiURL,
	}
}

func (s *SlackAdapter) Descriptor() Descriptor {
	return s.descriptor
}

func (s *SlackAdapter) Config(ctx context.Context, organizationID string) (Credentials, error) {
	return s.credentials.Resolve(ctx, organizationID, Slack)
}

// BuildAuthorizationURL joins scopes with commas, as Slack expects.
func (s *SlackAdapter) BuildAuthorizationURL(ctx context.Context, organizationID, redirectURI, state string) (string, error) {
	creds, err := s.Config(ctx, organizationID)
	if err != nil {
		return "", err
	}
	q := url.Values{
		"client_id":    {creds.ClientID},
		"scope":        {strings.Join(s.descriptor.Scopes, ",")},
		"redirect_uri": {redirectURI},
		"state":        {state},
	}
	sep := "?"
	if strings.Contains(s.descriptor.AuthURL, "?") {
		sep = "&"
	}
	return s.descriptor.AuthURL + sep + q.Encode(), nil
}

type slackAccessResponse struct {
	Ok           bool   `json:"ok"`
	Error        string `json:"error"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	BotUserID    string `json:"bot_user_id"`
	AppID        string `json:"app_id"`
	Team         struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
	AuthedUser struct {
		ID string `json:"id"`
	} `json:"authed_user"`
}

func (s *SlackAdapter) ExchangeCode(ctx context.Context, code, redirectURI, organizationID string) (*TokenSet, error) {
	creds, err := s.Config(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	resp, err := s.access(ctx, "exchange", url.Values{
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
	})
	if err != nil {
		return nil, err
	}

	set := s.tokenSet(resp, "")
	set.Account = AccountInfo{ID: resp.Team.ID, Name: resp.Team.Name}
	if email, name := s.userIdentity(ctx, resp.AccessToken, resp.AuthedUser.ID); email != "" {
		set.Account.Email = email
		if name != "" {
			set.Extra["authedUserName"] = name
		}
	}
	return set, nil
}

func (s *SlackAdapter) Refresh(ctx context.Context, token, organizationID string) (*TokenSet, error) {
	if token == "" {
		return nil, NewProviderError(Slack, "refresh", 0, "invalid_refresh_token", "no token", nil)
	}
	if strings.HasPrefix(token, slackRefreshTokenPrefix) {
		return s.rotate(ctx, token, organizationID)
	}
	return s.validate(ctx, token)
}

func (s *SlackAdapter) rotate(ctx context.Context, refreshToken, organizationID string) (*TokenSet, error) {
	creds, err := s.Config(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	resp, err := s.access(ctx, "refresh", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
	})
	if err != nil {
		return nil, err
	}
	return s.tokenSet(resp, refreshToken), nil
}

// validate checks a non-expiring bot token and returns it unchanged.
func (s *SlackAdapter) validate(ctx context.Context, accessToken string) (*TokenSet, error) {
	req, err := newBearerRequest(ctx, http.MethodPost, s.apiURL+"/auth.test", accessToken, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Ok     bool   `json:"ok"`
		Error  string `json:"error"`
		TeamID string `json:"team_id"`
		Team   string `json:"team"`
	}
	if err := doJSON(s.httpClient, Slack, "refresh", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Ok {
		return nil, NewProviderError(Slack, "refresh", http.StatusOK, resp.Error, "auth.test rejected token", nil)
	}
	return &TokenSet{
		AccessToken:  accessToken,
		Scopes:       s.descriptor.Scopes,
		Account:      AccountInfo{ID: resp.TeamID, Name: resp.Team},
		ConnectionID: resp.TeamID,
		Extra:        map[string]string{"teamId": resp.TeamID, "teamName": resp.Team},
	}, nil
}

func (s *SlackAdapter) Revoke(ctx context.Context, accessToken, _ string) error {
	req, err := newBearerRequest(ctx, http.MethodPost, s.descriptor.RevokeURL, accessToken, nil)
	if err != nil {
		return err
	}
	var resp struct {
		Ok    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := doJSON(s.httpClient, Slack, "revoke", req, &resp); err != nil {
		return err
	}
	if !resp.Ok {
		return NewProviderError(Slack, "revoke", http.StatusOK, resp.Error, "", nil)
	}
	return nil
}

// AuxiliaryDocuments records the workspace so other services can find the owning
// organization from a Slack event's team id. No token material is stored there.
func (s *SlackAdapter) AuxiliaryDocuments(organizationID string, tokens *TokenSet, now time.Time) map[string]map[string]any {
	if tokens == nil || tokens.ConnectionID == "" {
		return nil
	}
	return map[string]map[string]any{
		workspacePath(tokens.ConnectionID): {
			"teamId":         tokens.ConnectionID,
			"teamName":       tokens.Extra["teamName"],
			"botUserId":      tokens.Extra["botUserId"],
			"appId":          tokens.Extra["appId"],
			"organizationId": organizationID,
			"connectedAt":    now.UTC(),
		},
	}
}

func (s *SlackAdapter) AuxiliaryPaths(_ string, connectionID string) []string {
	if connectionID == "" {
		return nil
	}
	return []string{workspacePath(connectionID)}
}

func workspacePath(teamID string) string {
	return SlackWorkspaces + "/" + teamID
}

func (s *SlackAdapter) access(ctx context.Context, op string, form url.Values) (*slackAccessResponse, error) {
	req, err := newFormRequest(ctx, s.descriptor.TokenURL, form)
	if err != nil {
		return nil, err
	}
	var resp slackAccessResponse
	if err := doJSON(s.httpClient, Slack, op, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Ok {
		return nil, NewProviderError(Slack, op, http.StatusOK, resp.Error, "", nil)
	}
	if resp.AccessToken == "" {
		return nil, NewProviderError(Slack, op, http.StatusOK, "", "token response carried no access token", nil)
	}
	return &resp, nil
}

func (s *SlackAdapter) tokenSet(resp *slackAccessResponse, previousRefresh string) *TokenSet {
	set := &TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Scopes:       s.descriptor.Scopes,
		ConnectionID: resp.Team.ID,
		Extra: map[string]string{
			"teamId":    resp.Team.ID,
			"teamName":  resp.Team.Name,
			"botUserId": resp.BotUserID,
			"appId":     resp.AppID,
		},
	}
	if set.RefreshToken == "" {
		set.RefreshToken = previousRefresh
	}
	if resp.Scope != "" {
		set.Scopes = strings.Split(resp.Scope, ",")
	}
	if resp.ExpiresIn > 0 {
		expiry := time.Now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second)
		set.ExpiresAt = &expiry
	}
	return set
}

// userIdentity is best effort; it needs the users:read.email scope.
func (s *SlackAdapter) userIdentity(ctx context.Context, accessToken, userID string) (email, name string) {
	if userID == "" {
		return "", ""
	}
	req, err := newBearerRequest(ctx, http.MethodGet, s.apiURL+"/users.info?"+url.Values{"user": {userID}}.Encode(), accessToken, nil)
	if err != nil {
		return "", ""
	}
	var resp struct {
		Ok   bool `json:"ok"`
		User struct {
			RealName string `json:"real_name"`
			Profile  struct {
				Email string `json:"email"`
			} `json:"profile"`
		} `json:"user"`
	}
	if err := doJSON(s.httpClient, Slack, "identity", req, &resp); err != nil || !resp.Ok {
		logIdentityFailure(Slack, err)
		return "", ""
	}
	return resp.User.Profile.Email, resp.User.RealName
}

func logIdentityFailure(provider Name, err error) {
	log.Warn().Err(err).Str("provider", provider.String()).Msg("account identity lookup failed, continuing without it")
}
