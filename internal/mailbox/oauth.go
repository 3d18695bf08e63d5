package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/nikhil/creatortent/internal/models"
)

// Credentials are the OAuth client registrations for each provider.
type Credentials struct {
	// CallbackBase is the public API origin; callbacks land on
	// CallbackBase + "/email/callback/{provider}".
	CallbackBase string

	GoogleClientID        string
	GoogleClientSecret    string
	MicrosoftClientID     string
	MicrosoftClientSecret string
	YahooClientID         string
	YahooClientSecret     string
}

// OAuthProvider wraps the oauth2 config of one provider together with the
// endpoint that tells us which address was connected.
type OAuthProvider struct {
	Name       string
	Config     *oauth2.Config
	ProfileURL string
	// emailPaths are gjson paths tried in order on the profile response.
	emailPaths []string
	httpClient *http.Client
}

// NewProviders registers every provider with a client id configured.
func NewProviders(c Credentials) map[string]*OAuthProvider {
	callback := func(name string) string {
		return strings.TrimRight(c.CallbackBase, "/") + "/email/callback/" + name
	}

	providers := map[string]*OAuthProvider{}
	if c.GoogleClientID != "" {
		providers[models.ProviderGmail] = &OAuthProvider{
			Name: models.ProviderGmail,
			Config: &oauth2.Config{
				ClientID:     c.GoogleClientID,
				ClientSecret: c.GoogleClientSecret,
				RedirectURL:  callback(models.ProviderGmail),
				Scopes: []string{
					"https://www.googleapis.com/auth/gmail.readonly",
					"https://www.googleapis.com/auth/gmail.send",
					"email",
				},
				Endpoint: oauth2.Endpoint{
					AuthURL:   "https://accounts.google.com/o/oauth2/auth",
					TokenURL:  "https://oauth2.googleapis.com/token",
					AuthStyle: oauth2.AuthStyleInParams,
				},
			},
			ProfileURL: gmailAPIBase + "/gmail/v1/users/me/profile",
			emailPaths: []string{"emailAddress"},
		}
	}
	if c.MicrosoftClientID != "" {
		providers[models.ProviderOutlook] = &OAuthProvider{
			Name: models.ProviderOutlook,
			Config: &oauth2.Config{
				ClientID:     c.MicrosoftClientID,
				ClientSecret: c.MicrosoftClientSecret,
				RedirectURL:  callback(models.ProviderOutlook),
				Scopes:       []string{"offline_access", "User.Read", "Mail.Read", "Mail.Send"},
				Endpoint: oauth2.Endpoint{
					AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
					TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
				},
			},
			ProfileURL: graphAPIBase + "/v1.0/me",
			emailPaths: []string{"mail", "userPrincipalName"},
		}
	}
	if c.YahooClientID != "" {
		providers[models.ProviderYahoo] = &OAuthProvider{
			Name: models.ProviderYahoo,
			Config: &oauth2.Config{
				ClientID:     c.YahooClientID,
				ClientSecret: c.YahooClientSecret,
				RedirectURL:  callback(models.ProviderYahoo),
				Scopes:       []string{"openid", "email", "mail-r", "mail-w"},
				Endpoint: oauth2.Endpoint{
					AuthURL:   "https://api.login.yahoo.com/oauth2/request_auth",
					TokenURL:  "https://api.login.yahoo.com/oauth2/get_token",
					AuthStyle: oauth2.AuthStyleInHeader,
				},
			},
			ProfileURL: "https://api.login.yahoo.com/openid/v1/userinfo",
			emailPaths: []string{"email"},
		}
	}
	return providers
}

// AuthURL is where the browser is sent to grant access. Offline access and
// a forced consent screen make sure a refresh token is issued.
func (p *OAuthProvider) AuthURL(state string) string {
	return p.Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a token.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.Config.Exchange(p.context(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange: %w", p.Name, err)
	}
	return tok, nil
}

// Refresh returns a valid token for tok, refreshing it when it has expired.
// The boolean reports whether the token changed and should be persisted.
func (p *OAuthProvider) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, bool, error) {
	fresh, err := p.Config.TokenSource(p.context(ctx), tok).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, false, fmt.Errorf("%s token refresh: %w: %v", p.Name, ErrAuthFailed, err)
		}
		return nil, false, fmt.Errorf("%s token refresh: %w", p.Name, err)
	}
	return fresh, fresh.AccessToken != tok.AccessToken, nil
}

// FetchEmail asks the provider which address the token belongs to.
func (p *OAuthProvider) FetchEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	client := oauth2.NewClient(p.context(ctx), oauth2.StaticTokenSource(tok))
	body, err := getJSON(ctx, client, p.ProfileURL, nil)
	if err != nil {
		return "", fmt.Errorf("%s profile: %w", p.Name, err)
	}
	for _, path := range p.emailPaths {
		if v := gjson.GetBytes(body, path).String(); v != "" {
			return strings.ToLower(v), nil
		}
	}
	return "", fmt.Errorf("%s profile has no email address", p.Name)
}

func (p *OAuthProvider) context(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// getJSON performs a GET and returns the body of a 2xx response.
func getJSON(ctx context.Context, client *http.Client, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return do(client, req)
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return body, nil
}
