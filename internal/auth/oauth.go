package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/sakif/expense-auth/internal/model"
)

// googleUserInfoURL is the v2 userinfo endpoint. It answers with the
// fields below for the "email" and "profile" scopes.
const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// googleUser is the part of the userinfo response we read.
type googleUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleProvider wraps golang.org/x/oauth2 for the Google Authorization
// Code flow.
//
// FLOW:
//  1. /auth/google redirects the browser to AuthURL(state).
//  2. Google redirects back to the callback URL with a code.
//  3. Exchange trades the code for an access token (server to server,
//     using the client secret) and reads the userinfo endpoint.
//  4. The profile goes to the identity resolver.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a GoogleProvider. callbackURL must match the
// redirect URI registered in the Google console exactly.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"email", "profile"},
			Endpoint:     endpoints.Google,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// AuthURL returns the consent page URL. state is echoed back on the
// callback and must match the value stored in the state cookie.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the flow and returns the user's profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*model.OAuthProfile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Google userinfo returned status %d", resp.StatusCode)
	}

	var gu googleUser
	if err := json.NewDecoder(resp.Body).Decode(&gu); err != nil {
		return nil, fmt.Errorf("auth: decoding Google userinfo: %w", err)
	}
	if gu.ID == "" {
		return nil, fmt.Errorf("auth: Google returned a profile without an id")
	}

	return gu.profile(), nil
}

// profile maps the userinfo response onto the provider-neutral shape.
func (gu googleUser) profile() *model.OAuthProfile {
	p := &model.OAuthProfile{ID: gu.ID, DisplayName: gu.Name}
	if gu.Email != "" {
		p.Emails = []model.ProfileValue{{Value: gu.Email}}
	}
	if gu.Picture != "" {
		p.Photos = []model.ProfileValue{{Value: gu.Picture}}
	}
	return p
}
