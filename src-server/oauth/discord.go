package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/oauth2"
)

var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

// RemoteUser is the slice of the Discord profile the app cares about.
// RemoteUser.ID is Discord's stable id for the account, used to find or
// create the matching local user.
type RemoteUser struct {
	ID       string
	Username string
}

type Client struct {
	cfg *oauth2.Config
}

func NewClient(clientID string, clientSecret string, redirectURL string) *Client {
	return &Client{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"identify"},
			Endpoint:     discordEndpoint,
		},
	}
}

func (c *Client) AuthCodeURL(state string) string {
	return c.cfg.AuthCodeURL(state)
}

func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := c.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth: can't exchange code: %w", err)
	}
	return token, nil
}

// Refresh always performs a refresh-token grant, even if the stored
// access token hasn't expired yet.
func (c *Client) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	staleToken := *token
	staleToken.Expiry = time.Now().Add(-time.Minute)
	newToken, err := c.cfg.TokenSource(ctx, &staleToken).Token()
	if err != nil {
		return nil, fmt.Errorf("oauth: can't refresh token: %w", err)
	}
	return newToken, nil
}

// FetchUser asks Discord who the token belongs to.
func (c *Client) FetchUser(ctx context.Context, token *oauth2.Token) (*RemoteUser, error) {
	dgSession, err := discordgo.New("Bearer " + token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("oauth: can't create bearer session: %w", err)
	}
	dgUser, err := dgSession.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("oauth: can't fetch user profile: %w", err)
	}
	return &RemoteUser{
		ID:       dgUser.ID,
		Username: dgUser.Username,
	}, nil
}
