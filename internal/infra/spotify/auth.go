package spotify

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/jukeula/internal/domain/player"
)

// Scopes are the permissions the jukebox asks for.
var Scopes = []string{
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopePlaylistReadPrivate,
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Market       string
}

// Authenticator runs the OAuth flow and builds sessions from tokens.
type Authenticator struct {
	auth   *spotifyauth.Authenticator
	market string
}

// NewAuthenticator creates an authenticator for the given application.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	opts := []spotifyauth.AuthenticatorOption{
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(Scopes...),
	}
	if cfg.RedirectURL != "" {
		opts = append(opts, spotifyauth.WithRedirectURL(cfg.RedirectURL))
	}

	market := cfg.Market
	if market == "" {
		market = "JP"
	}

	return &Authenticator{
		auth:   spotifyauth.New(opts...),
		market: market,
	}, nil
}

// AuthURL returns the consent page URL carrying state.
func (a *Authenticator) AuthURL(state string) string {
	return a.auth.AuthURL(state)
}

// Exchange completes the flow from the callback request.
func (a *Authenticator) Exchange(ctx context.Context, state string, r *http.Request) (*oauth2.Token, error) {
	token, err := a.auth.Token(ctx, state, r)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to exchange code"), player.ErrNotAuthenticated)
	}
	return token, nil
}

// Refresh exchanges the refresh token for a fresh access token.
func (a *Authenticator) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	if token == nil || token.RefreshToken == "" {
		return nil, errors.Mark(errors.New("no refresh token"), player.ErrNotAuthenticated)
	}
	fresh, err := a.auth.RefreshToken(ctx, token)
	if err != nil {
		return nil, classify(errors.Wrap(err, "failed to refresh token"), nil)
	}
	// Spotify may not rotate the refresh token
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = token.RefreshToken
	}
	return fresh, nil
}

// Connect creates a client for token. The client outlives ctx.
func (a *Authenticator) Connect(ctx context.Context, token *oauth2.Token) (*Client, error) {
	if token == nil {
		return nil, errors.Mark(errors.New("no token"), player.ErrNotAuthenticated)
	}
	httpClient := a.auth.Client(context.WithoutCancel(ctx), token)
	return NewClient(httpClient, a.market), nil
}

// NewClient creates a client on top of an authorized HTTP client.
func NewClient(httpClient *http.Client, market string, opts ...spotify.ClientOption) *Client {
	return &Client{
		client:     spotify.New(httpClient, opts...),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}
