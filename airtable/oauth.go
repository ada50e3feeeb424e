package airtable

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"
)

const DefaultAuthURL = "https://airtable.com"

// ExpirySkew is how close to expiry a token is treated as already expired
const ExpirySkew = 5 * time.Minute

// Scopes requested at login
var Scopes = []string{
	"data.records:read",
	"data.records:write",
	"schema.bases:read",
	"webhook:manage",
}

// OAuthConfig identifies the integration registered with Airtable
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// AuthURL is the host serving /oauth2/v1/authorize and /oauth2/v1/token
	AuthURL string
}

// OAuth runs the authorization code flow with PKCE
type OAuth struct {
	config *oauth2.Config
	client *http.Client
}

// NewOAuth builds the flow for cfg
func NewOAuth(cfg OAuthConfig) *OAuth {
	authURL := strings.TrimRight(cfg.AuthURL, "/")
	if authURL == "" {
		authURL = DefaultAuthURL
	}

	return &OAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL + "/oauth2/v1/authorize",
				TokenURL:  authURL + "/oauth2/v1/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		client: cleanhttp.DefaultClient(),
	}
}

// GenerateVerifier returns a fresh PKCE code verifier
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// AuthCodeURL returns the consent page URL for state and verifier
func (o *OAuth) AuthCodeURL(state, verifier string) string {
	return o.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code for a token
func (o *OAuth) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	token, err := o.config.Exchange(o.context(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// Refresh obtains a new access token. The returned token keeps refreshToken
// when Airtable does not rotate it.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("failed to refresh access token: no refresh token")
	}

	src := o.config.TokenSource(o.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}

	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

func (o *OAuth) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.client)
}

// TokenExpired reports whether a token expiring at expiresAt needs a refresh.
// A zero expiry always does.
func TokenExpired(expiresAt, now time.Time) bool {
	if expiresAt.IsZero() {
		return true
	}
	return expiresAt.Sub(now) < ExpirySkew
}
