package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ManualRedirectURI is the redirect URI used when no local listener exists.
// Nothing listens on port 1, so the browser shows an error page whose address
// bar still carries the authorization code.
const ManualRedirectURI = "http://localhost:1"

// Credentials identify the OAuth client registered in the Google Cloud console.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Validate checks that both halves of the credentials are present.
func (c Credentials) Validate() error {
	if c.ClientID == "" {
		return errors.New("client ID is required")
	}
	if c.ClientSecret == "" {
		return errors.New("client secret is required")
	}
	return nil
}

// Option customizes an Exchanger.
type Option func(*Exchanger)

// WithEndpoint overrides the Google OAuth endpoint. Used by tests.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(e *Exchanger) {
		e.conf.Endpoint = endpoint
	}
}

// WithHTTPClient sets the HTTP client used for the token exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Exchanger) {
		e.httpClient = client
	}
}

// Exchanger builds authorization URLs and redeems authorization codes for one
// redirect URI.
type Exchanger struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

// NewExchanger returns an Exchanger for the given credentials and redirect URI.
func NewExchanger(creds Credentials, redirectURI string, opts ...Option) *Exchanger {
	e := &Exchanger{
		conf: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURI,
			Scopes:       MailScopes,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RedirectURI returns the redirect URI this Exchanger is bound to.
func (e *Exchanger) RedirectURI() string {
	return e.conf.RedirectURL
}

// AuthorizationURL returns the consent page URL. access_type=offline makes
// Google return a refresh token on the first consent.
func (e *Exchanger) AuthorizationURL() string {
	return e.conf.AuthCodeURL("", oauth2.AccessTypeOffline)
}

// ExchangeCode redeems an authorization code for tokens.
// The returned token may carry an empty RefreshToken when the user already
// granted consent to this client earlier.
func (e *Exchanger) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}

	t, err := e.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return t, nil
}
