// Package auth acquires outbound Bot Framework tokens and authenticates
// inbound channel requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// BotFrameworkScope is the scope of tokens sent to the Bot Connector.
	BotFrameworkScope = "https://api.botframework.com/.default"
	// DefaultTenant is used to acquire tokens for multi tenant bots.
	DefaultTenant = "botframework.com"
)

// ErrNoCredentials is returned when a provider is built without an app id
// or secret.
var ErrNoCredentials = errors.New("bot app id and password are required")

// TokenProvider returns bearer tokens for outbound connector calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Credentials identify a bot registration.
type Credentials struct {
	AppID       string
	AppPassword string
	TenantID    string
}

// Tenant returns the tenant tokens are requested from.
func (c Credentials) Tenant() string {
	if c.TenantID == "" {
		return DefaultTenant
	}
	return c.TenantID
}

// TokenURL returns the Entra ID v2 token endpoint for the tenant.
func (c Credentials) TokenURL() string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.Tenant())
}

// StaticToken always returns the same token. An empty token makes the
// connector send unauthenticated requests, which the Bot Framework Emulator
// accepts.
type StaticToken string

// Token implements TokenProvider.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// ClientCredentialsProvider runs the OAuth2 client credentials flow and
// caches the token until shortly before it expires.
type ClientCredentialsProvider struct {
	source oauth2.TokenSource
}

type clientCredentialsOptions struct {
	tokenURL string
	client   *http.Client
}

// ClientCredentialsOption configures a ClientCredentialsProvider.
type ClientCredentialsOption func(*clientCredentialsOptions)

// WithTokenURL overrides the token endpoint.
func WithTokenURL(url string) ClientCredentialsOption {
	return func(o *clientCredentialsOptions) { o.tokenURL = url }
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(client *http.Client) ClientCredentialsOption {
	return func(o *clientCredentialsOptions) { o.client = client }
}

// NewClientCredentialsProvider creates a provider for creds.
func NewClientCredentialsProvider(creds Credentials, opts ...ClientCredentialsOption) (*ClientCredentialsProvider, error) {
	if creds.AppID == "" || creds.AppPassword == "" {
		return nil, ErrNoCredentials
	}

	o := clientCredentialsOptions{tokenURL: creds.TokenURL()}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &clientcredentials.Config{
		ClientID:     creds.AppID,
		ClientSecret: creds.AppPassword,
		TokenURL:     o.tokenURL,
		Scopes:       []string{BotFrameworkScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx := context.Background()
	if o.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)
	}

	return &ClientCredentialsProvider{source: cfg.TokenSource(ctx)}, nil
}

// Token implements TokenProvider.
func (p *ClientCredentialsProvider) Token(_ context.Context) (string, error) {
	tok, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to acquire bot token: %w", err)
	}
	return tok.AccessToken, nil
}
