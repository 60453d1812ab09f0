package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// OpenIDMetadataURL is the Bot Framework OpenID configuration document.
	OpenIDMetadataURL = "https://login.botframework.com/v1/.well-known/openidconfiguration"
	// BotFrameworkIssuer is the issuer of channel tokens.
	BotFrameworkIssuer = "https://api.botframework.com"
)

// Authentication errors.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
	ErrUnknownKey   = errors.New("unknown signing key")
)

// Claims are the claims of a channel token.
type Claims struct {
	ServiceURL string `json:"serviceurl,omitempty"`
	jwt.RegisteredClaims
}

// Validator authenticates inbound channel requests against the signing keys
// published in the Bot Framework OpenID metadata. The key set is loaded on
// first use and refreshed in the background until Close; a failed refresh
// keeps the previously loaded keys.
type Validator struct {
	appID           string
	metadataURL     string
	issuers         []string
	client          *http.Client
	leeway          time.Duration
	refreshInterval time.Duration
	unknownKeyEvery time.Duration
	now             func() time.Time
	logger          zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	keys keyfunc.Keyfunc
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithMetadataURL overrides the OpenID metadata location.
func WithMetadataURL(url string) ValidatorOption {
	return func(v *Validator) {
		if url != "" {
			v.metadataURL = url
		}
	}
}

// WithIssuers replaces the accepted token issuers.
func WithIssuers(issuers ...string) ValidatorOption {
	return func(v *Validator) { v.issuers = issuers }
}

// WithValidatorClient sets the HTTP client used to fetch keys.
func WithValidatorClient(c *http.Client) ValidatorOption {
	return func(v *Validator) { v.client = c }
}

// WithKeyRefresh sets how often the key set is reloaded and how often a token
// with an unknown kid may force a reload.
func WithKeyRefresh(interval, unknownKeyEvery time.Duration) ValidatorOption {
	return func(v *Validator) {
		if interval > 0 {
			v.refreshInterval = interval
		}
		if unknownKeyEvery > 0 {
			v.unknownKeyEvery = unknownKeyEvery
		}
	}
}

// WithValidatorLogger sets the logger used for background refresh failures.
func WithValidatorLogger(l zerolog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = l.With().Str("component", "auth").Logger() }
}

// WithClock sets the time source used for expiry checks.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a Validator for tokens addressed to appID.
func NewValidator(appID string, opts ...ValidatorOption) *Validator {
	v := &Validator{
		appID:           appID,
		metadataURL:     OpenIDMetadataURL,
		issuers:         []string{BotFrameworkIssuer},
		client:          &http.Client{Timeout: 10 * time.Second},
		leeway:          5 * time.Minute,
		refreshInterval: 24 * time.Hour,
		unknownKeyEvery: time.Minute,
		now:             time.Now,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.ctx, v.cancel = context.WithCancel(context.Background())
	return v
}

// Close stops the background key refresh.
func (v *Validator) Close() {
	v.cancel()
}

// Validate checks the Authorization header of an inbound request and returns
// the token claims.
func (v *Validator) Validate(ctx context.Context, authHeader string) (*Claims, error) {
	raw, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}

	kf, err := v.keySet(ctx)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(raw), claims, keyFunc(kf),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.appID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, ErrUnknownKey) {
			return nil, ErrUnknownKey
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !slices.Contains(v.issuers, claims.Issuer) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}

	return claims, nil
}

func keyFunc(kf keyfunc.Keyfunc) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token has no kid", ErrInvalidToken)
		}
		key, err := kf.Keyfunc(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnknownKey, kid, err)
		}
		return key, nil
	}
}

// keySet returns the key set, discovering it from the OpenID metadata on
// first use. A failed discovery is retried on the next request.
func (v *Validator) keySet(ctx context.Context) (keyfunc.Keyfunc, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys != nil {
		return v.keys, nil
	}

	jwksURI, err := v.discover(ctx)
	if err != nil {
		return nil, err
	}

	jwksURL, err := url.Parse(jwksURI)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signing keys: %w", err)
	}
	store, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:          v.client,
		Ctx:             v.ctx,
		RefreshInterval: v.refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			v.logger.Warn().Err(err).Str("jwks_uri", jwksURI).Msg("Failed to refresh signing keys, keeping cached keys")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signing keys: %w", err)
	}
	client, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{jwksURI: store},
		RateLimitWaitMax:  time.Millisecond,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(v.unknownKeyEvery), 1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key set client: %w", err)
	}
	kf, err := keyfunc.New(keyfunc.Options{
		Ctx:          v.ctx,
		Storage:      client,
		UseWhitelist: []jwkset.USE{jwkset.UseSig},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key func: %w", err)
	}

	v.keys = kf
	return kf, nil
}

type openIDMetadata struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

func (v *Validator) discover(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.metadataURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch OpenID metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch OpenID metadata: unexpected status %d", resp.StatusCode)
	}
	var meta openIDMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", fmt.Errorf("failed to decode OpenID metadata: %w", err)
	}
	if meta.JWKSURI == "" {
		return "", fmt.Errorf("OpenID metadata has no jwks_uri")
	}
	return meta.JWKSURI, nil
}
