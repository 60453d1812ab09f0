package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_TokenURL(t *testing.T) {
	assert.Equal(t, "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token", Credentials{}.TokenURL())
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/token", Credentials{TenantID: "contoso"}.TokenURL())
}

func TestClientCredentialsProvider(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "app-id", r.Form.Get("client_id"))
		assert.Equal(t, "secret", r.Form.Get("client_secret"))
		assert.Equal(t, BotFrameworkScope, r.Form.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"bot-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	p, err := NewClientCredentialsProvider(
		Credentials{AppID: "app-id", AppPassword: "secret"},
		WithTokenURL(srv.URL),
		WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		tok, err := p.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "bot-token", tok)
	}
	assert.Equal(t, int32(1), calls.Load(), "token should be cached")
}

func TestClientCredentialsProvider_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	p, err := NewClientCredentialsProvider(Credentials{AppID: "a", AppPassword: "b"}, WithTokenURL(srv.URL))
	require.NoError(t, err)

	_, err = p.Token(context.Background())
	assert.Error(t, err)
}

func TestNewClientCredentialsProvider_MissingCredentials(t *testing.T) {
	_, err := NewClientCredentialsProvider(Credentials{AppID: "only-id"})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

type fakeCredential struct {
	scopes []string
	err    error
}

func (f *fakeCredential) GetToken(_ context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	f.scopes = opts.Scopes
	if f.err != nil {
		return azcore.AccessToken{}, f.err
	}
	return azcore.AccessToken{Token: "azure-token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestAzureTokenProvider(t *testing.T) {
	cred := &fakeCredential{}
	p := NewAzureTokenProviderFromCredential(cred)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "azure-token", tok)
	assert.Equal(t, []string{BotFrameworkScope}, cred.scopes)

	cred.err = errors.New("no identity")
	_, err = p.Token(context.Background())
	assert.Error(t, err)
}

func TestNewAzureTokenProvider_ClientSecret(t *testing.T) {
	p, err := NewAzureTokenProvider(Credentials{AppID: "00000000-0000-0000-0000-000000000001", AppPassword: "secret", TenantID: "contoso.onmicrosoft.com"})
	require.NoError(t, err)
	assert.NotNil(t, p)
}
