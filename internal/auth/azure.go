package auth

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// NewAzureCredential returns an Azure credential for the bot identity: a
// client secret credential when a password is set, otherwise a managed
// identity credential for the app id (user assigned MSI bots).
func NewAzureCredential(creds Credentials) (azcore.TokenCredential, error) {
	if creds.AppPassword != "" {
		cred, err := azidentity.NewClientSecretCredential(creds.Tenant(), creds.AppID, creds.AppPassword, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", err)
		}
		return cred, nil
	}

	opts := &azidentity.ManagedIdentityCredentialOptions{}
	if creds.AppID != "" {
		opts.ID = azidentity.ClientID(creds.AppID)
	}
	cred, err := azidentity.NewManagedIdentityCredential(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure managed identity credential: %w", err)
	}
	return cred, nil
}

// AzureTokenProvider gets bot tokens from an azidentity credential, which
// caches them internally.
type AzureTokenProvider struct {
	cred   azcore.TokenCredential
	scopes []string
}

// NewAzureTokenProvider creates a provider for creds.
func NewAzureTokenProvider(creds Credentials) (*AzureTokenProvider, error) {
	cred, err := NewAzureCredential(creds)
	if err != nil {
		return nil, err
	}
	return NewAzureTokenProviderFromCredential(cred), nil
}

// NewAzureTokenProviderFromCredential wraps an existing credential.
func NewAzureTokenProviderFromCredential(cred azcore.TokenCredential, scopes ...string) *AzureTokenProvider {
	if len(scopes) == 0 {
		scopes = []string{BotFrameworkScope}
	}
	return &AzureTokenProvider{cred: cred, scopes: scopes}
}

// Token implements TokenProvider.
func (p *AzureTokenProvider) Token(ctx context.Context) (string, error) {
	tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: p.scopes})
	if err != nil {
		return "", fmt.Errorf("failed to acquire bot token: %w", err)
	}
	return tok.Token, nil
}
