package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// secretGetter is the part of azsecrets.Client the provider needs.
type secretGetter interface {
	GetSecret(ctx context.Context, name, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// KeyVaultConfig configures the Azure Key Vault provider.
type KeyVaultConfig struct {
	// VaultURL is the vault endpoint, e.g. https://myvault.vault.azure.net/.
	VaultURL string
	// CacheTTL is how long fetched values are reused. Zero disables caching.
	CacheTTL time.Duration
}

// KeyVaultProvider reads secrets from Azure Key Vault.
type KeyVaultProvider struct {
	client   secretGetter
	cacheTTL time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// NewKeyVaultProvider creates a provider authenticating with cred.
func NewKeyVaultProvider(cfg KeyVaultConfig, cred azcore.TokenCredential) (*KeyVaultProvider, error) {
	if cfg.VaultURL == "" {
		return nil, fmt.Errorf("vault url is required")
	}
	client, err := azsecrets.NewClient(cfg.VaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
	}
	return newKeyVaultProvider(client, cfg.CacheTTL), nil
}

func newKeyVaultProvider(client secretGetter, ttl time.Duration) *KeyVaultProvider {
	return &KeyVaultProvider{
		client:   client,
		cacheTTL: ttl,
		now:      time.Now,
		cache:    make(map[string]cachedSecret),
	}
}

// Name returns "keyvault".
func (p *KeyVaultProvider) Name() string {
	return "keyvault"
}

// GetSecret fetches a secret. key is "name", "name/version" or either form
// followed by "#field" to pick a field out of a JSON secret.
func (p *KeyVaultProvider) GetSecret(ctx context.Context, key string) (string, error) {
	name, version, field := parseSecretKey(key)
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}

	cacheKey := name
	if version != "" {
		cacheKey = name + "/" + version
	}

	value, ok := p.cached(cacheKey)
	if !ok {
		resp, err := p.client.GetSecret(ctx, name, version, nil)
		if err != nil {
			return "", fmt.Errorf("failed to get secret %s: %w", name, err)
		}
		if resp.Value != nil {
			value = *resp.Value
		}
		p.store(cacheKey, value)
	}

	if field != "" {
		return extractField(value, field)
	}
	return value, nil
}

func (p *KeyVaultProvider) cached(key string) (string, bool) {
	if p.cacheTTL <= 0 {
		return "", false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.cache[key]
	if !ok || !p.now().Before(c.expiresAt) {
		return "", false
	}
	return c.value, true
}

func (p *KeyVaultProvider) store(key, value string) {
	if p.cacheTTL <= 0 {
		return
	}
	p.mu.Lock()
	p.cache[key] = cachedSecret{value: value, expiresAt: p.now().Add(p.cacheTTL)}
	p.mu.Unlock()
}

// parseSecretKey splits "name/version#field".
func parseSecretKey(key string) (name, version, field string) {
	if idx := strings.LastIndex(key, "#"); idx != -1 {
		field = key[idx+1:]
		key = key[:idx]
	}
	if idx := strings.LastIndex(key, "/"); idx != -1 {
		version = key[idx+1:]
		key = key[:idx]
	}
	return key, version, field
}

// extractField reads one field from a JSON object secret.
func extractField(value, field string) (string, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(value), &data); err != nil {
		return "", fmt.Errorf("failed to parse secret as JSON: %w", err)
	}
	v, ok := data[field]
	if !ok {
		return "", fmt.Errorf("field %s not found in secret", field)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", v), nil
}
