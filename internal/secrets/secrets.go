// Package secrets resolves secret references in configuration values.
//
// A value of the form "<provider>:<key>" is looked up in the named provider;
// any other value is returned unchanged. Providers are "env", "file" and,
// when a vault URL is configured, "keyvault".
package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Provider is a source of secrets.
type Provider interface {
	// Name returns the reference prefix the provider answers to.
	Name() string
	// GetSecret retrieves a secret by key.
	GetSecret(ctx context.Context, key string) (string, error)
}

// Resolver maps secret references to their values.
type Resolver struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewResolver creates a resolver with the given providers registered.
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Register adds a provider. It fails if the name is taken.
func (r *Resolver) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}
	r.providers[p.Name()] = p
	return nil
}

// IsReference reports whether value names a registered provider.
func (r *Resolver) IsReference(value string) bool {
	_, _, ok := r.split(value)
	return ok
}

// Resolve returns the secret value refers to, or value itself when it is not
// a reference.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	p, key, ok := r.split(value)
	if !ok {
		return value, nil
	}
	if key == "" {
		return "", fmt.Errorf("empty %s secret reference", p.Name())
	}
	secret, err := p.GetSecret(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s from %s: %w", key, p.Name(), err)
	}
	return secret, nil
}

func (r *Resolver) split(value string) (Provider, string, bool) {
	name, key, found := strings.Cut(value, ":")
	if !found {
		return nil, "", false
	}
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	return p, key, ok
}
