package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider. prefix is prepended to
// every key.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// Name returns "env".
func (p *EnvProvider) Name() string {
	return "env"
}

// GetSecret returns the value of the prefixed variable.
func (p *EnvProvider) GetSecret(_ context.Context, key string) (string, error) {
	envKey := p.prefix + key
	value, ok := os.LookupEnv(envKey)
	if !ok || value == "" {
		return "", fmt.Errorf("environment variable %s not set", envKey)
	}
	return value, nil
}

// FileProvider reads secrets from files, such as mounted Kubernetes secrets.
type FileProvider struct {
	basePath string
}

// NewFileProvider creates a file provider. Relative keys are resolved
// against basePath.
func NewFileProvider(basePath string) *FileProvider {
	return &FileProvider{basePath: basePath}
}

// Name returns "file".
func (p *FileProvider) Name() string {
	return "file"
}

// GetSecret returns the trimmed contents of the file.
func (p *FileProvider) GetSecret(_ context.Context, key string) (string, error) {
	path := key
	if !filepath.IsAbs(path) && p.basePath != "" {
		path = filepath.Join(p.basePath, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
