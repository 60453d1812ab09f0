// Package config provides configuration management for teamsbots.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teamsbots/teamsbots/internal/tracing"
	"github.com/teamsbots/teamsbots/pkg/duration"
	"gopkg.in/yaml.v3"
)

// Duration is an alias for the shared duration.Duration type.
type Duration = duration.Duration

// Token provider names accepted in bot.token_provider.
const (
	TokenProviderOAuth2     = "oauth2"
	TokenProviderAzIdentity = "azidentity"
)

// Storage types accepted in storage.type.
const (
	StorageMemory = "memory"
	StorageBadger = "badger"
)

// Samples lists every sample bot the server can host.
var Samples = []string{
	"quickstart",
	"conversation",
	"cards",
	"attachments",
	"fileupload",
	"taskmodules",
}

// Config represents the complete teamsbots configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Bot       BotConfig               `yaml:"bot"`
	Samples   map[string]SampleConfig `yaml:"samples"`
	Storage   StorageConfig           `yaml:"storage"`
	Files     FilesConfig             `yaml:"files"`
	Proactive ProactiveConfig         `yaml:"proactive"`
	Graph     GraphConfig             `yaml:"graph"`
	Secrets   SecretsConfig           `yaml:"secrets"`
	Admin     AdminConfig             `yaml:"admin"`
	Metrics   MetricsConfig           `yaml:"metrics"`
	Tracing   tracing.Config          `yaml:"tracing"`
	Logging   LoggingConfig           `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address        string   `yaml:"address"`
	BaseURL        string   `yaml:"base_url"`
	ReadTimeout    Duration `yaml:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// BotConfig holds the bot identity shared by all samples.
type BotConfig struct {
	AppID             string          `yaml:"app_id"`
	AppPassword       string          `yaml:"app_password"`
	TenantID          string          `yaml:"tenant_id"`
	TokenProvider     string          `yaml:"token_provider"`
	TokenURL          string          `yaml:"token_url"`
	SkipAuth          bool            `yaml:"skip_auth"`
	OpenIDMetadataURL string          `yaml:"openid_metadata_url"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
}

// SampleConfig overrides settings for a single sample.
type SampleConfig struct {
	Disabled    bool   `yaml:"disabled"`
	AppID       string `yaml:"app_id"`
	AppPassword string `yaml:"app_password"`
	TenantID    string `yaml:"tenant_id"`
}

// Credentials identify a bot registration.
type Credentials struct {
	AppID       string
	AppPassword string
	TenantID    string
}

// RateLimitConfig bounds messages accepted per sender.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// StorageConfig selects the conversation reference and upload store.
type StorageConfig struct {
	Type       string   `yaml:"type"`
	Path       string   `yaml:"path"`
	UploadTTL  Duration `yaml:"upload_ttl"`
	GCInterval Duration `yaml:"gc_interval"`
}

// FilesConfig contains settings for the file samples.
type FilesConfig struct {
	Dir              string `yaml:"dir"`
	DefaultFile      string `yaml:"default_file"`
	MaxDownloadBytes int64  `yaml:"max_download_bytes"`
}

// ProactiveConfig contains proactive messaging settings.
type ProactiveConfig struct {
	Delay      Duration          `yaml:"delay"`
	Broadcasts []BroadcastConfig `yaml:"broadcasts"`
}

// BroadcastConfig is a cron scheduled message sent to every stored conversation.
type BroadcastConfig struct {
	Schedule string `yaml:"schedule"`
	Text     string `yaml:"text"`
}

// GraphConfig enables Microsoft Graph profile lookups.
type GraphConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SecretsConfig controls how secret references in app_password fields are
// resolved. Values of the form env:NAME, file:PATH and keyvault:NAME are
// looked up; keyvault requires KeyVaultURL.
type SecretsConfig struct {
	KeyVaultURL string   `yaml:"key_vault_url"`
	CacheTTL    Duration `yaml:"cache_ttl"`
	Dir         string   `yaml:"dir"`
}

// AdminConfig guards the admin API.
type AdminConfig struct {
	APIKeyHashes      []string `yaml:"api_key_hashes"`
	RequestsPerMinute int      `yaml:"requests_per_minute"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	tr := tracing.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Address:        "0.0.0.0:3978",
			BaseURL:        "http://localhost:3978",
			ReadTimeout:    Duration(30 * time.Second),
			WriteTimeout:   Duration(30 * time.Second),
			RequestTimeout: Duration(60 * time.Second),
		},
		Bot: BotConfig{
			TokenProvider: TokenProviderOAuth2,
			RateLimit: RateLimitConfig{
				PerSecond: 5,
				Burst:     10,
			},
		},
		Samples: map[string]SampleConfig{},
		Storage: StorageConfig{
			Type:       StorageMemory,
			Path:       "./data",
			UploadTTL:  Duration(24 * time.Hour),
			GCInterval: Duration(10 * time.Minute),
		},
		Files: FilesConfig{
			Dir:              "./files",
			DefaultFile:      "teams-logo.png",
			MaxDownloadBytes: 50 << 20,
		},
		Proactive: ProactiveConfig{
			Delay: Duration(10 * time.Second),
		},
		Secrets: SecretsConfig{
			CacheTTL: Duration(5 * time.Minute),
		},
		Admin: AdminConfig{
			RequestsPerMinute: 60,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: tr,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a file. An empty path yields the defaults
// with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		data = []byte(os.ExpandEnv(string(data)))

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. The unprefixed
// names match the variables Teams Toolkit writes into .env files.
func (c *Config) applyEnvOverrides() {
	if v := firstEnv("CLIENT_ID", "MicrosoftAppId"); v != "" {
		c.Bot.AppID = v
	}
	if v := firstEnv("CLIENT_SECRET", "MicrosoftAppPassword"); v != "" {
		c.Bot.AppPassword = v
	}
	if v := firstEnv("TENANT_ID", "MicrosoftAppTenantId"); v != "" {
		c.Bot.TenantID = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Address = "0.0.0.0:" + v
	}
	if v := firstEnv("TEAMSBOTS_BASE_URL", "BOT_ENDPOINT", "BaseUrl"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("TEAMSBOTS_HTTP_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("TEAMSBOTS_TOKEN_PROVIDER"); v != "" {
		c.Bot.TokenProvider = v
	}
	if v := os.Getenv("TEAMSBOTS_SKIP_AUTH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Bot.SkipAuth = b
		}
	}
	if v := os.Getenv("TEAMSBOTS_STORAGE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("TEAMSBOTS_DATA_DIR"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("TEAMSBOTS_FILES_DIR"); v != "" {
		c.Files.Dir = v
	}
	if v := os.Getenv("TEAMSBOTS_KEY_VAULT_URL"); v != "" {
		c.Secrets.KeyVaultURL = v
	}
	if v := os.Getenv("TEAMSBOTS_ADMIN_KEY_HASHES"); v != "" {
		c.Admin.APIKeyHashes = strings.Split(v, ",")
	}
	if v := os.Getenv("TEAMSBOTS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if !c.Bot.SkipAuth && c.Bot.AppID == "" {
		return fmt.Errorf("bot.app_id is required unless bot.skip_auth is set")
	}
	switch c.Bot.TokenProvider {
	case TokenProviderOAuth2, TokenProviderAzIdentity:
	default:
		return fmt.Errorf("bot.token_provider must be %q or %q", TokenProviderOAuth2, TokenProviderAzIdentity)
	}
	switch c.Storage.Type {
	case StorageMemory:
	case StorageBadger:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for badger storage")
		}
	default:
		return fmt.Errorf("storage.type must be %q or %q", StorageMemory, StorageBadger)
	}
	if c.Files.Dir == "" {
		return fmt.Errorf("files.dir is required")
	}
	for name := range c.Samples {
		if !IsSample(name) {
			return fmt.Errorf("samples.%s: unknown sample", name)
		}
	}
	for i, b := range c.Proactive.Broadcasts {
		if b.Schedule == "" || b.Text == "" {
			return fmt.Errorf("proactive.broadcasts[%d]: schedule and text are required", i)
		}
	}
	return nil
}

// IsSample reports whether name is a known sample.
func IsSample(name string) bool {
	for _, s := range Samples {
		if s == name {
			return true
		}
	}
	return false
}

// Enabled reports whether a sample should be mounted.
func (c *Config) Enabled(sample string) bool {
	return !c.Samples[sample].Disabled
}

// CredentialsFor returns the bot identity for a sample, falling back to the
// shared bot section for any field the sample leaves empty.
func (c *Config) CredentialsFor(sample string) Credentials {
	creds := Credentials{
		AppID:       c.Bot.AppID,
		AppPassword: c.Bot.AppPassword,
		TenantID:    c.Bot.TenantID,
	}
	if s, ok := c.Samples[sample]; ok {
		if s.AppID != "" {
			creds.AppID = s.AppID
		}
		if s.AppPassword != "" {
			creds.AppPassword = s.AppPassword
		}
		if s.TenantID != "" {
			creds.TenantID = s.TenantID
		}
	}
	return creds
}
