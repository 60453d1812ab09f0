package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/teamsbots/teamsbots/internal/api"
	"github.com/teamsbots/teamsbots/internal/auth"
	"github.com/teamsbots/teamsbots/internal/bot"
	"github.com/teamsbots/teamsbots/internal/config"
	"github.com/teamsbots/teamsbots/internal/connector"
	"github.com/teamsbots/teamsbots/internal/files"
	"github.com/teamsbots/teamsbots/internal/graph"
	"github.com/teamsbots/teamsbots/internal/metrics"
	"github.com/teamsbots/teamsbots/internal/proactive"
	"github.com/teamsbots/teamsbots/internal/ratelimit"
	"github.com/teamsbots/teamsbots/internal/samples/attachments"
	"github.com/teamsbots/teamsbots/internal/samples/cards"
	"github.com/teamsbots/teamsbots/internal/samples/conversation"
	"github.com/teamsbots/teamsbots/internal/samples/fileupload"
	"github.com/teamsbots/teamsbots/internal/samples/quickstart"
	"github.com/teamsbots/teamsbots/internal/samples/taskmodules"
	"github.com/teamsbots/teamsbots/internal/secrets"
	"github.com/teamsbots/teamsbots/internal/storage"
)

// server holds everything main starts and stops.
type server struct {
	router      http.Handler
	samples     []string
	store       storage.Store
	notifier    *proactive.Notifier
	limiters    []*ratelimit.Limiter
	validators  []*auth.Validator
	attachments *attachments.Sample
	logger      zerolog.Logger
}

// newServer wires the enabled samples, the admin API and the proactive
// notifier from cfg.
func newServer(cfg *config.Config, logger zerolog.Logger, reg *prometheus.Registry) (*server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := resolveSecrets(ctx, cfg, logger); err != nil {
		return nil, err
	}

	m := metrics.New(reg)

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	s := &server{store: store, logger: logger}

	dir, err := files.OpenDir(cfg.Files.Dir, cfg.Files.DefaultFile)
	if err != nil {
		s.Close()
		return nil, err
	}
	transfer := files.NewClient(
		files.WithMaxDownload(cfg.Files.MaxDownloadBytes),
		files.WithMetrics(m),
	)

	senderLimit := ratelimit.New(ratelimit.Config{
		PerSecond: cfg.Bot.RateLimit.PerSecond,
		Burst:     cfg.Bot.RateLimit.Burst,
		IdleTTL:   10 * time.Minute,
	})
	adminLimit := ratelimit.New(ratelimit.Config{
		PerSecond: float64(cfg.Admin.RequestsPerMinute) / 60,
		Burst:     cfg.Admin.RequestsPerMinute,
		IdleTTL:   10 * time.Minute,
	})
	s.limiters = append(s.limiters, senderLimit, adminLimit)

	connectors := map[string]*connector.Client{}
	bots := map[string]http.Handler{}
	apps := map[string]*bot.App{}
	for _, name := range config.Samples {
		if !cfg.Enabled(name) {
			continue
		}
		creds := auth.Credentials(cfg.CredentialsFor(name))

		conn, ok := connectors[creds.AppID]
		if !ok {
			tokens, err := tokenProvider(cfg.Bot, creds)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("sample %s: %w", name, err)
			}
			conn = connector.New(tokens, connector.WithMetrics(m), connector.WithLogger(logger))
			connectors[creds.AppID] = conn
		}

		opts := []bot.Option{
			bot.WithReferenceStore(store),
			bot.WithRateLimiter(senderLimit),
			bot.WithMetrics(m),
			bot.WithLogger(logger),
		}
		if !cfg.Bot.SkipAuth {
			v := auth.NewValidator(creds.AppID,
				auth.WithMetadataURL(cfg.Bot.OpenIDMetadataURL),
				auth.WithValidatorLogger(logger),
			)
			s.validators = append(s.validators, v)
			opts = append(opts, bot.WithAuthenticator(v))
		}
		app := bot.New(name, conn, opts...)
		apps[name] = app
		bots[name] = app
		s.samples = append(s.samples, name)
	}
	if len(apps) == 0 {
		s.Close()
		return nil, fmt.Errorf("no samples enabled")
	}

	// Each stored reference is sent back through the sample that stored it.
	// Unscoped keys go out through quickstart, or the first enabled sample.
	sender := apps[quickstart.Name]
	if sender == nil {
		sender = apps[s.samples[0]]
	}
	popts := []proactive.Option{proactive.WithMetrics(m), proactive.WithLogger(logger)}
	for name, app := range apps {
		popts = append(popts, proactive.WithSender(name, app))
	}
	s.notifier = proactive.New(store, sender, popts...)
	for _, b := range cfg.Proactive.Broadcasts {
		if _, err := s.notifier.Schedule(b.Schedule, b.Text); err != nil {
			s.Close()
			return nil, fmt.Errorf("invalid broadcast schedule %q: %w", b.Schedule, err)
		}
	}

	var pages []func(chi.Router)
	for name, app := range apps {
		switch name {
		case quickstart.Name:
			quickstart.Register(app, quickstart.Options{Proactive: s.notifier, Delay: cfg.Proactive.Delay.Std()})
		case conversation.Name:
			opts := conversation.Options{}
			if cfg.Graph.Enabled {
				profiles, err := profileLookup(cfg, logger)
				if err != nil {
					s.Close()
					return nil, err
				}
				opts.Profiles = profiles
			}
			conversation.Register(app, opts)
		case cards.Name:
			cards.Register(app)
		case attachments.Name:
			s.attachments = attachments.Register(app, attachments.Options{Uploads: store, Transfer: transfer})
		case fileupload.Name:
			fileupload.Register(app, fileupload.Options{Dir: dir, Transfer: transfer, DefaultFile: cfg.Files.DefaultFile})
		case taskmodules.Name:
			taskmodules.Register(app, taskmodules.Options{BaseURL: cfg.Server.BaseURL})
			pages = append(pages, taskmodules.Routes)
		}
	}

	rc := api.RouterConfig{
		Bots:           bots,
		Pages:          pages,
		APIKeys:        auth.NewAPIKeys(cfg.Admin.APIKeyHashes),
		RateLimiter:    adminLimit,
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout.Std(),
	}
	if cfg.Metrics.Enabled {
		rc.Gatherer = reg
		rc.MetricsPath = cfg.Metrics.Path
	}
	handler := api.NewHandler(store, s.notifier, s.samples, logger)
	s.router = api.NewRouter(handler, logger, rc)

	if refs, err := store.ListReferences(); err == nil {
		m.SetStoredReferences(len(refs))
	}
	return s, nil
}

// Close stops background work and closes the store.
func (s *server) Close() {
	if s.notifier != nil {
		s.notifier.Close()
	}
	if s.attachments != nil {
		s.attachments.Wait()
	}
	for _, l := range s.limiters {
		l.Stop()
	}
	for _, v := range s.validators {
		v.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to close store")
		}
	}
}

// resolveSecrets replaces secret references in the app password fields with
// their values.
func resolveSecrets(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	resolver := secrets.NewResolver(
		secrets.NewEnvProvider(""),
		secrets.NewFileProvider(cfg.Secrets.Dir),
	)
	if cfg.Secrets.KeyVaultURL != "" {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return fmt.Errorf("failed to create Key Vault credential: %w", err)
		}
		kv, err := secrets.NewKeyVaultProvider(secrets.KeyVaultConfig{
			VaultURL: cfg.Secrets.KeyVaultURL,
			CacheTTL: cfg.Secrets.CacheTTL.Std(),
		}, cred)
		if err != nil {
			return err
		}
		if err := resolver.Register(kv); err != nil {
			return err
		}
	}

	resolve := func(field string, value *string) error {
		if !resolver.IsReference(*value) {
			return nil
		}
		v, err := resolver.Resolve(ctx, *value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*value = v
		logger.Debug().Str("field", field).Msg("Resolved secret reference")
		return nil
	}

	if err := resolve("bot.app_password", &cfg.Bot.AppPassword); err != nil {
		return err
	}
	for name, sc := range cfg.Samples {
		if err := resolve("samples."+name+".app_password", &sc.AppPassword); err != nil {
			return err
		}
		cfg.Samples[name] = sc
	}
	return nil
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case config.StorageBadger:
		store, err := storage.NewBadgerStore(cfg.Path, storage.BadgerOptions{
			UploadTTL:  cfg.UploadTTL.Std(),
			GCInterval: cfg.GCInterval.Std(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return store, nil
	default:
		return storage.NewMemoryStore(cfg.UploadTTL.Std()), nil
	}
}

// tokenProvider returns the outbound token source for creds. Without an app
// id the connector calls are unauthenticated, which only the Bot Framework
// Emulator accepts.
func tokenProvider(cfg config.BotConfig, creds auth.Credentials) (auth.TokenProvider, error) {
	if creds.AppID == "" {
		return auth.StaticToken(""), nil
	}
	switch cfg.TokenProvider {
	case config.TokenProviderAzIdentity:
		return auth.NewAzureTokenProvider(creds)
	default:
		var opts []auth.ClientCredentialsOption
		if cfg.TokenURL != "" {
			opts = append(opts, auth.WithTokenURL(cfg.TokenURL))
		}
		return auth.NewClientCredentialsProvider(creds, opts...)
	}
}

func profileLookup(cfg *config.Config, logger zerolog.Logger) (*graph.ProfileLookup, error) {
	cred, err := auth.NewAzureCredential(auth.Credentials(cfg.CredentialsFor(conversation.Name)))
	if err != nil {
		return nil, err
	}
	return graph.NewProfileLookup(cred, logger)
}
