// Package app wires the integrations server together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-integrations-server/connections"
	"github.com/jrsteele09/go-integrations-server/docstore"
	"github.com/jrsteele09/go-integrations-server/docstore/memstore"
	"github.com/jrsteele09/go-integrations-server/docstore/sqlitestore"
	"github.com/jrsteele09/go-integrations-server/envelope"
	"github.com/jrsteele09/go-integrations-server/identity"
	"github.com/jrsteele09/go-integrations-server/integrations"
	"github.com/jrsteele09/go-integrations-server/internal/config"
	"github.com/jrsteele09/go-integrations-server/oauthstate"
	"github.com/jrsteele09/go-integrations-server/organizations"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/jrsteele09/go-integrations-server/server"
	"github.com/jrsteele09/go-integrations-server/sweep"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const shutdownGracePeriod = 10 * time.Second

// Application holds the dependency graph.
type Application struct {
	cfg config.Config

	docs          docstore.Store
	redis         *redis.Client
	states        oauthstate.Repo
	registry      *providers.Registry
	orgCreds      *providers.OrganizationSource
	connections   *connections.Store
	organizations organizations.Repo
	service       *integrations.Service
	sweeper       *sweep.Sweeper
	metrics       *prometheus.Registry

	server *http.Server
}

// New builds everything except the HTTP server.
func New(ctx context.Context, cfg config.Config) (*Application, error) {
	if len(cfg.GetEncryptionKey()) < envelope.MinSecretLength {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY must be at least %d characters", envelope.MinSecretLength)
	}
	app := &Application{cfg: cfg, metrics: prometheus.NewRegistry()}
	app.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := app.initStore(); err != nil {
		return nil, err
	}
	if err := app.initStates(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *Application) initStore() error {
	switch driver := app.cfg.GetStoreDriver(); driver {
	case "sqlite":
		store, err := sqlitestore.New(app.cfg.GetDatabaseDSN())
		if err != nil {
			return fmt.Errorf("failed to initialize document store: %w", err)
		}
		app.docs = store
		log.Info().Str("driver", driver).Msg("Document store ready, migrations applied")
	case "memory":
		app.docs = memstore.New()
		log.Warn().Msg("Using in-memory document store; data is lost on restart")
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}
	return nil
}

func (app *Application) initStates(ctx context.Context) error {
	switch driver := app.cfg.GetStateStoreDriver(); driver {
	case "redis":
		app.redis = redis.NewClient(&redis.Options{Addr: app.cfg.GetRedisAddr()})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", app.cfg.GetRedisAddr(), err)
		}
		app.states = oauthstate.NewRedisRepo(app.redis)
	case "memory":
		app.states = oauthstate.NewInMemoryRepo()
	case "docstore", "":
		app.states = oauthstate.NewDocRepo(app.docs)
	default:
		return fmt.Errorf("unknown STATE_STORE %q", driver)
	}
	return nil
}

func (app *Application) initServices() error {
	key := app.cfg.GetEncryptionKey()
	resolver := providers.NewDefaultCredentialResolver(app.docs, key, app.cfg)
	app.orgCreds = providers.NewOrganizationSource(app.docs, key)
	app.registry = providers.NewDefaultRegistry(resolver,
		providers.WithHTTPClient(&http.Client{Timeout: app.cfg.GetProviderTimeout()}),
	)

	var multi []providers.Name
	for _, d := range app.registry.Descriptors() {
		if d.MultiConnection {
			multi = append(multi, d.Name)
		}
	}
	app.connections = connections.NewStore(app.docs, connections.WithMultiConnectionProviders(multi...))
	app.organizations = organizations.NewDocRepo(app.docs)

	service, err := integrations.New(integrations.Deps{
		Registry:      app.registry,
		Connections:   app.connections,
		States:        app.states,
		EncryptionKey: key,
		BaseURL:       app.cfg.GetBaseURL(),
	},
		integrations.WithStateTTL(app.cfg.GetStateTTL()),
		integrations.WithStateLookup(app.cfg.GetStateLookupAttempts(), app.cfg.GetStateLookupBackoff()),
		integrations.WithMaxRefreshFailures(app.cfg.GetMaxRefreshFailures()),
	)
	if err != nil {
		return err
	}
	app.service = service

	app.sweeper = sweep.New(app.organizations, app.connections, app.service, app.states,
		sweep.WithInterval(app.cfg.GetRefreshInterval()),
		sweep.WithWindow(app.cfg.GetRefreshWindow()),
		sweep.WithMetrics(sweep.NewMetrics(app.metrics)),
		sweep.WithProviders(app.registry.Names()...),
	)
	return nil
}

func (app *Application) verifier(ctx context.Context) (identity.Verifier, error) {
	if issuer := app.cfg.GetIdentityOIDCIssuer(); issuer != "" {
		return identity.NewOIDCVerifier(ctx, issuer, app.cfg.GetIdentityAudience())
	}
	if secret := app.cfg.GetIdentitySecret(); secret != "" {
		return identity.NewHMACVerifier(secret, app.cfg.GetIdentityIssuer(), app.cfg.GetIdentityAudience()), nil
	}
	return nil, errors.New("set IDENTITY_OIDC_ISSUER or IDENTITY_SECRET to verify bearer tokens")
}

// Serve runs the HTTP server and, when runSweep is set, the refresh sweep, until ctx is done.
func (app *Application) Serve(ctx context.Context, runSweep bool) error {
	verifier, err := app.verifier(ctx)
	if err != nil {
		return err
	}
	handler, err := server.New(app.cfg, app.service, verifier, server.WithMetrics(app.metrics))
	if err != nil {
		return err
	}
	app.server = &http.Server{
		Addr:              app.cfg.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if runSweep {
		app.sweeper.Start()
		defer app.sweeper.Stop()
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", app.server.Addr).Str("redirectUri", app.service.RedirectURI()).Msg("Server listening")
		serverErrors <- app.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server.ListenAndServe: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		_ = app.server.Close()
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

// RunSweep performs one refresh sweep.
func (app *Application) RunSweep(ctx context.Context) (*sweep.Summary, error) {
	return app.sweeper.RunOnce(ctx)
}

// Dedupe collapses duplicate connection records of one provider in an organization.
// Member ids from the organization record widen the search to per-user legacy locations.
func (app *Application) Dedupe(ctx context.Context, organizationID string, provider providers.Name, dryRun bool) (*connections.DedupeReport, error) {
	if !app.registry.Has(provider) {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	var members []string
	org, err := app.organizations.Get(ctx, organizationID)
	if err == nil {
		members = org.MemberIDs
	} else {
		log.Warn().Err(err).Str("organizationId", organizationID).Msg("Organization record unavailable, skipping per-user locations")
	}
	return app.connections.Deduplicate(ctx, organizationID, provider, members, dryRun)
}

// SaveCredentials stores an organization's own OAuth client for provider.
func (app *Application) SaveCredentials(ctx context.Context, organizationID string, provider providers.Name, clientID, clientSecret string) error {
	if !app.registry.Has(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	return app.orgCreds.Save(ctx, organizationID, provider, providers.Credentials{ClientID: clientID, ClientSecret: clientSecret})
}

// Close releases the stores.
func (app *Application) Close() error {
	var errs []error
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if app.docs != nil {
		errs = append(errs, app.docs.Close())
	}
	return errors.Join(errs...)
}
