// Package intake wires the transcript intake components from one
// configuration: the webhook receiver with its classifier, artifact writer and
// job dispatcher, and the subscription renewer.
package intake

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-transcript-intake/adapters/gocommand"
	"github.com/goliatone/go-transcript-intake/adapters/gologger"
	"github.com/goliatone/go-transcript-intake/artifacts"
	"github.com/goliatone/go-transcript-intake/auth"
	"github.com/goliatone/go-transcript-intake/classify"
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/goliatone/go-transcript-intake/dispatch"
	"github.com/goliatone/go-transcript-intake/graph"
	"github.com/goliatone/go-transcript-intake/renewal"
	sqlstore "github.com/goliatone/go-transcript-intake/store/sql"
	"github.com/goliatone/go-transcript-intake/transport"
	"github.com/goliatone/go-transcript-intake/webhooks"
)

type Config = core.Config

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// LoadConfig layers the YAML file at path (optional) and the environment over
// the defaults.
func LoadConfig(ctx context.Context, path string) (Config, error) {
	return core.LoadConfig(ctx, path, Config{})
}

type Option func(*setupOptions)

type setupOptions struct {
	logger         glog.Logger
	loggerProvider glog.LoggerProvider
	metrics        core.MetricsRecorder
	httpClient     *http.Client
	persistence    *persistence.Client
	enqueuer       queue.Enqueuer
	cache          repositorycache.CacheService
	artifactStore  core.ArtifactStore
	credentials    core.CredentialSource
	skipDatabase   bool
}

func WithLogger(logger glog.Logger) Option {
	return func(o *setupOptions) { o.logger = logger }
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(o *setupOptions) { o.loggerProvider = provider }
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(o *setupOptions) { o.metrics = metrics }
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *setupOptions) { o.httpClient = client }
}

// WithPersistenceClient reuses an already migrated database instead of
// opening database.dsn.
func WithPersistenceClient(client *persistence.Client) Option {
	return func(o *setupOptions) { o.persistence = client }
}

// WithoutDatabase runs without the subscription record and artifact index.
func WithoutDatabase() Option {
	return func(o *setupOptions) { o.skipDatabase = true }
}

// WithEnqueuer replaces the HTTP execution-job backend.
func WithEnqueuer(enqueuer queue.Enqueuer) Option {
	return func(o *setupOptions) { o.enqueuer = enqueuer }
}

func WithCacheService(cache repositorycache.CacheService) Option {
	return func(o *setupOptions) { o.cache = cache }
}

func WithArtifactStore(store core.ArtifactStore) Option {
	return func(o *setupOptions) { o.artifactStore = store }
}

func WithCredentialSource(source core.CredentialSource) Option {
	return func(o *setupOptions) { o.credentials = source }
}

// App holds the wired components. Close releases the storage backend, the
// database and the command subscriptions. Commands.Queue() exposes the
// commanders to go-job workers.
type App struct {
	Config    Config
	Loggers   gologger.Loggers
	Telemetry core.Telemetry
	Receiver  *webhooks.Receiver
	Renewer   *renewal.Renewer
	Commands  *gocommand.Bus
	Stores    *sqlstore.RepositoryFactory

	closers []io.Closer
}

// Setup validates cfg and builds every component. Missing identity
// credentials are not an error here; they surface when a renewal or a fetch
// is attempted.
func Setup(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	options := setupOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loggers := gologger.ResolveLoggers(cfg.ServiceName, options.loggerProvider, options.logger)
	app := &App{
		Config:    cfg,
		Loggers:   loggers,
		Telemetry: core.NewTelemetry(loggers.Logger, options.metrics),
	}
	component := func(name string) core.Telemetry {
		return core.NewTelemetry(loggers.Component(name), options.metrics)
	}

	if err := app.openStores(ctx, cfg, options); err != nil {
		_ = app.Close()
		return nil, err
	}

	credentials := options.credentials
	if credentials == nil {
		credentials = auth.NewClientCredentialsSource(auth.ClientCredentialsConfig{
			ClientID:     cfg.Identity.ClientID,
			ClientSecret: cfg.Identity.ClientSecret,
			TokenURL:     cfg.Identity.TokenURL(),
			Scopes:       cfg.Identity.Scopes,
			HTTPClient:   options.httpClient,
		})
	}
	graphClient := graph.NewClient(cfg.Graph.BaseURL, transport.NewRESTAdapter(httpDoer(options.httpClient)).WithCredentials(credentials), cfg.Graph.Timeout)

	lookup, err := app.meetingLookup(graphClient, options)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	predicate, err := classify.PredicateFromConfig(cfg.Receiver)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	classifier := classify.NewClassifier(lookup, predicate, cfg.Receiver.RetryPolicy())

	writer, err := app.artifactWriter(cfg, options, component("artifacts"))
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	enqueuer := options.enqueuer
	if enqueuer == nil {
		enqueuer = app.jobBackend(cfg, options)
	}
	dispatcher := dispatch.NewDispatcher(enqueuer, cfg.Jobs, dispatch.WithTelemetry(component("dispatch")))

	app.Receiver = webhooks.NewReceiver(cfg.Receiver, cfg.Subscription.ClientState, webhooks.Dependencies{
		Classifier: classifier,
		Fetcher:    graphClient,
		Writer:     writer,
		Dispatcher: dispatcher,
		Telemetry:  component("webhooks"),
	})

	renewerOpts := []renewal.Option{renewal.WithTelemetry(component("renewal"))}
	if app.Stores != nil {
		renewerOpts = append(renewerOpts, renewal.WithStore(app.Stores.SubscriptionStore()))
	}
	app.Renewer = renewal.NewRenewer(cfg, credentials, graphClient, renewerOpts...)

	app.Commands = gocommand.NewBus(nil)
	if err := app.Commands.MirrorToQueue(jobqueuecommand.NewRegistry()); err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.Commands.RegisterIntake(app.Receiver, app.Renewer); err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Telemetry.LogInfo(ctx, "transcript intake configured", map[string]any{
		"storage_backend": cfg.Storage.Backend,
		"subscription":    core.ShortSubscriptionID(cfg.Subscription.ID),
		"database":        app.Stores != nil,
	})
	return app, nil
}

// Handler serves handshakes and notification deliveries.
func (a *App) Handler() http.Handler {
	return webhooks.NewHandler(a.Receiver)
}

func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Commands != nil {
		errs = append(errs, a.Commands.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStores(ctx context.Context, cfg Config, options setupOptions) error {
	if options.skipDatabase {
		return nil
	}
	client := options.persistence
	if client == nil {
		opened, err := sqlstore.Open(ctx, cfg.Database, cfg.ServiceName)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, opened)
		client = opened
	}
	stores, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return err
	}
	a.Stores = stores
	return nil
}

func (a *App) meetingLookup(base core.MeetingLookup, options setupOptions) (core.MeetingLookup, error) {
	cacheService := options.cache
	if cacheService == nil {
		created, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
		if err != nil {
			return nil, err
		}
		cacheService = created
	}
	return graph.NewCachedMeetingLookup(base, cacheService)
}

func (a *App) artifactWriter(cfg Config, options setupOptions, telemetry core.Telemetry) (*artifacts.Writer, error) {
	store := options.artifactStore
	if store == nil {
		opened, closer, err := artifacts.OpenStore(cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closer)
		store = opened
	}
	writerOpts := []artifacts.WriterOption{
		artifacts.WithTelemetry(telemetry),
		artifacts.WithRetryPolicy(cfg.Receiver.RetryPolicy()),
	}
	if a.Stores != nil {
		writerOpts = append(writerOpts, artifacts.WithIndex(a.Stores.ArtifactIndex()))
	}
	return artifacts.NewWriter(store, writerOpts...), nil
}

// jobBackend posts execution messages to jobs.backend_url. The backend gets
// its own token audience when jobs.scopes is set.
func (a *App) jobBackend(cfg Config, options setupOptions) queue.Enqueuer {
	rest := transport.NewRESTAdapter(httpDoer(options.httpClient))
	if len(cfg.Jobs.Scopes) > 0 {
		rest.WithCredentials(auth.NewClientCredentialsSource(auth.ClientCredentialsConfig{
			ClientID:     cfg.Identity.ClientID,
			ClientSecret: cfg.Identity.ClientSecret,
			TokenURL:     cfg.Identity.TokenURL(),
			Scopes:       cfg.Jobs.Scopes,
			HTTPClient:   options.httpClient,
		}))
	}
	if strings.TrimSpace(cfg.Jobs.BackendURL) == "" {
		a.Telemetry.LogWarn(context.Background(), "jobs.backend_url is not set, dispatches will fail", nil)
	}
	return dispatch.NewHTTPJobBackend(cfg.Jobs.BackendURL, rest, cfg.Graph.Timeout).WithLogger(a.Loggers.JobLogger)
}

func httpDoer(client *http.Client) transport.HTTPDoer {
	if client == nil {
		return nil
	}
	return client
}
