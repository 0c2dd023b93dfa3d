package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/config"
	"github.com/teemow/inboxdigest/internal/digest"
	"github.com/teemow/inboxdigest/internal/gateway"
	"github.com/teemow/inboxdigest/internal/inbox"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/push"
	"github.com/teemow/inboxdigest/internal/session"
	"github.com/teemow/inboxdigest/internal/store"
)

// healthProbeKey is read, never written, to check store reachability.
const healthProbeKey = "healthz"

// ErrPushUnavailable is returned when no Redis URL is configured for push events.
var ErrPushUnavailable = errors.New("push channel requires REDIS_URL")

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithStores injects the persistent and ephemeral stores instead of
// opening the configured backend.
func WithStores(persistent, ephemeral store.Store) Option {
	return func(sc *ServerContext) {
		sc.persistent = persistent
		sc.ephemeral = ephemeral
	}
}

// WithRedisClient injects the Redis client used by the redis backend and
// the push listener.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(sc *ServerContext) {
		sc.redis = client
	}
}

// WithHTTPClient sets the base HTTP client of the gateway.
func WithHTTPClient(c *http.Client) Option {
	return func(sc *ServerContext) {
		sc.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) {
		if logger != nil {
			sc.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(sc *ServerContext) {
		sc.metrics = m
	}
}

// WithClock overrides the time source of the caches, session and assembler.
func WithClock(now cache.Clock) Option {
	return func(sc *ServerContext) {
		sc.now = now
	}
}

// ServerContext wires the stores, caches, session guard, gateway and
// services shared by the CLI commands and the MCP tools.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	config config.Config

	persistent store.Store
	ephemeral  store.Store
	redis      redis.UniversalClient
	ownsRedis  bool
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	now        cache.Clock

	summaries    *cache.SummaryCache
	digests      *cache.DigestStore
	maintainer   *cache.Maintainer
	guard        *session.Guard
	gateway      *gateway.Client
	inbox        *inbox.Service
	assembler    *digest.Assembler
	orchestrator *digest.Orchestrator

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext builds every dependency from cfg.
func NewServerContext(ctx context.Context, cfg config.Config, opts ...Option) (*ServerContext, error) {
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}

	if err := sc.openStores(); err != nil {
		cancel()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		sc.closeRedis()
		cancel()
		return nil, err
	}

	cacheOpts := []cache.Option{cache.WithLogger(sc.logger), cache.WithMetrics(sc.metrics)}
	sessionOpts := []session.Option{session.WithLogger(sc.logger), session.WithMetrics(sc.metrics)}
	assemblerOpts := []digest.AssemblerOption{digest.WithLocation(loc), digest.WithAssemblerLogger(sc.logger)}
	if sc.now != nil {
		cacheOpts = append(cacheOpts, cache.WithClock(sc.now))
		sessionOpts = append(sessionOpts, session.WithClock(sc.now))
		assemblerOpts = append(assemblerOpts, digest.WithAssemblerClock(sc.now))
	}

	sc.summaries = cache.NewSummaryCache(sc.persistent, cacheOpts...)
	sc.digests = cache.NewDigestStore(sc.persistent, cacheOpts...)
	sc.maintainer = cache.NewMaintainer(sc.persistent, cacheOpts...)
	sc.guard = session.NewGuard(sc.persistent, sc.ephemeral, append(sessionOpts, session.WithPurger(sc.maintainer))...)

	sc.gateway, err = gateway.New(cfg.APIURL, sc.guard,
		gateway.WithHTTPClient(sc.httpClient),
		gateway.WithTimeout(cfg.HTTPTimeout),
		gateway.WithLogger(sc.logger),
		gateway.WithMetrics(sc.metrics))
	if err != nil {
		sc.closeRedis()
		cancel()
		return nil, err
	}

	sc.inbox = inbox.NewService(sc.gateway, sc.summaries,
		inbox.WithConcurrency(cfg.SummarizeConcurrency),
		inbox.WithLogger(sc.logger),
		inbox.WithMetrics(sc.metrics))
	sc.assembler = digest.NewAssembler(sc.summaries, assemblerOpts...)
	sc.orchestrator = digest.NewOrchestrator(sc.assembler, sc.digests, sc.gateway, sc.logger, sc.metrics)

	return sc, nil
}

func (sc *ServerContext) openStores() error {
	if sc.persistent != nil && sc.ephemeral != nil {
		return nil
	}

	cfg := sc.config
	switch cfg.Store {
	case config.StoreMemory:
		sc.persistent = store.NewMemoryStore(cfg.StoreQuotaBytes)
		sc.ephemeral = store.NewMemoryStore(0)
	case config.StoreRedis:
		client, err := sc.RedisClient()
		if err != nil {
			return err
		}
		sc.persistent = store.NewRedisStore(client, cfg.RedisPrefix)
		sc.ephemeral = store.NewRedisStore(client, sessionNamespace(cfg.RedisPrefix))
	case config.StoreFile, "":
		persistent, err := store.NewFileStore(cfg.StorePath, cfg.StoreQuotaBytes)
		if err != nil {
			return err
		}
		ephemeral, err := store.NewFileStore(cfg.SessionPath, 0)
		if err != nil {
			return err
		}
		sc.persistent, sc.ephemeral = persistent, ephemeral
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store)
	}
	return nil
}

// sessionNamespace keeps session markers out of the persistent key space,
// so a prefix scan of the state never sees them.
func sessionNamespace(prefix string) string {
	return strings.TrimSuffix(prefix, ":") + "-session:"
}

// RedisClient returns the shared Redis client, connecting on first use.
func (sc *ServerContext) RedisClient() (redis.UniversalClient, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.redis != nil {
		return sc.redis, nil
	}
	if sc.config.RedisURL == "" {
		return nil, ErrPushUnavailable
	}
	opts, err := redis.ParseURL(sc.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", config.EnvRedisURL, err)
	}
	sc.redis = redis.NewClient(opts)
	sc.ownsRedis = true
	return sc.redis, nil
}

// PushListener builds a listener on the push channel of the logged-in user.
func (sc *ServerContext) PushListener(ctx context.Context) (*push.Listener, error) {
	user, err := sc.guard.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil || user.ID == "" {
		return nil, session.ErrNotLoggedIn
	}
	client, err := sc.RedisClient()
	if err != nil {
		return nil, err
	}
	return push.NewListener(client, push.Channel(sc.config.PushChannelPrefix, user.ID), sc.summaries,
		push.WithMetaLookup(sc.inbox),
		push.WithLogger(sc.logger),
		push.WithMetrics(sc.metrics))
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the configuration the context was built from.
func (sc *ServerContext) Config() config.Config {
	return sc.config
}

// Logger returns the base logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// Store returns the persistent store.
func (sc *ServerContext) Store() store.Store {
	return sc.persistent
}

// Summaries returns the summary cache.
func (sc *ServerContext) Summaries() *cache.SummaryCache {
	return sc.summaries
}

// Digests returns the digest store.
func (sc *ServerContext) Digests() *cache.DigestStore {
	return sc.digests
}

// Maintainer returns the cache maintenance sweep.
func (sc *ServerContext) Maintainer() *cache.Maintainer {
	return sc.maintainer
}

// Session returns the session guard.
func (sc *ServerContext) Session() *session.Guard {
	return sc.guard
}

// Gateway returns the backend client.
func (sc *ServerContext) Gateway() *gateway.Client {
	return sc.gateway
}

// Inbox returns the summarize service.
func (sc *ServerContext) Inbox() *inbox.Service {
	return sc.inbox
}

// Assembler returns the digest assembler.
func (sc *ServerContext) Assembler() *digest.Assembler {
	return sc.assembler
}

// Orchestrator returns the digest orchestrator.
func (sc *ServerContext) Orchestrator() *digest.Orchestrator {
	return sc.orchestrator
}

// Ping checks that the persistent store is reachable.
func (sc *ServerContext) Ping(ctx context.Context) error {
	_, _, err := sc.persistent.Get(ctx, healthProbeKey)
	return err
}

// IsShutdown returns whether the server has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and releases the Redis client.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.mu.Unlock()

	sc.cancel()
	return sc.closeRedis()
}

func (sc *ServerContext) closeRedis() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.redis != nil && sc.ownsRedis {
		err := sc.redis.Close()
		sc.redis = nil
		return err
	}
	return nil
}
