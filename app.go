package manager

import (
	"context"
	"net/http"
	"time"

	"github.com/hamba/pkg/log"
	"github.com/hamba/pkg/stats"
	"github.com/nrwiersma/manager/manager/api"
	"github.com/nrwiersma/manager/manager/health"
	"github.com/nrwiersma/manager/manager/state"
	"github.com/nrwiersma/manager/manager/status"
)

// ConfigStore represents the distributed configuration store used by
// the application.
type ConfigStore interface {
	status.Store
	api.ConfigStore

	RegisterNode(ctx context.Context, id, addr string) error
	Close() error
}

// Config configures an application.
type Config struct {
	Store    ConfigStore
	Registry *state.Store

	Node       api.NodeConfig
	Version    string
	AdminToken string

	HealthLimit   int
	HealthTimeout time.Duration

	Logger  log.Logger
	Statter stats.Statter
}

// Application represents the manager application. It owns the status
// watch loop and wires the admin API to its collaborators.
type Application struct {
	store    ConfigStore
	registry *state.Store
	cache    *status.Cache
	handler  http.Handler

	cancelWatch context.CancelFunc
	watchDoneCh chan struct{}
	errCh       chan error

	logger  log.Logger
	statter stats.Statter
}

// NewApplication creates an instance of Application, registers this
// manager node in the store and starts the status watch loop.
func NewApplication(cfg Config) (*Application, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Null
	}
	statter := cfg.Statter
	if statter == nil {
		statter = stats.Null
	}

	cache := status.NewCache(cfg.Store)
	gate := status.NewGate(cache)

	agg := health.New(health.Config{
		Resolver: &watcherResolver{registry: cfg.Registry},
		Limit:    cfg.HealthLimit,
		Timeout:  cfg.HealthTimeout,
		Logger:   logger,
		Statter:  statter,
	})

	app := &Application{
		store:       cfg.Store,
		registry:    cfg.Registry,
		cache:       cache,
		watchDoneCh: make(chan struct{}),
		errCh:       make(chan error, 1),
		logger:      logger,
		statter:     statter,
	}

	app.handler = api.New(api.Config{
		Store:    cfg.Store,
		Registry: cfg.Registry,
		Health:   agg,
		Cache:    cache,
		Gate:     gate,
		Auth:     api.NewTokenAuthorizer(cfg.AdminToken),
		Node:     cfg.Node,
		Version:  cfg.Version,
		Logger:   logger,
		Statter:  statter,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cfg.Store.RegisterNode(ctx, cfg.Node.ID, cfg.Node.ServiceAddr); err != nil {
		return nil, err
	}

	app.startWatchLoop()

	return app, nil
}

func (a *Application) startWatchLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelWatch = cancel

	loop := status.NewWatchLoop(a.store, a.cache, a.logger)

	go func() {
		defer close(a.watchDoneCh)

		if err := loop.Run(ctx); err != nil {
			// A dead watch loop means a stale status cache, which is
			// a correctness violation. Surface it.
			a.logger.Error("app: status watch loop failed", "error", err)
			a.errCh <- err
		}
	}()
}

// Handler returns the admin API handler.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Errs returns a channel delivering fatal application errors.
func (a *Application) Errs() <-chan error {
	return a.errCh
}

// Close closes the application, waiting for the status watch loop to
// unwind.
func (a *Application) Close() error {
	a.cancelWatch()
	<-a.watchDoneCh
	return nil
}

// watcherResolver resolves agent watcher endpoints from the registry.
type watcherResolver struct {
	registry *state.Store
}

// WatcherInfo returns the watcher endpoint of an alive agent, or nil
// if the agent is unknown, not alive, or has no watcher address.
func (r *watcherResolver) WatcherInfo(_ context.Context, agentID string) (*health.WatcherInfo, error) {
	agent, err := r.registry.Agent(agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil || agent.Status != state.AgentAlive || agent.WatcherAddr == "" {
		return nil, nil
	}

	return &health.WatcherInfo{
		Addr:  agent.WatcherAddr,
		Token: agent.WatcherToken,
	}, nil
}
