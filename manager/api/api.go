// Package api implements the manager admin HTTP API.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hamba/pkg/log"
	"github.com/hamba/pkg/stats"
	"github.com/nrwiersma/manager/manager/health"
	"github.com/nrwiersma/manager/manager/state"
	"github.com/nrwiersma/manager/manager/status"
)

// APIVersion is the manager API version exposed to clients.
const APIVersion = "v4"

// ConfigStore represents the distributed configuration store.
type ConfigStore interface {
	UpdateManagerStatus(ctx context.Context, st status.Status) error
	Announcement(ctx context.Context) (string, bool, error)
	SetAnnouncement(ctx context.Context, msg string) error
	DeleteAnnouncement(ctx context.Context) error
	ManagerNodes(ctx context.Context) (map[string]string, error)
	PublishEvent(ctx context.Context, name string) error
}

// Registry represents the agent and session registry.
type Registry interface {
	ActiveSessions() (int, error)
	KillSessions() (int, error)
	AliveAgentIDs() ([]string, error)
	SetSchedulable(ids []string, schedulable bool) error
	EnsureAgent(agent *state.Agent) error
}

// HealthChecker represents a bounded agent health aggregator.
type HealthChecker interface {
	Check(ctx context.Context, agentIDs []string) (map[string]health.Report, error)
	SelfCheck(ctx context.Context) (health.HostHealth, error)
}

// Authorizer represents an administrative credential check.
type Authorizer interface {
	Authorized(r *http.Request) bool
}

// NodeConfig describes this manager node instance.
type NodeConfig struct {
	ID               string
	NumProcs         int
	ServiceAddr      string
	HeartbeatTimeout time.Duration
	SSLEnabled       bool
}

// Config configures a server.
type Config struct {
	Store    ConfigStore
	Registry Registry
	Health   HealthChecker
	Cache    *status.Cache
	Gate     *status.Gate
	Auth     Authorizer
	Node     NodeConfig
	Version  string

	Logger  log.Logger
	Statter stats.Statter
}

// Server serves the manager admin API.
type Server struct {
	store    ConfigStore
	registry Registry
	health   HealthChecker
	cache    *status.Cache
	gate     *status.Gate
	auth     Authorizer
	node     NodeConfig
	version  string

	mux *http.ServeMux

	log     log.Logger
	statter stats.Statter
}

// New returns an admin API server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Null
	}
	statter := cfg.Statter
	if statter == nil {
		statter = stats.Null
	}

	s := &Server{
		store:    cfg.Store,
		registry: cfg.Registry,
		health:   cfg.Health,
		cache:    cfg.Cache,
		gate:     cfg.Gate,
		auth:     cfg.Auth,
		node:     cfg.Node,
		version:  cfg.Version,
		log:      logger,
		statter:  statter,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/announcement", s.handleAnnouncement)
	mux.HandleFunc("/scheduler/operation", s.withAdmin(s.withUnfrozen(s.handleSchedulerOp)))
	mux.HandleFunc("/health", s.withAdmin(s.withGate(status.ReadAllowed, s.handleHealthCheck)))
	mux.HandleFunc("/agents/heartbeat", s.handleHeartbeat)
	s.mux = mux

	return s
}

// ServeHTTP serves an admin API request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.statter.Timing("api.request", time.Since(start), 1.0, "path", r.URL.Path)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.withGate(status.ReadAllowed, s.handleFetchStatus)(w, r)
	case http.MethodPut:
		s.withAdmin(s.handleUpdateStatus)(w, r)
	default:
		respondMethodNotAllowed(w)
	}
}

func (s *Server) handleAnnouncement(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.withGate(status.ReadAllowed, s.handleGetAnnouncement)(w, r)
	case http.MethodPost:
		s.withAdmin(s.handleUpdateAnnouncement)(w, r)
	default:
		respondMethodNotAllowed(w)
	}
}

// TokenAuthorizer authorizes requests carrying a configured bearer token.
type TokenAuthorizer struct {
	token string
}

// NewTokenAuthorizer returns a token authorizer. An empty token
// authorizes nothing.
func NewTokenAuthorizer(token string) *TokenAuthorizer {
	return &TokenAuthorizer{token: token}
}

// Authorized determines if the request carries the admin token.
func (a *TokenAuthorizer) Authorized(r *http.Request) bool {
	if a.token == "" {
		return false
	}
	return r.Header.Get("Authorization") == fmt.Sprintf("Bearer %s", a.token)
}
