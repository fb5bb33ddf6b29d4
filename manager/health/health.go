// Package health implements bounded concurrent health aggregation over
// agent watcher endpoints.
package health

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hamba/pkg/log"
	"github.com/hamba/pkg/stats"
	"golang.org/x/sync/errgroup"
)

// Defaults for the aggregator.
const (
	DefaultLimit   = 4
	DefaultTimeout = 10 * time.Second
)

// tokenHeader authenticates the manager against a watcher endpoint.
const tokenHeader = "X-Watcher-Token"

// WatcherInfo describes an agent's watcher endpoint.
type WatcherInfo struct {
	Addr  string
	Token string
}

// Resolver resolves an agent id to its watcher endpoint. A nil info
// with a nil error means the agent has no known watcher.
type Resolver interface {
	WatcherInfo(ctx context.Context, agentID string) (*WatcherInfo, error)
}

// Report is a single agent's health payload. A nil report means the
// agent's watcher was unknown or unreachable.
type Report json.RawMessage

// Config configures an aggregator.
type Config struct {
	// Resolver resolves agent watcher endpoints.
	Resolver Resolver

	// Limit caps the number of in-flight probes. Defaults to DefaultLimit.
	Limit int

	// Timeout is the per-probe deadline. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Logger is the logger to log to.
	Logger log.Logger

	// Statter is the statter to report statistics to.
	Statter stats.Statter
}

// Aggregator queries agent watcher endpoints for host health with a
// hard cap on in-flight probes. Individual probe failures never fail
// the aggregate call.
type Aggregator struct {
	resolver Resolver
	limit    int
	timeout  time.Duration

	inflight int64

	log     log.Logger
	statter stats.Statter
}

// New returns a health aggregator.
func New(cfg Config) *Aggregator {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Null
	}
	statter := cfg.Statter
	if statter == nil {
		statter = stats.Null
	}

	return &Aggregator{
		resolver: cfg.Resolver,
		limit:    cfg.Limit,
		timeout:  cfg.Timeout,
		log:      logger,
		statter:  statter,
	}
}

// Check queries the watcher endpoint of every given agent, returning a
// report per agent id. Unknown or unreachable agents get a nil report.
// Cancelling ctx cancels all in-flight and queued probes.
func (a *Aggregator) Check(ctx context.Context, agentIDs []string) (map[string]Report, error) {
	reports := make(map[string]Report, len(agentIDs))
	if len(agentIDs) == 0 {
		return reports, nil
	}

	// The connection pool is scoped to this aggregate call.
	transport := &http.Transport{MaxConnsPerHost: a.limit}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport}

	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.limit)
	for _, agentID := range agentIDs {
		agentID := agentID
		g.Go(func() error {
			report := a.probe(ctx, client, agentID)

			mu.Lock()
			reports[agentID] = report
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (a *Aggregator) probe(ctx context.Context, client *http.Client, agentID string) Report {
	n := atomic.AddInt64(&a.inflight, 1)
	a.statter.Gauge("health.probes.inflight", float64(n), 1.0)
	defer func() {
		n := atomic.AddInt64(&a.inflight, -1)
		a.statter.Gauge("health.probes.inflight", float64(n), 1.0)
	}()

	info, err := a.resolver.WatcherInfo(ctx, agentID)
	if err != nil {
		a.log.Error("health: error resolving watcher", "agent", agentID, "error", err)
		return nil
	}
	if info == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequest("GET", info.Addr+"/health", nil)
	if err != nil {
		a.log.Error("health: error creating probe request", "agent", agentID, "error", err)
		return nil
	}
	req = req.WithContext(ctx)
	req.Header.Set(tokenHeader, info.Token)

	resp, err := client.Do(req)
	if err != nil {
		a.log.Debug("health: probe failed", "agent", agentID, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Debug("health: probe returned non-ok status", "agent", agentID, "status", resp.StatusCode)
		return nil
	}

	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		a.log.Debug("health: error reading probe response", "agent", agentID, "error", err)
		return nil
	}
	return Report(b)
}

// InFlight returns the number of probes currently in flight.
func (a *Aggregator) InFlight() int {
	return int(atomic.LoadInt64(&a.inflight))
}
