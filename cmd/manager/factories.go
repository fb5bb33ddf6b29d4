package main

import (
	"os"
	"runtime"

	"github.com/hamba/cmd"
	"github.com/nrwiersma/manager"
	"github.com/nrwiersma/manager/manager/api"
	"github.com/nrwiersma/manager/manager/state"
	"github.com/nrwiersma/manager/manager/store"
	mlog "github.com/nrwiersma/manager/pkg/log"
	"github.com/segmentio/ksuid"
)

// Application =============================

func newApplication(c *cmd.Context, store *store.Store) (*manager.Application, error) {
	registry, err := state.New()
	if err != nil {
		return nil, err
	}

	nodeID := c.String(flagNodeID)
	if nodeID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = ksuid.New().String()
		}
		nodeID = hostname
	}

	return manager.NewApplication(manager.Config{
		Store:    store,
		Registry: registry,
		Node: api.NodeConfig{
			ID:               nodeID,
			NumProcs:         runtime.NumCPU(),
			ServiceAddr:      c.String(flagServiceAddr),
			HeartbeatTimeout: c.Duration(flagHeartbeatTimeout),
			SSLEnabled:       c.Bool(flagSSLEnabled),
		},
		Version:       version,
		AdminToken:    c.String(flagAdminToken),
		HealthLimit:   c.Int(flagHealthLimit),
		HealthTimeout: c.Duration(flagHealthTimeout),
		Logger:        c.Logger(),
		Statter:       c.Statter(),
	})
}

// Store ===================================

func newStore(c *cmd.Context) (*store.Store, error) {
	return store.New(store.Config{
		Endpoints: c.StringSlice(flagEtcdEndpoints),
		Prefix:    c.String(flagEtcdPrefix),
		ZapLogger: mlog.NewZap(c.Logger()),
		Logger:    c.Logger(),
	})
}
