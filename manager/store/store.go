// Package store implements the distributed configuration store backing
// the manager, held in etcd.
//
// The manager status key is the only piece of state the manager treats
// as durable; everything else in the system is derived from it or from
// the ephemeral registry.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/hamba/pkg/log"
	"github.com/nrwiersma/manager/manager/status"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// The well-known keys, relative to the configured prefix.
const (
	statusKey       = "status"
	announcementKey = "announcement"
	nodesPrefix     = "nodes/"
	eventsPrefix    = "events/"
)

// DefaultPrefix is the default etcd key prefix.
const DefaultPrefix = "/manager"

// Config configures a store.
type Config struct {
	// Endpoints are the etcd endpoints to connect to.
	Endpoints []string

	// Prefix is the etcd key prefix. Defaults to DefaultPrefix.
	Prefix string

	// DialTimeout is the timeout for connecting to etcd.
	DialTimeout time.Duration

	// ZapLogger is the logger handed to the etcd client.
	ZapLogger *zap.Logger

	// Logger is the logger to log to.
	Logger log.Logger
}

// Store is an etcd backed configuration store.
type Store struct {
	client *clientv3.Client
	prefix string

	log log.Logger
}

// New returns an etcd backed configuration store.
func New(cfg Config) (*Store, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Null
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Logger:      cfg.ZapLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "store: error connecting to etcd")
	}

	return &Store{
		client: client,
		prefix: strings.TrimSuffix(cfg.Prefix, "/"),
		log:    logger,
	}, nil
}

// ManagerStatus returns the current manager status. An unset key reads
// as Running, the bootstrap default.
func (s *Store) ManagerStatus(ctx context.Context) (status.Status, error) {
	resp, err := s.client.Get(ctx, s.key(statusKey))
	if err != nil {
		return "", errors.Wrap(err, "store: error getting manager status")
	}

	if len(resp.Kvs) == 0 {
		return status.Running, nil
	}

	st, err := status.Parse(string(resp.Kvs[0].Value))
	if err != nil {
		return "", errors.Wrap(err, "store: invalid stored manager status")
	}
	return st, nil
}

// UpdateManagerStatus writes the manager status, triggering the watch
// mechanism in every subscribed process.
func (s *Store) UpdateManagerStatus(ctx context.Context, st status.Status) error {
	if _, err := s.client.Put(ctx, s.key(statusKey), string(st)); err != nil {
		return errors.Wrap(err, "store: error updating manager status")
	}
	return nil
}

// WatchManagerStatus subscribes to manager status change events. The
// returned channel is closed when the subscription ends.
func (s *Store) WatchManagerStatus(ctx context.Context) (<-chan status.Event, error) {
	watchCh := s.client.Watch(ctx, s.key(statusKey))
	events := make(chan status.Event)

	go s.forwardStatusEvents(ctx, watchCh, events)

	return events, nil
}

// forwardStatusEvents adapts the raw etcd watch stream onto events,
// closing events when the stream ends. The consumer may stop receiving
// on cancellation, so every send also watches the context or the
// goroutine leaks.
func (s *Store) forwardStatusEvents(ctx context.Context, watchCh clientv3.WatchChan, events chan<- status.Event) {
	defer close(events)

	send := func(ev status.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for resp := range watchCh {
		if err := resp.Err(); err != nil {
			s.log.Error("store: status watch error", "error", err)
			return
		}

		for _, ev := range resp.Events {
			switch ev.Type {
			case clientv3.EventTypePut:
				st, err := status.Parse(string(ev.Kv.Value))
				if err != nil {
					s.log.Error("store: ignoring invalid status event", "error", err)
					continue
				}
				if !send(status.Event{Type: status.EventPut, Status: st}) {
					return
				}

			case clientv3.EventTypeDelete:
				if !send(status.Event{Type: status.EventDelete}) {
					return
				}
			}
		}
	}
}

// Announcement returns the cluster announcement message. Presence of
// the stored value implies the announcement is enabled.
func (s *Store) Announcement(ctx context.Context) (string, bool, error) {
	resp, err := s.client.Get(ctx, s.key(announcementKey))
	if err != nil {
		return "", false, errors.Wrap(err, "store: error getting announcement")
	}

	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

// SetAnnouncement enables the cluster announcement with the given message.
func (s *Store) SetAnnouncement(ctx context.Context, msg string) error {
	if _, err := s.client.Put(ctx, s.key(announcementKey), msg); err != nil {
		return errors.Wrap(err, "store: error setting announcement")
	}
	return nil
}

// DeleteAnnouncement disables the cluster announcement.
func (s *Store) DeleteAnnouncement(ctx context.Context) error {
	if _, err := s.client.Delete(ctx, s.key(announcementKey)); err != nil {
		return errors.Wrap(err, "store: error deleting announcement")
	}
	return nil
}

// ManagerNodes returns the registered manager nodes, keyed by node id.
func (s *Store) ManagerNodes(ctx context.Context) (map[string]string, error) {
	resp, err := s.client.Get(ctx, s.key(nodesPrefix), clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrap(err, "store: error getting manager nodes")
	}

	nodes := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		id := strings.TrimPrefix(string(kv.Key), s.key(nodesPrefix))
		nodes[id] = string(kv.Value)
	}
	return nodes, nil
}

// RegisterNode registers a manager node address under the given id.
func (s *Store) RegisterNode(ctx context.Context, id, addr string) error {
	if _, err := s.client.Put(ctx, s.key(nodesPrefix+id), addr); err != nil {
		return errors.Wrap(err, "store: error registering manager node")
	}
	return nil
}

// PublishEvent publishes a named event to the event channel. Every
// publish is a distinct put, so watchers observe each one.
func (s *Store) PublishEvent(ctx context.Context, name string) error {
	if _, err := s.client.Put(ctx, s.key(eventsPrefix+name), ksuid.New().String()); err != nil {
		return errors.Wrap(err, "store: error publishing event")
	}
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(k string) string {
	return s.prefix + "/" + k
}
