package status

import (
	"context"

	"github.com/hamba/pkg/log"
	"github.com/pkg/errors"
)

// WatchLoop invalidates a status cache on store change events.
//
// A stale cache in any process is a correctness violation, so an
// unexpected end of the subscription stream is returned as an error
// rather than absorbed.
type WatchLoop struct {
	store Store
	cache *Cache

	log log.Logger
}

// NewWatchLoop returns a watch loop invalidating cache on change
// events from store.
func NewWatchLoop(store Store, cache *Cache, logger log.Logger) *WatchLoop {
	if logger == nil {
		logger = log.Null
	}

	return &WatchLoop{
		store: store,
		cache: cache,
		log:   logger,
	}
}

// Run subscribes to status change events, invalidating and eagerly
// re-warming the cache on every put event. It blocks until ctx is
// cancelled, returning nil, or until the subscription stream ends
// unexpectedly, returning an error.
func (l *WatchLoop) Run(ctx context.Context) error {
	events, err := l.store.WatchManagerStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "status: watching manager status")
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("status: watch stream terminated unexpectedly")
			}

			if ev.Type != EventPut {
				continue
			}

			l.cache.Invalidate()

			st, err := l.cache.Status(ctx)
			if err != nil {
				l.log.Error("status: error refreshing status after update", "error", err)
				continue
			}
			l.log.Info("status: detected manager status update", "status", string(st))
		}
	}
}
