package store

import (
	"context"
	"testing"
	"time"

	"github.com/hamba/pkg/log"
	"github.com/nrwiersma/manager/manager/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestStore_ForwardStatusEventsTranslates(t *testing.T) {
	s := &Store{log: log.Null}
	watchCh := make(chan clientv3.WatchResponse, 2)
	events := make(chan status.Event, 4)

	watchCh <- clientv3.WatchResponse{
		Events: []*clientv3.Event{
			{Type: clientv3.EventTypePut, Kv: &mvccpb.KeyValue{Value: []byte("FROZEN")}},
			{Type: clientv3.EventTypeDelete, Kv: &mvccpb.KeyValue{}},
		},
	}
	close(watchCh)

	s.forwardStatusEvents(context.Background(), watchCh, events)

	ev := <-events
	assert.Equal(t, status.Event{Type: status.EventPut, Status: status.Frozen}, ev)

	ev = <-events
	assert.Equal(t, status.Event{Type: status.EventDelete}, ev)

	_, ok := <-events
	assert.False(t, ok)
}

func TestStore_ForwardStatusEventsSkipsInvalidStatus(t *testing.T) {
	s := &Store{log: log.Null}
	watchCh := make(chan clientv3.WatchResponse, 1)
	events := make(chan status.Event, 4)

	watchCh <- clientv3.WatchResponse{
		Events: []*clientv3.Event{
			{Type: clientv3.EventTypePut, Kv: &mvccpb.KeyValue{Value: []byte("sleeping")}},
			{Type: clientv3.EventTypePut, Kv: &mvccpb.KeyValue{Value: []byte("RUNNING")}},
		},
	}
	close(watchCh)

	s.forwardStatusEvents(context.Background(), watchCh, events)

	ev := <-events
	require.Equal(t, status.Event{Type: status.EventPut, Status: status.Running}, ev)

	_, ok := <-events
	assert.False(t, ok)
}

func TestStore_ForwardStatusEventsStopsOnCancel(t *testing.T) {
	s := &Store{log: log.Null}
	ctx, cancel := context.WithCancel(context.Background())
	watchCh := make(chan clientv3.WatchResponse, 1)
	events := make(chan status.Event)

	watchCh <- clientv3.WatchResponse{
		Events: []*clientv3.Event{
			{Type: clientv3.EventTypePut, Kv: &mvccpb.KeyValue{Value: []byte("FROZEN")}},
		},
	}

	// No receiver on events; the forwarder must not block past
	// cancellation.
	done := make(chan struct{})
	go func() {
		defer close(done)

		s.forwardStatusEvents(ctx, watchCh, events)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop on cancellation")
	}
}
