package api_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nrwiersma/manager/manager/api"
	"github.com/nrwiersma/manager/manager/health"
	"github.com/nrwiersma/manager/manager/state"
	"github.com/nrwiersma/manager/manager/status"
	"github.com/stretchr/testify/require"
)

type fakeStatusStore struct {
	mu sync.Mutex
	st status.Status
}

func (s *fakeStatusStore) ManagerStatus(ctx context.Context) (status.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.st, nil
}

func (s *fakeStatusStore) WatchManagerStatus(ctx context.Context) (<-chan status.Event, error) {
	return make(chan status.Event), nil
}

type fakeConfigStore struct {
	mu sync.Mutex

	statusUpdates []status.Status
	onUpdate      func()

	announcement        string
	announcementEnabled bool

	nodes map[string]string

	events []string
}

func (s *fakeConfigStore) UpdateManagerStatus(ctx context.Context, st status.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate()
	}
	s.statusUpdates = append(s.statusUpdates, st)
	return nil
}

func (s *fakeConfigStore) Announcement(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.announcement, s.announcementEnabled, nil
}

func (s *fakeConfigStore) SetAnnouncement(ctx context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.announcement = msg
	s.announcementEnabled = true
	return nil
}

func (s *fakeConfigStore) DeleteAnnouncement(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.announcement = ""
	s.announcementEnabled = false
	return nil
}

func (s *fakeConfigStore) ManagerNodes(ctx context.Context) (map[string]string, error) {
	return s.nodes, nil
}

func (s *fakeConfigStore) PublishEvent(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, name)
	return nil
}

type fakeHealth struct {
	reports map[string]health.Report
}

func (h *fakeHealth) Check(ctx context.Context, agentIDs []string) (map[string]health.Report, error) {
	reports := make(map[string]health.Report, len(agentIDs))
	for _, id := range agentIDs {
		reports[id] = h.reports[id]
	}
	return reports, nil
}

func (h *fakeHealth) SelfCheck(ctx context.Context) (health.HostHealth, error) {
	return health.HostHealth{Uptime: 42, CPUs: 4}, nil
}

type testServer struct {
	srv         *api.Server
	statusStore *fakeStatusStore
	cfgStore    *fakeConfigStore
	registry    *state.Store
	health      *fakeHealth
}

func newTestServer(t *testing.T, st status.Status) *testServer {
	t.Helper()

	statusStore := &fakeStatusStore{st: st}
	cfgStore := &fakeConfigStore{}
	registry, err := state.New()
	require.NoError(t, err)
	checker := &fakeHealth{reports: map[string]health.Report{}}

	cache := status.NewCache(statusStore)
	srv := api.New(api.Config{
		Store:    cfgStore,
		Registry: registry,
		Health:   checker,
		Cache:    cache,
		Gate:     status.NewGate(cache),
		Auth:     api.NewTokenAuthorizer("test-token"),
		Node: api.NodeConfig{
			ID:               "mgr1",
			NumProcs:         4,
			ServiceAddr:      "10.0.0.1:8080",
			HeartbeatTimeout: 5 * time.Second,
		},
		Version: "1.2.3",
	})

	return &testServer{
		srv:         srv,
		statusStore: statusStore,
		cfgStore:    cfgStore,
		registry:    registry,
		health:      checker,
	}
}

func (ts *testServer) request(method, target, body string, admin bool) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("{}")
	} else {
		rd = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, rd)
	if admin {
		req.Header.Set("Authorization", "Bearer test-token")
	}

	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}
