package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/nrwiersma/manager/manager/state"
	"github.com/nrwiersma/manager/manager/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_FetchStatus(t *testing.T) {
	ts := newTestServer(t, status.Running)
	ts.cfgStore.nodes = map[string]string{"mgr1": "10.0.0.1:8080"}
	require.NoError(t, ts.registry.EnsureSession(&state.Session{ID: "s1", Status: state.SessionRunning}))

	rec := ts.request(http.MethodGet, "/status", "", false)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Nodes []struct {
			ID             string `json:"id"`
			NumProcs       int    `json:"num_proc"`
			ActiveSessions int    `json:"active_sessions"`
			Status         string `json:"status"`
		} `json:"nodes"`
		Status         string `json:"status"`
		ActiveSessions int    `json:"active_sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "RUNNING", resp.Status)
	assert.Equal(t, 1, resp.ActiveSessions)
	require.Len(t, resp.Nodes, 1)
	assert.Equal(t, "mgr1", resp.Nodes[0].ID)
	assert.Equal(t, 4, resp.Nodes[0].NumProcs)
	assert.Equal(t, 1, resp.Nodes[0].ActiveSessions)
}

func TestServer_FetchStatusWhileFrozen(t *testing.T) {
	ts := newTestServer(t, status.Frozen)

	rec := ts.request(http.MethodGet, "/status", "", false)

	// Reads tolerate a frozen manager.
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_UpdateStatus(t *testing.T) {
	ts := newTestServer(t, status.Running)

	rec := ts.request(http.MethodPut, "/status", `{"status":"FROZEN"}`, true)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, ts.cfgStore.statusUpdates, 1)
	assert.Equal(t, status.Frozen, ts.cfgStore.statusUpdates[0])
}

func TestServer_UpdateStatusRequiresAdmin(t *testing.T) {
	ts := newTestServer(t, status.Running)

	rec := ts.request(http.MethodPut, "/status", `{"status":"FROZEN"}`, false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, ts.cfgStore.statusUpdates)
}

func TestServer_UpdateStatusUnknownStatus(t *testing.T) {
	ts := newTestServer(t, status.Running)

	rec := ts.request(http.MethodPut, "/status", `{"status":"NAPPING"}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_UpdateStatusForceKillsBeforeWrite(t *testing.T) {
	ts := newTestServer(t, status.Running)
	require.NoError(t, ts.registry.EnsureSession(&state.Session{ID: "s1", Status: state.SessionRunning}))

	var activeAtWrite int
	ts.cfgStore.onUpdate = func() {
		activeAtWrite, _ = ts.registry.ActiveSessions()
	}

	rec := ts.request(http.MethodPut, "/status", `{"status":"FROZEN","force_kill":true}`, true)

	require.Equal(t, http.StatusNoContent, rec.Code)

	// The kill completed before the status write.
	assert.Equal(t, 0, activeAtWrite)
	require.Len(t, ts.cfgStore.statusUpdates, 1)
}

func TestServer_GetAnnouncement(t *testing.T) {
	ts := newTestServer(t, status.Running)
	ts.cfgStore.announcement = "maintenance at noon"
	ts.cfgStore.announcementEnabled = true

	rec := ts.request(http.MethodGet, "/announcement", "", false)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":true,"message":"maintenance at noon"}`, rec.Body.String())
}

func TestServer_UpdateAnnouncement(t *testing.T) {
	ts := newTestServer(t, status.Running)

	rec := ts.request(http.MethodPost, "/announcement", `{"enabled":true,"message":"hello"}`, true)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, ts.cfgStore.announcementEnabled)
	assert.Equal(t, "hello", ts.cfgStore.announcement)
}

func TestServer_UpdateAnnouncementEmptyMessage(t *testing.T) {
	ts := newTestServer(t, status.Running)

	rec := ts.request(http.MethodPost, "/announcement", `{"enabled":true}`, true)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid-parameters", resp.Type)
}

func TestServer_UpdateAnnouncementDisable(t *testing.T) {
	ts := newTestServer(t, status.Running)
	ts.cfgStore.announcement = "old"
	ts.cfgStore.announcementEnabled = true

	rec := ts.request(http.MethodPost, "/announcement", `{"enabled":false}`, true)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, ts.cfgStore.announcementEnabled)
}

func TestServer_SchedulerOpIncludeAgents(t *testing.T) {
	ts := newTestServer(t, status.Running)
	require.NoError(t, ts.registry.EnsureAgent(&state.Agent{ID: "a1", Status: state.AgentAlive}))
	require.NoError(t, ts.registry.EnsureAgent(&state.Agent{ID: "a2", Status: state.AgentAlive}))

	rec := ts.request(http.MethodPost, "/scheduler/operation", `{"op":"include-agents","args":["a1","a2"]}`, true)

	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, id := range []string{"a1", "a2"} {
		agent, err := ts.registry.Agent(id)
		require.NoError(t, err)
		assert.True(t, agent.Schedulable)
	}

	// Exactly one trigger signal.
	assert.Equal(t, []string{"do_schedule"}, ts.cfgStore.events)
}

func TestServer_SchedulerOpExcludeAgentsEmitsNothing(t *testing.T) {
	ts := newTestServer(t, status.Running)
	require.NoError(t, ts.registry.EnsureAgent(&state.Agent{ID: "a1", Status: state.AgentAlive}))

	rec := ts.request(http.MethodPost, "/scheduler/operation", `{"op":"exclude-agents","args":["a1"]}`, true)

	require.Equal(t, http.StatusNoContent, rec.Code)

	agent, err := ts.registry.Agent("a1")
	require.NoError(t, err)
	assert.False(t, agent.Schedulable)
	assert.Empty(t, ts.cfgStore.events)
}

func TestServer_SchedulerOpUnknownAgent(t *testing.T) {
	ts := newTestServer(t, status.Running)
	require.NoError(t, ts.registry.EnsureAgent(&state.Agent{ID: "a1", Status: state.AgentAlive}))

	rec := ts.request(http.MethodPost, "/scheduler/operation", `{"op":"include-agents","args":["a1","ghost"]}`, true)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, ts.cfgStore.events)
}

func TestServer_SchedulerOpUnknownOp(t *testing.T) {
	ts := newTestServer(t, status.Running)

	rec := ts.request(http.MethodPost, "/scheduler/operation", `{"op":"defragment","args":[]}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SchedulerOpInvalidArgs(t *testing.T) {
	ts := newTestServer(t, status.Running)

	rec := ts.request(http.MethodPost, "/scheduler/operation", `{"op":"include-agents","args":[1,2]}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SchedulerOpRejectedWhileFrozen(t *testing.T) {
	ts := newTestServer(t, status.Frozen)

	rec := ts.request(http.MethodPost, "/scheduler/operation", `{"op":"include-agents","args":["a1"]}`, true)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "server-frozen", resp.Type)
}

func TestServer_HealthCheck(t *testing.T) {
	ts := newTestServer(t, status.Running)
	ts.health.reports["a1"] = []byte(`{"status":"healthy"}`)

	rec := ts.request(http.MethodGet, "/health?agent_ids=a1&agent_ids=a2", "", true)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Managers []struct {
			ID         string `json:"id"`
			Type       string `json:"type"`
			Version    string `json:"version"`
			APIVersion string `json:"api_version"`
			Uptime     uint64 `json:"uptime"`
		} `json:"managers"`
		Agents []struct {
			ID     string          `json:"id"`
			Health json.RawMessage `json:"health"`
		} `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Managers, 1)
	assert.Equal(t, "mgr1", resp.Managers[0].ID)
	assert.Equal(t, "manager", resp.Managers[0].Type)
	assert.Equal(t, "1.2.3", resp.Managers[0].Version)
	assert.Equal(t, uint64(42), resp.Managers[0].Uptime)

	require.Len(t, resp.Agents, 2)
	assert.Equal(t, "a1", resp.Agents[0].ID)
	assert.JSONEq(t, `{"status":"healthy"}`, string(resp.Agents[0].Health))
	assert.JSONEq(t, `{}`, string(resp.Agents[1].Health))
}

func TestServer_HealthCheckMutuallyExclusiveParams(t *testing.T) {
	ts := newTestServer(t, status.Running)

	rec := ts.request(http.MethodGet, "/health?agent_ids=a1&with_all_agents=true", "", true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_HealthCheckAllAgentsNoneAlive(t *testing.T) {
	ts := newTestServer(t, status.Running)
	require.NoError(t, ts.registry.EnsureAgent(&state.Agent{ID: "a1", Status: state.AgentLost}))

	rec := ts.request(http.MethodGet, "/health?with_all_agents=true", "", true)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Managers []json.RawMessage `json:"managers"`
		Agents   []json.RawMessage `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Len(t, resp.Managers, 1)
	assert.Empty(t, resp.Agents)
}

func TestServer_HealthCheckRequiresAdmin(t *testing.T) {
	ts := newTestServer(t, status.Running)

	rec := ts.request(http.MethodGet, "/health", "", false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_Heartbeat(t *testing.T) {
	ts := newTestServer(t, status.Running)

	rec := ts.request(http.MethodPost, "/agents/heartbeat",
		`{"id":"a1","addr":"10.0.0.2:6001","watcher_addr":"http://10.0.0.2:6009","watcher_token":"tok"}`, false)

	require.Equal(t, http.StatusNoContent, rec.Code)

	agent, err := ts.registry.Agent("a1")
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, state.AgentAlive, agent.Status)
	assert.Equal(t, "http://10.0.0.2:6009", agent.WatcherAddr)
}

func TestServer_HeartbeatRequiresID(t *testing.T) {
	ts := newTestServer(t, status.Running)

	rec := ts.request(http.MethodPost, "/agents/heartbeat", `{"addr":"10.0.0.2:6001"}`, false)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, status.Running)

	rec := ts.request(http.MethodDelete, "/status", "", true)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
