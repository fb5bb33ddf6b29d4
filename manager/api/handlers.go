package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nrwiersma/manager/manager/health"
	"github.com/nrwiersma/manager/manager/state"
	"github.com/nrwiersma/manager/manager/status"
)

type nodeInfo struct {
	ID               string  `json:"id"`
	NumProcs         int     `json:"num_proc"`
	ServiceAddr      string  `json:"service_addr"`
	HeartbeatTimeout float64 `json:"heartbeat_timeout"`
	SSLEnabled       bool    `json:"ssl_enabled"`
	ActiveSessions   int     `json:"active_sessions"`
	Status           string  `json:"status"`
}

type statusResponse struct {
	Nodes          []nodeInfo `json:"nodes"`
	Status         string     `json:"status"`
	ActiveSessions int        `json:"active_sessions"`
}

func (s *Server) handleFetchStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s.log.Info("api: fetch manager status")

	st, err := s.cache.Status(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	registered, err := s.store.ManagerNodes(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	active, err := s.registry.ActiveSessions()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	nodes := make([]nodeInfo, 0, len(registered))
	for id := range registered {
		nodes = append(nodes, s.newNodeInfo(id, st, active))
	}
	if len(nodes) == 0 {
		nodes = append(nodes, s.newNodeInfo(s.node.ID, st, active))
	}

	respondJSON(w, http.StatusOK, statusResponse{
		Nodes:          nodes,
		Status:         string(st),
		ActiveSessions: active,
	})
}

func (s *Server) newNodeInfo(id string, st status.Status, active int) nodeInfo {
	return nodeInfo{
		ID:               id,
		NumProcs:         s.node.NumProcs,
		ServiceAddr:      s.node.ServiceAddr,
		HeartbeatTimeout: s.node.HeartbeatTimeout.Seconds(),
		SSLEnabled:       s.node.SSLEnabled,
		ActiveSessions:   active,
		Status:           string(st),
	}
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Status    string `json:"status"`
		ForceKill bool   `json:"force_kill"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, &InvalidInputError{Msg: "Malformed request body"})
		return
	}

	st, err := status.Parse(req.Status)
	if err != nil {
		s.respondError(w, r, &InvalidInputError{Msg: err.Error()})
		return
	}

	s.log.Info("api: update manager status", "status", string(st), "force_kill", req.ForceKill)

	// Sessions must be gone before the new status becomes readable.
	if req.ForceKill {
		killed, err := s.registry.KillSessions()
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.log.Info("api: killed all active sessions", "count", killed)
	}

	if err := s.store.UpdateManagerStatus(ctx, st); err != nil {
		s.respondError(w, r, err)
		return
	}

	respondNoContent(w)
}

func (s *Server) handleGetAnnouncement(w http.ResponseWriter, r *http.Request) {
	msg, enabled, err := s.store.Announcement(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		Enabled bool   `json:"enabled"`
		Message string `json:"message"`
	}{Enabled: enabled, Message: msg})
}

func (s *Server) handleUpdateAnnouncement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Enabled bool   `json:"enabled"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, &InvalidInputError{Msg: "Malformed request body"})
		return
	}

	if !req.Enabled {
		if err := s.store.DeleteAnnouncement(ctx); err != nil {
			s.respondError(w, r, err)
			return
		}
		respondNoContent(w)
		return
	}

	if req.Message == "" {
		s.respondError(w, r, &InvalidInputError{Msg: "Empty message not allowed to enable announcement"})
		return
	}
	if err := s.store.SetAnnouncement(ctx, req.Message); err != nil {
		s.respondError(w, r, err)
		return
	}

	respondNoContent(w)
}

// SchedulerOp is a scheduler operation tag.
type SchedulerOp string

// The scheduler operations.
const (
	OpIncludeAgents SchedulerOp = "include-agents"
	OpExcludeAgents SchedulerOp = "exclude-agents"
)

// doScheduleEvent triggers a scheduling pass in the scheduler processes.
const doScheduleEvent = "do_schedule"

func (s *Server) handleSchedulerOp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondMethodNotAllowed(w)
		return
	}
	ctx := r.Context()

	var req struct {
		Op   SchedulerOp     `json:"op"`
		Args json.RawMessage `json:"args"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, &InvalidInputError{Msg: "Malformed request body"})
		return
	}

	switch req.Op {
	case OpIncludeAgents, OpExcludeAgents:
	default:
		s.respondError(w, r, &InvalidInputError{Msg: "Unknown scheduler operation"})
		return
	}

	var ids []string
	if err := json.Unmarshal(req.Args, &ids); err != nil {
		s.respondError(w, r, &InvalidInputError{Msg: "Scheduler operation args must be a list of agent ids"})
		return
	}

	s.log.Info("api: perform scheduler operation", "op", string(req.Op), "agents", len(ids))

	schedulable := req.Op == OpIncludeAgents
	if err := s.registry.SetSchedulable(ids, schedulable); err != nil {
		s.respondError(w, r, err)
		return
	}

	if schedulable {
		if err := s.store.PublishEvent(ctx, doScheduleEvent); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	respondNoContent(w)
}

type managerHealth struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`

	health.HostHealth
}

type agentHealth struct {
	ID     string          `json:"id"`
	Health json.RawMessage `json:"health"`
}

type healthResponse struct {
	Managers []managerHealth `json:"managers"`
	Agents   []agentHealth   `json:"agents"`
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondMethodNotAllowed(w)
		return
	}
	ctx := r.Context()

	query := r.URL.Query()
	agentIDs := query["agent_ids"]

	withAll := false
	if v := query.Get("with_all_agents"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, r, &InvalidInputError{Msg: "with_all_agents must be a boolean"})
			return
		}
		withAll = b
	}

	if withAll && len(agentIDs) > 0 {
		s.respondError(w, r, &InvalidInputError{Msg: "Either one of with_all_agents or agent_ids should be given"})
		return
	}

	if withAll {
		ids, err := s.registry.AliveAgentIDs()
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		agentIDs = ids
	}

	s.log.Info("api: health check", "agents", len(agentIDs))

	self, err := s.health.SelfCheck(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := healthResponse{
		Managers: []managerHealth{
			{
				ID:         s.node.ID,
				Type:       "manager",
				Version:    s.version,
				APIVersion: APIVersion,
				HostHealth: self,
			},
		},
		Agents: []agentHealth{},
	}

	if len(agentIDs) > 0 {
		reports, err := s.health.Check(ctx, agentIDs)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		for _, id := range agentIDs {
			report := reports[id]
			if report == nil {
				report = health.Report(`{}`)
			}
			resp.Agents = append(resp.Agents, agentHealth{ID: id, Health: json.RawMessage(report)})
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondMethodNotAllowed(w)
		return
	}

	var req struct {
		ID           string `json:"id"`
		Addr         string `json:"addr"`
		WatcherAddr  string `json:"watcher_addr"`
		WatcherToken string `json:"watcher_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, &InvalidInputError{Msg: "Malformed request body"})
		return
	}
	if req.ID == "" {
		s.respondError(w, r, &InvalidInputError{Msg: "Agent id is required"})
		return
	}

	err := s.registry.EnsureAgent(&state.Agent{
		ID:           req.ID,
		Addr:         req.Addr,
		Status:       state.AgentAlive,
		WatcherAddr:  req.WatcherAddr,
		WatcherToken: req.WatcherToken,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondNoContent(w)
}
