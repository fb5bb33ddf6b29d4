package state

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-memdb"
)

// AgentStatus is the liveness status of an agent.
type AgentStatus string

// Agent status constants.
const (
	AgentAlive AgentStatus = "alive"
	AgentLost  AgentStatus = "lost"
	AgentLeft  AgentStatus = "left"
)

// Agent is used to store info about a worker-node agent.
type Agent struct {
	ID           string
	Addr         string
	Status       AgentStatus
	Schedulable  bool
	WatcherAddr  string
	WatcherToken string
}

// AgentNotFoundError is returned when an operation references agents
// that are not in the registry.
type AgentNotFoundError struct {
	IDs []string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("state: unknown agents: %s", strings.Join(e.IDs, ", "))
}

func agentsTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: "agents",
		Indexes: map[string]*memdb.IndexSchema{
			"id": {
				Name:         "id",
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
			"status": {
				Name:         "status",
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field:     "Status",
					Lowercase: true,
				},
			},
		},
	}
}

// Agent returns the agent with the given id or nil.
func (s *Store) Agent(id string) (*Agent, error) {
	tx := s.db.Txn(false)
	defer tx.Abort()

	agent, err := tx.First("agents", "id", id)
	if err != nil {
		return nil, fmt.Errorf("state: agent lookup failed: %w", err)
	}
	if agent == nil {
		return nil, nil
	}
	return agent.(*Agent), nil
}

// AliveAgentIDs returns a point-in-time snapshot of the ids of all
// agents in the alive status.
func (s *Store) AliveAgentIDs() ([]string, error) {
	tx := s.db.Txn(false)
	defer tx.Abort()

	iter, err := tx.Get("agents", "status", string(AgentAlive))
	if err != nil {
		return nil, fmt.Errorf("state: agent lookup failed: %w", err)
	}

	var ids []string
	for next := iter.Next(); next != nil; next = iter.Next() {
		ids = append(ids, next.(*Agent).ID)
	}
	return ids, nil
}

// EnsureAgent inserts or updates an agent in the registry.
func (s *Store) EnsureAgent(agent *Agent) error {
	tx := s.db.Txn(true)
	defer tx.Abort()

	existing, err := tx.First("agents", "id", agent.ID)
	if err != nil {
		return fmt.Errorf("state: agent lookup failed: %w", err)
	}

	// Keep the schedulable flag across heartbeats; it is only changed
	// through SetSchedulable.
	if existing != nil {
		agent.Schedulable = existing.(*Agent).Schedulable
	}

	if err := tx.Insert("agents", agent); err != nil {
		return fmt.Errorf("state: failed inserting agent: %w", err)
	}

	tx.Commit()
	return nil
}

// DeleteAgent deletes an agent from the registry with the given id.
func (s *Store) DeleteAgent(id string) error {
	tx := s.db.Txn(true)
	defer tx.Abort()

	agent, err := tx.First("agents", "id", id)
	if err != nil {
		return fmt.Errorf("state: agent lookup failed: %w", err)
	}
	if agent == nil {
		return nil
	}

	if err := tx.Delete("agents", agent); err != nil {
		return fmt.Errorf("state: failed deleting agent: %w", err)
	}

	tx.Commit()
	return nil
}

// SetSchedulable sets the schedulable flag on exactly the agents with
// the given ids, in one transaction. If any id is unknown the whole
// transaction is aborted and an AgentNotFoundError returned.
func (s *Store) SetSchedulable(ids []string, schedulable bool) error {
	tx := s.db.Txn(true)
	defer tx.Abort()

	var missing []string
	for _, id := range ids {
		raw, err := tx.First("agents", "id", id)
		if err != nil {
			return fmt.Errorf("state: agent lookup failed: %w", err)
		}
		if raw == nil {
			missing = append(missing, id)
			continue
		}
		if len(missing) > 0 {
			continue
		}

		agent := *raw.(*Agent)
		agent.Schedulable = schedulable
		if err := tx.Insert("agents", &agent); err != nil {
			return fmt.Errorf("state: failed updating agent: %w", err)
		}
	}

	if len(missing) > 0 {
		return &AgentNotFoundError{IDs: missing}
	}

	tx.Commit()
	return nil
}
