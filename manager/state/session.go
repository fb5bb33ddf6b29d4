package state

import (
	"fmt"

	"github.com/hashicorp/go-memdb"
)

// SessionStatus is the lifecycle status of a compute session.
type SessionStatus string

// Session status constants.
const (
	SessionPreparing   SessionStatus = "preparing"
	SessionRunning     SessionStatus = "running"
	SessionTerminating SessionStatus = "terminating"
	SessionTerminated  SessionStatus = "terminated"
	SessionCancelled   SessionStatus = "cancelled"
)

// Occupying determines if a session in this status occupies agent
// resources.
func (s SessionStatus) Occupying() bool {
	switch s {
	case SessionPreparing, SessionRunning, SessionTerminating:
		return true
	}
	return false
}

// Session is used to store info about a compute session.
type Session struct {
	ID      string
	AgentID string
	Status  SessionStatus
}

func sessionsTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: "sessions",
		Indexes: map[string]*memdb.IndexSchema{
			"id": {
				Name:         "id",
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
			"agent": {
				Name:         "agent",
				AllowMissing: true,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "AgentID",
				},
			},
		},
	}
}

// Session returns the session with the given id or nil.
func (s *Store) Session(id string) (*Session, error) {
	tx := s.db.Txn(false)
	defer tx.Abort()

	sess, err := tx.First("sessions", "id", id)
	if err != nil {
		return nil, fmt.Errorf("state: session lookup failed: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	return sess.(*Session), nil
}

// EnsureSession inserts or updates a session in the registry.
func (s *Store) EnsureSession(sess *Session) error {
	tx := s.db.Txn(true)
	defer tx.Abort()

	if err := tx.Insert("sessions", sess); err != nil {
		return fmt.Errorf("state: failed inserting session: %w", err)
	}

	tx.Commit()
	return nil
}

// ActiveSessions returns the number of sessions currently occupying
// agent resources.
func (s *Store) ActiveSessions() (int, error) {
	tx := s.db.Txn(false)
	defer tx.Abort()

	iter, err := tx.Get("sessions", "id")
	if err != nil {
		return 0, fmt.Errorf("state: session lookup failed: %w", err)
	}

	var count int
	for next := iter.Next(); next != nil; next = iter.Next() {
		if next.(*Session).Status.Occupying() {
			count++
		}
	}
	return count, nil
}

// KillSessions terminates every session occupying agent resources, in
// one transaction, returning the number of sessions terminated.
func (s *Store) KillSessions() (int, error) {
	tx := s.db.Txn(true)
	defer tx.Abort()

	iter, err := tx.Get("sessions", "id")
	if err != nil {
		return 0, fmt.Errorf("state: session lookup failed: %w", err)
	}

	var killed []*Session
	for next := iter.Next(); next != nil; next = iter.Next() {
		if next.(*Session).Status.Occupying() {
			killed = append(killed, next.(*Session))
		}
	}

	for _, old := range killed {
		sess := *old
		sess.Status = SessionTerminated
		if err := tx.Insert("sessions", &sess); err != nil {
			return 0, fmt.Errorf("state: failed terminating session: %w", err)
		}
	}

	tx.Commit()
	return len(killed), nil
}
