// Package state implements the process-local registry of agents and
// compute sessions, backed by an in-memory database.
package state

import (
	"github.com/hashicorp/go-memdb"
)

// Store is the agent and session registry.
type Store struct {
	schema *memdb.DBSchema
	db     *memdb.MemDB
}

// New returns an agent and session registry.
func New() (*Store, error) {
	dbSchema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"agents":   agentsTableSchema(),
			"sessions": sessionsTableSchema(),
		},
	}

	db, err := memdb.NewMemDB(dbSchema)
	if err != nil {
		return nil, err
	}

	return &Store{
		schema: dbSchema,
		db:     db,
	}, nil
}
