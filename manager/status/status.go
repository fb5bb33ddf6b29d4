// Package status coordinates the cluster-wide manager status.
//
// The authoritative value lives in the distributed store; every process
// holds a watch-invalidated local cache of it.
package status

import (
	"context"
	"fmt"
	"strings"
)

// Status is the cluster-wide operational mode of the manager.
type Status string

// Status constants.
const (
	Running Status = "RUNNING"
	Frozen  Status = "FROZEN"
)

// Parse parses a status name. Names are matched case-insensitively.
func Parse(name string) (Status, error) {
	switch Status(strings.ToUpper(name)) {
	case Running:
		return Running, nil
	case Frozen:
		return Frozen, nil
	}
	return "", fmt.Errorf("status: unknown status %q", name)
}

// AllowedSet is a set of statuses an operation class tolerates.
type AllowedSet map[Status]struct{}

// NewAllowedSet returns an allowed set containing the given statuses.
func NewAllowedSet(sts ...Status) AllowedSet {
	set := make(AllowedSet, len(sts))
	for _, st := range sts {
		set[st] = struct{}{}
	}
	return set
}

// Contains determines if the set contains the given status.
func (s AllowedSet) Contains(st Status) bool {
	_, ok := s[st]
	return ok
}

func (s AllowedSet) String() string {
	names := make([]string, 0, len(s))
	for st := range s {
		names = append(names, string(st))
	}
	return "{" + strings.Join(names, ",") + "}"
}

// The operation classes.
var (
	// ReadAllowed allows read operations, which tolerate a frozen manager.
	ReadAllowed = NewAllowedSet(Running, Frozen)

	// AllAllowed allows all operations, which require a running manager.
	AllAllowed = NewAllowedSet(Running)
)

// EventType is the type of a store change event.
type EventType int

// The store change event types.
const (
	EventPut EventType = iota
	EventDelete
)

// Event is a change event on the stored manager status.
type Event struct {
	Type   EventType
	Status Status
}

// Store represents a distributed store holding the authoritative
// manager status.
type Store interface {
	// ManagerStatus returns the current manager status.
	ManagerStatus(ctx context.Context) (Status, error)

	// WatchManagerStatus subscribes to manager status change events.
	// The returned channel is closed when the subscription ends.
	WatchManagerStatus(ctx context.Context) (<-chan Event, error)
}
