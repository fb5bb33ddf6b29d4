package status

import (
	"context"
	"fmt"
)

// FrozenError is returned when an operation is rejected because the
// manager is intentionally frozen by an administrator.
type FrozenError struct{}

func (e *FrozenError) Error() string {
	return "status: the manager is frozen"
}

// UnavailableError is returned when an operation is rejected because
// the manager status is outside the operation's allowed set.
type UnavailableError struct {
	Status  Status
	Allowed AllowedSet
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("status: the manager is not in the required status %s: %s", e.Allowed, e.Status)
}

// Gate admits or rejects operations based on the current manager status.
//
// The gate is a pure predicate over the cached status; it performs no
// other I/O and never mutates status.
type Gate struct {
	cache *Cache
}

// NewGate returns a gate reading status through cache.
func NewGate(cache *Cache) *Gate {
	return &Gate{cache: cache}
}

// Check admits the operation if the current status is in allowed.
// A frozen manager that is not tolerated is rejected with FrozenError,
// any other disallowed status with UnavailableError.
func (g *Gate) Check(ctx context.Context, allowed AllowedSet) error {
	st, err := g.cache.Status(ctx)
	if err != nil {
		return err
	}

	if allowed.Contains(st) {
		return nil
	}

	if st == Frozen {
		return &FrozenError{}
	}
	return &UnavailableError{Status: st, Allowed: allowed}
}

// CheckMutation rejects all mutating operations while the manager is
// frozen, regardless of the operation's own allowed set.
func (g *Gate) CheckMutation(ctx context.Context) error {
	st, err := g.cache.Status(ctx)
	if err != nil {
		return err
	}

	if st == Frozen {
		return &FrozenError{}
	}
	return nil
}
