// Package store persists sessions and the engine's derived records. The
// engine itself performs no I/O; everything it reads or writes flows
// through the Store interface so hosts can swap the backing database.
package store

import (
	"context"
	"errors"

	"github.com/sessionlens/sessiond/internal/engine"
)

// ErrNotFound is returned when a requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Store is the persistence boundary for sessions and derived records.
type Store interface {
	// LoadSession returns the session with its full ordered message
	// history, or ErrNotFound.
	LoadSession(ctx context.Context, sessionID string) (*engine.Session, error)

	// ListSessions returns up to limit sessions ordered by last activity
	// descending, without message bodies.
	ListSessions(ctx context.Context, limit int) ([]*engine.Session, error)

	// FindCandidateSessions returns sessions worth comparing against the
	// target: same project, same user, or activity within the recency
	// window. The target itself is excluded.
	FindCandidateSessions(ctx context.Context, target *engine.Session) ([]*engine.Session, error)

	// SaveSession upserts a session and replaces its message history.
	SaveSession(ctx context.Context, session *engine.Session) error

	// SaveRelationships replaces the stored relationship records for the
	// set's target session.
	SaveRelationships(ctx context.Context, set *engine.RelationshipSet) error

	// SaveStateProfile upserts the latest state profile for a session.
	SaveStateProfile(ctx context.Context, profile *engine.StateProfile) error

	Close() error
}
