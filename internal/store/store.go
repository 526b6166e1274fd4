// Package store persists sessions, their players and the round cursor.
package store

import (
	"context"

	"github.com/DoyleJ11/roulette-backend/internal/engine"
)

// Store is the durable home of engine.State. Implementations write a whole
// state atomically; rules are not persisted and come back zero.
type Store interface {
	// Create inserts a new session. It fails if the id is taken.
	Create(ctx context.Context, s engine.State) error

	// Load returns engine.ErrSessionNotFound for unknown ids.
	Load(ctx context.Context, sessionID string) (engine.State, error)

	// Save replaces the session, its players and its round in one transaction.
	Save(ctx context.Context, s engine.State) error

	// ListByRoom returns sessions of a room in creation order, oldest first,
	// restricted to the given statuses when any are passed.
	ListByRoom(ctx context.Context, roomID string, statuses ...engine.Status) ([]engine.Session, error)

	Close() error
}
