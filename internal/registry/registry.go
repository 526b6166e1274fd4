// Package registry resolves the sessions of a room and keeps each room to at
// most one waiting-or-running session.
package registry

import (
	"context"
	"fmt"

	"github.com/DoyleJ11/roulette-backend/internal/engine"
	"github.com/DoyleJ11/roulette-backend/internal/store"
)

type Registry struct {
	store store.Store
}

func New(s store.Store) *Registry {
	return &Registry{store: s}
}

// ActiveSession returns the room's waiting or running session, or nil.
func (r *Registry) ActiveSession(ctx context.Context, roomID string) (*engine.Session, error) {
	sessions, err := r.store.ListByRoom(ctx, roomID, engine.StatusWaiting, engine.StatusRunning)
	if err != nil {
		return nil, err
	}
	switch len(sessions) {
	case 0:
		return nil, nil
	case 1:
		return &sessions[0], nil
	default:
		return nil, fmt.Errorf("%w: room %s has %d", engine.ErrMultipleActive, roomID, len(sessions))
	}
}

// JoinableSessions returns the room's waiting sessions, oldest first.
func (r *Registry) JoinableSessions(ctx context.Context, roomID string) ([]engine.Session, error) {
	return r.store.ListByRoom(ctx, roomID, engine.StatusWaiting)
}

// CreateSession stores a new waiting session. Callers hold the room's gate so
// the active check and the insert are one step.
func (r *Registry) CreateSession(ctx context.Context, sess engine.Session) (engine.Session, error) {
	if sess.Status != engine.StatusWaiting {
		return engine.Session{}, engine.ErrSessionNotWaiting
	}
	active, err := r.ActiveSession(ctx, sess.RoomID)
	if err != nil {
		return engine.Session{}, err
	}
	if active != nil {
		return engine.Session{}, fmt.Errorf("%w: %s", engine.ErrSessionAlreadyActive, active.ID)
	}
	if err := r.store.Create(ctx, engine.State{Session: sess}); err != nil {
		return engine.Session{}, err
	}
	return sess, nil
}
