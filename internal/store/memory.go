package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/DoyleJ11/roulette-backend/internal/engine"
)

// Memory keeps sessions in process memory. Used for local runs and tests.
type Memory struct {
	mu      sync.RWMutex
	states  map[string]engine.State
	seq     map[string]int
	nextSeq int
}

func NewMemory() *Memory {
	return &Memory{
		states: make(map[string]engine.State),
		seq:    make(map[string]int),
	}
}

func (m *Memory) Create(_ context.Context, s engine.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[s.Session.ID]; ok {
		return fmt.Errorf("%w: session %s already exists", engine.ErrExternal, s.Session.ID)
	}
	s.Rules = engine.Rules{}
	m.states[s.Session.ID] = s.Clone()
	m.nextSeq++
	m.seq[s.Session.ID] = m.nextSeq
	return nil
}

func (m *Memory) Load(_ context.Context, sessionID string) (engine.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.states[sessionID]
	if !ok {
		return engine.State{}, engine.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) Save(_ context.Context, s engine.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[s.Session.ID]; !ok {
		m.nextSeq++
		m.seq[s.Session.ID] = m.nextSeq
	}
	s.Rules = engine.Rules{}
	m.states[s.Session.ID] = s.Clone()
	return nil
}

func (m *Memory) ListByRoom(_ context.Context, roomID string, statuses ...engine.Status) ([]engine.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type entry struct {
		seq  int
		sess engine.Session
	}
	var found []entry
	for id, s := range m.states {
		if s.Session.RoomID != roomID {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, s.Session.Status) {
			continue
		}
		found = append(found, entry{seq: m.seq[id], sess: s.Session})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })

	out := make([]engine.Session, 0, len(found))
	for _, e := range found {
		out = append(out, e.sess)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
