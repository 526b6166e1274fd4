package ledger

import (
	"context"
	"sync"
)

type Memory struct {
	mu       sync.Mutex
	balances map[string]int64
	refs     map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]int64),
		refs:     make(map[string]struct{}),
	}
}

func (m *Memory) GetBalance(_ context.Context, account string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}

func (m *Memory) ChangeBalance(_ context.Context, account string, delta int64, ref string) (int64, error) {
	if account == "" {
		return 0, ErrInvalidAccount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ref != "" {
		if _, ok := m.refs[ref]; ok {
			return 0, ErrDuplicateEntry
		}
	}
	next := m.balances[account] + delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	m.balances[account] = next
	if ref != "" {
		m.refs[ref] = struct{}{}
	}
	return next, nil
}
