// Package gate serializes session mutations. Operations on the same key run
// one at a time; different keys run in parallel.
package gate

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

type Gate struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *Gate {
	return &Gate{locks: make(map[string]*entry)}
}

// Lock blocks until key is free and returns the function that releases it.
func (g *Gate) Lock(key string) (unlock func()) {
	g.mu.Lock()
	e := g.locks[key]
	if e == nil {
		e = &entry{}
		g.locks[key] = e
	}
	e.refs++
	g.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			g.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(g.locks, key)
			}
			g.mu.Unlock()
		})
	}
}
