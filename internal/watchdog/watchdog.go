// Package watchdog cancels sessions nobody has touched for a while.
package watchdog

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultWindow is how long a session may sit without an action.
const DefaultWindow = 300 * time.Second

// ExpireFunc is called when a session's timer fires. The callee decides
// under its own locking whether the expiry still stands, by calling Claim.
type ExpireFunc func(sessionID string, gen uint64)

type pending struct {
	gen   uint64
	timer Timer
}

// Watchdog keeps exactly one live timer per session. Scheduling again
// supersedes the previous timer.
type Watchdog struct {
	mu       sync.Mutex
	clock    Clock
	window   time.Duration
	onExpire ExpireFunc
	logger   *zap.Logger
	timers   map[string]*pending
	gen      uint64
	stopped  bool
}

func New(clock Clock, window time.Duration, onExpire ExpireFunc, logger *zap.Logger) *Watchdog {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Watchdog{
		clock:    clock,
		window:   window,
		onExpire: onExpire,
		logger:   logger.Named("watchdog"),
		timers:   make(map[string]*pending),
	}
}

// Schedule (re)arms the idle timer of sessionID.
func (w *Watchdog) Schedule(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	if p := w.timers[sessionID]; p != nil {
		p.timer.Stop()
	}
	w.gen++
	gen := w.gen
	p := &pending{gen: gen}
	w.timers[sessionID] = p
	p.timer = w.clock.AfterFunc(w.window, func() { w.fire(sessionID, gen) })
}

func (w *Watchdog) fire(sessionID string, gen uint64) {
	w.mu.Lock()
	p := w.timers[sessionID]
	current := p != nil && p.gen == gen && !w.stopped
	w.mu.Unlock()

	if !current {
		w.logger.Debug("stale idle timer discarded", zap.String("session_id", sessionID))
		return
	}
	w.onExpire(sessionID, gen)
}

// Claim consumes the timer of sessionID if gen is still the live one.
// A false return means an action rescheduled or cancelled it meanwhile.
func (w *Watchdog) Claim(sessionID string, gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.timers[sessionID]
	if p == nil || p.gen != gen {
		return false
	}
	delete(w.timers, sessionID)
	return true
}

// Cancel drops the timer of a concluded session.
func (w *Watchdog) Cancel(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p := w.timers[sessionID]; p != nil {
		p.timer.Stop()
		delete(w.timers, sessionID)
	}
}

// Armed reports whether sessionID has a live timer.
func (w *Watchdog) Armed(sessionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.timers[sessionID]
	return ok
}

// Stop cancels every timer; later Schedule calls are ignored.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for id, p := range w.timers {
		p.timer.Stop()
		delete(w.timers, id)
	}
}
