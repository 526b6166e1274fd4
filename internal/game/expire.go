package game

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/roulette-backend/internal/engine"
)

const expireTimeout = 30 * time.Second

// expire runs when a session's idle timer fires. It does nothing if an
// action got to the gate first.
func (s *Service) expire(sessionID string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()
	log := s.logger.With(zap.String("session_id", sessionID))

	st, err := s.store.Load(ctx, sessionID)
	if err != nil {
		s.retryExpire(log, sessionID, err)
		return
	}
	unlock := s.gate.Lock(st.Session.RoomID)
	defer unlock()

	if !s.watchdog.Claim(sessionID, gen) {
		log.Debug("idle timer superseded")
		return
	}
	st, err = s.store.Load(ctx, sessionID)
	if err != nil {
		s.retryExpire(log, sessionID, err)
		return
	}
	st.Rules = s.rules()

	// The game already ended; only the payout is outstanding.
	if _, ok := st.PendingPayout(); ok {
		if _, _, err := s.settle(ctx, st); err != nil && engine.Kind(err) != engine.KindConsistency {
			s.watchdog.Schedule(sessionID)
		}
		return
	}
	if !st.Session.Status.Active() {
		return
	}

	env := s.env()
	events, next, err := engine.Apply(st, engine.Command{Type: engine.CmdForceCancel, Reason: engine.ReasonIdle}, env)
	if err != nil {
		log.Error("idle cancel rejected", zap.Error(err))
		return
	}
	if err := s.store.Save(ctx, next); err != nil {
		log.Error("idle cancel not saved", zap.Error(err))
		s.watchdog.Schedule(sessionID)
		return
	}

	log.Info("session cancelled after idle timeout",
		zap.String("room_id", st.Session.RoomID),
		zap.String("status", string(st.Session.Status)),
		zap.Int("players", len(st.Players)),
	)
	s.refund(ctx, next)
	s.publish(next.Session, events, env)
}

// retryExpire re-arms the timer after a failed load so the session is
// looked at again one window later. Sessions that no longer exist are
// dropped.
func (s *Service) retryExpire(log *zap.Logger, sessionID string, err error) {
	if errors.Is(err, engine.ErrSessionNotFound) {
		log.Warn("idle session gone", zap.Error(err))
		s.watchdog.Cancel(sessionID)
		return
	}
	log.Warn("idle session not loaded, retrying", zap.Error(err))
	s.watchdog.Schedule(sessionID)
}
