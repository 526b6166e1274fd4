package game

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/roulette-backend/internal/engine"
	"github.com/DoyleJ11/roulette-backend/internal/ledger"
	"github.com/DoyleJ11/roulette-backend/pkg/types"
)

// CreateSession opens a waiting session in roomID. The host does not join
// automatically.
func (s *Service) CreateSession(ctx context.Context, roomID, hostID string, entryFee int64, maxPlayers int) (engine.Session, error) {
	unlock := s.gate.Lock(roomID)
	defer unlock()

	settings := engine.Settings{
		EntryFee:   entryFee,
		MaxPlayers: maxPlayers,
		Chambers:   s.cfg.Chambers,
		Bullets:    s.cfg.Bullets,
	}
	sess, err := engine.NewSession(s.newID(), roomID, hostID, settings, s.clock.Now())
	if err != nil {
		return engine.Session{}, err
	}
	sess, err = s.registry.CreateSession(ctx, sess)
	if err != nil {
		s.reject("create", roomID, hostID, err)
		return engine.Session{}, err
	}

	s.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("room_id", roomID),
		zap.String("account_id", hostID),
		zap.Int64("entry_fee", entryFee),
		zap.Int("max_players", maxPlayers),
	)
	s.notifier.Publish(types.RoomEvent{
		Type:      types.EventSessionCreated,
		RoomID:    roomID,
		SessionID: sess.ID,
		AccountID: hostID,
		Prize:     entryFee,
		At:        sess.CreatedAt,
	})
	s.watchdog.Schedule(sess.ID)
	return sess, nil
}

// Join escrows the entry fee from account and seats it in the session. It
// returns the player's turn index. If the seat cannot be recorded the fee is
// returned.
func (s *Service) Join(ctx context.Context, sessionID, account string) (int, error) {
	st, unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	cmd := engine.Command{Type: engine.CmdJoin, AccountID: account}
	env := s.env()
	// Validate before touching the ledger.
	if _, _, err := engine.Apply(st, cmd, env); err != nil {
		s.reject("join", sessionID, account, err)
		return 0, err
	}

	fee := st.Session.EntryFee
	balance, err := s.ledger.GetBalance(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("%w: balance: %w", engine.ErrExternal, err)
	}
	if balance < fee {
		return 0, fmt.Errorf("%w: balance %d, entry fee %d", engine.ErrInsufficientFunds, balance, fee)
	}
	if _, err := s.ledger.ChangeBalance(ctx, account, -fee, ""); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return 0, fmt.Errorf("%w: entry fee %d", engine.ErrInsufficientFunds, fee)
		}
		return 0, fmt.Errorf("%w: escrow: %w", engine.ErrExternal, err)
	}

	events, next, err := engine.Apply(st, cmd, env)
	if err == nil {
		err = s.store.Save(ctx, next)
	}
	if err != nil {
		return 0, s.returnEscrow(ctx, st.Session, account, err)
	}

	p, _ := next.Player(account)
	s.logger.Info("player joined",
		zap.String("session_id", sessionID),
		zap.String("account_id", account),
		zap.Int("turn_index", p.TurnIndex),
	)
	s.publish(next.Session, events, env)
	s.watchdog.Schedule(sessionID)
	return p.TurnIndex, nil
}

// JoinRoom joins the most recently created waiting session of roomID.
func (s *Service) JoinRoom(ctx context.Context, roomID, account string) (engine.Session, int, error) {
	joinable, err := s.registry.JoinableSessions(ctx, roomID)
	if err != nil {
		return engine.Session{}, 0, err
	}
	if len(joinable) == 0 {
		return engine.Session{}, 0, engine.ErrNoJoinableSession
	}
	sess := joinable[len(joinable)-1]
	turn, err := s.Join(ctx, sess.ID, account)
	return sess, turn, err
}

func (s *Service) returnEscrow(ctx context.Context, sess engine.Session, account string, cause error) error {
	if _, err := s.ledger.ChangeBalance(ctx, account, sess.EntryFee, ""); err != nil {
		s.logger.Error("escrow refund failed",
			zap.String("session_id", sess.ID),
			zap.String("account_id", account),
			zap.Int64("amount", sess.EntryFee),
			zap.Error(err),
		)
		return errors.Join(cause, fmt.Errorf("%w: escrow refund: %w", engine.ErrExternal, err))
	}
	return cause
}

// Start begins round one.
func (s *Service) Start(ctx context.Context, sessionID string) error {
	st, unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	env := s.env()
	events, next, err := engine.Apply(st, engine.Command{Type: engine.CmdStart}, env)
	if err != nil {
		s.reject("start", sessionID, "", err)
		if engine.Kind(err) == engine.KindConsistency {
			s.quarantine(ctx, st, err)
		}
		return err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return err
	}

	s.logger.Info("session started", zap.String("session_id", sessionID), zap.Int("players", len(next.Players)))
	s.publish(next.Session, events, env)
	s.watchdog.Schedule(sessionID)
	return nil
}

// Draw fires the next chamber for account. When the draw ends the session the
// prize is settled before Finished is recorded; if the ledger keeps failing
// the returned outcome is still valid and err wraps ErrSettlementPending.
func (s *Service) Draw(ctx context.Context, sessionID, account string) (engine.Outcome, error) {
	st, unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return engine.Outcome{}, err
	}
	defer unlock()

	env := s.env()
	events, next, err := engine.Apply(st, engine.Command{Type: engine.CmdDraw, AccountID: account}, env)
	if err != nil {
		s.reject("draw", sessionID, account, err)
		if engine.Kind(err) == engine.KindConsistency {
			s.quarantine(ctx, st, err)
		}
		return engine.Outcome{}, err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return engine.Outcome{}, err
	}

	log := s.logger.With(zap.String("session_id", sessionID), zap.String("account_id", account))
	if engine.ContainsEvent(events, engine.EvtMisfire) {
		log.Warn("chamber exhausted, treated as misfire", zap.Error(engine.ErrChamberExhausted))
	}
	s.publish(next.Session, events, env)

	if _, ok := next.PendingPayout(); ok {
		settled, settleEvents, err := s.settle(ctx, next)
		events = append(events, settleEvents...)
		if err != nil {
			if engine.Kind(err) != engine.KindConsistency {
				s.watchdog.Schedule(sessionID)
			}
			return engine.OutcomeOf(events), err
		}
		next = settled
	}

	if next.Session.Status.Active() {
		s.watchdog.Schedule(sessionID)
	} else {
		s.watchdog.Cancel(sessionID)
	}
	o := engine.OutcomeOf(events)
	log.Debug("draw resolved", zap.Bool("hit", o.Hit), zap.Bool("finished", o.Finished), zap.Int("round", o.Round))
	return o, nil
}

// CloseSession cancels a waiting session on behalf of its host.
func (s *Service) CloseSession(ctx context.Context, sessionID, requester string) error {
	st, unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	env := s.env()
	events, next, err := engine.Apply(st, engine.Command{Type: engine.CmdClose, AccountID: requester}, env)
	if err != nil {
		s.reject("close", sessionID, requester, err)
		return err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return err
	}

	s.watchdog.Cancel(sessionID)
	s.logger.Info("session closed by host", zap.String("session_id", sessionID))
	s.refund(ctx, next)
	s.publish(next.Session, events, env)
	return nil
}

func (s *Service) ActiveSession(ctx context.Context, roomID string) (*engine.Session, error) {
	return s.registry.ActiveSession(ctx, roomID)
}

func (s *Service) JoinableSessions(ctx context.Context, roomID string) ([]engine.Session, error) {
	return s.registry.JoinableSessions(ctx, roomID)
}

// Snapshot reads a session without taking the gate. It is for display only.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (engine.State, error) {
	return s.store.Load(ctx, sessionID)
}

func (s *Service) Balance(ctx context.Context, account string) (int64, error) {
	bal, err := s.ledger.GetBalance(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("%w: balance: %w", engine.ErrExternal, err)
	}
	return bal, nil
}

// lockSession takes the gate of the session's room and loads the session
// again under it. A payout left pending by an earlier failure is retried
// first; if it still fails the session stays locked out.
func (s *Service) lockSession(ctx context.Context, sessionID string) (engine.State, func(), error) {
	st, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return engine.State{}, nil, err
	}
	unlock := s.gate.Lock(st.Session.RoomID)

	st, err = s.store.Load(ctx, sessionID)
	if err != nil {
		unlock()
		return engine.State{}, nil, err
	}
	st.Rules = s.rules()

	if _, ok := st.PendingPayout(); ok {
		settled, _, err := s.settle(ctx, st)
		if err != nil {
			unlock()
			return engine.State{}, nil, err
		}
		st = settled
	}
	return st, unlock, nil
}

// settle pays out the pending prize of st and records the session as
// Finished. Callers hold the gate.
func (s *Service) settle(ctx context.Context, st engine.State) (engine.State, []engine.Event, error) {
	log := s.logger.With(zap.String("session_id", st.Session.ID))

	if err := s.settler.Settle(ctx, st); err != nil {
		if errors.Is(err, engine.ErrInvalidPayout) {
			log.Error("refusing payout", zap.Error(err))
			s.quarantine(ctx, st, err)
			return st, nil, err
		}
		log.Warn("payout not settled, session held", zap.Error(err))
		return st, nil, err
	}

	env := s.env()
	events, next, err := engine.Apply(st, engine.Command{Type: engine.CmdSettle}, env)
	if err != nil {
		return st, nil, err
	}
	// A failed save leaves the payout pending; the retry finds the ledger
	// entry already written and only records Finished.
	if err := s.store.Save(ctx, next); err != nil {
		log.Error("payout credited but session not saved", zap.Error(err))
		return st, nil, err
	}

	s.watchdog.Cancel(st.Session.ID)
	log.Info("session finished",
		zap.String("account_id", next.Session.WinnerID),
		zap.Int64("prize", next.Session.Prize),
	)
	s.publish(next.Session, events, env)
	return next, events, nil
}

// quarantine cancels a session whose state can no longer be trusted.
func (s *Service) quarantine(ctx context.Context, st engine.State, cause error) {
	log := s.logger.With(zap.String("session_id", st.Session.ID), zap.String("room_id", st.Session.RoomID))
	log.Error("session state inconsistent, cancelling", zap.Error(cause))

	if !st.Session.Status.Active() {
		return
	}
	st = st.Clone()
	if st.Round != nil {
		st.Round.Payout = nil
	}
	env := s.env()
	events, next, err := engine.Apply(st, engine.Command{Type: engine.CmdForceCancel, Reason: ReasonConsistency}, env)
	if err != nil {
		log.Error("cancel failed", zap.Error(err))
		return
	}
	if err := s.store.Save(ctx, next); err != nil {
		log.Error("cancel not saved", zap.Error(err))
		return
	}
	s.watchdog.Cancel(st.Session.ID)
	s.refund(ctx, next)
	s.publish(next.Session, events, env)
}

func (s *Service) refund(ctx context.Context, st engine.State) {
	if !s.cfg.RefundOnCancel || len(st.Players) == 0 {
		return
	}
	if err := s.settler.Refund(ctx, st); err != nil {
		s.logger.Error("refund incomplete", zap.String("session_id", st.Session.ID), zap.Error(err))
	}
}

func (s *Service) reject(op, sessionID, account string, err error) {
	fields := []zap.Field{zap.String("op", op), zap.String("session_id", sessionID), zap.Error(err)}
	if account != "" {
		fields = append(fields, zap.String("account_id", account))
	}
	switch engine.Kind(err) {
	case engine.KindConsistency:
		s.logger.Error("action failed", fields...)
	case engine.KindExternal, engine.KindUnknown:
		s.logger.Warn("action failed", fields...)
	default:
		s.logger.Debug("action rejected", fields...)
	}
}
