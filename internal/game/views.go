package game

import (
	"github.com/DoyleJ11/roulette-backend/internal/engine"
	"github.com/DoyleJ11/roulette-backend/pkg/types"
)

const reasonMisfire = "misfire"

// View is the public read model of st.
func View(st engine.State) types.SessionView {
	sess := st.Session
	v := types.SessionView{
		ID:         sess.ID,
		RoomID:     sess.RoomID,
		HostID:     sess.HostID,
		EntryFee:   sess.EntryFee,
		MaxPlayers: sess.MaxPlayers,
		Chambers:   sess.Chambers,
		Bullets:    sess.Bullets,
		Status:     string(sess.Status),
		Players:    make([]types.PlayerView, 0, len(st.Players)),
		Pot:        engine.PrizeFor(sess, st.Players),
		WinnerID:   sess.WinnerID,
		Prize:      sess.Prize,
		CreatedAt:  sess.CreatedAt,
		StartedAt:  sess.StartedAt,
		FinishedAt: sess.FinishedAt,
	}
	for _, p := range st.Players {
		v.Players = append(v.Players, types.PlayerView{AccountID: p.AccountID, TurnIndex: p.TurnIndex, Alive: p.Alive})
	}
	if r := st.Round; r != nil && sess.Status == engine.StatusRunning {
		v.Round = r.Number
		v.CurrentTurn = r.CurrentTurn
		v.ShotsFired = r.Fired
		v.Settling = r.Payout != nil
	}
	return v
}

// ErrorBody is the JSON form of err. Unclassified errors are not echoed.
func ErrorBody(err error) types.Error {
	kind := engine.Kind(err)
	msg := err.Error()
	if kind == engine.KindUnknown || kind == engine.KindConsistency {
		msg = "internal error"
	}
	return types.Error{Code: engine.Code(err), Kind: string(kind), Message: msg}
}

func ToOutcome(sessionID string, o engine.Outcome) types.Outcome {
	return types.Outcome{
		SessionID:  sessionID,
		Hit:        o.Hit,
		Eliminated: o.Eliminated,
		Misfire:    o.Misfire,
		WinnerID:   o.WinnerID,
		Prize:      o.Prize,
		Round:      o.Round,
		NextTurn:   o.NextTurn,
		Finished:   o.Finished,
		Settling:   o.Settling,
	}
}

// RoomEvents converts engine events into what room watchers see. Internal
// bookkeeping events are dropped.
func RoomEvents(sess engine.Session, events []engine.Event, env engine.Env) []types.RoomEvent {
	out := make([]types.RoomEvent, 0, len(events))
	for _, e := range events {
		re := types.RoomEvent{
			RoomID:    sess.RoomID,
			SessionID: sess.ID,
			AccountID: e.AccountID,
			TurnIndex: e.TurnIndex,
			Round:     e.Round,
			At:        env.Now,
		}
		switch e.Type {
		case engine.EvtPlayerJoined:
			re.Type = types.EventPlayerJoined
		case engine.EvtSessionStarted:
			re.Type = types.EventSessionStarted
		case engine.EvtRoundStarted:
			re.Type = types.EventRoundStarted
		case engine.EvtChamberFired:
			re.Type = types.EventDrawResolved
			re.Hit = e.Hit
		case engine.EvtMisfire:
			re.Type = types.EventDrawResolved
			re.Reason = reasonMisfire
		case engine.EvtTurnAdvanced:
			re.Type = types.EventTurnAdvanced
		case engine.EvtSessionFinished:
			re.Type = types.EventSessionFinished
			re.Prize = e.Prize
		case engine.EvtSessionCancelled:
			re.Type = types.EventSessionCancelled
			re.Reason = e.Reason
		default:
			continue
		}
		out = append(out, re)
	}
	return out
}

func (s *Service) publish(sess engine.Session, events []engine.Event, env engine.Env) {
	for _, ev := range RoomEvents(sess, events, env) {
		s.notifier.Publish(ev)
	}
}
