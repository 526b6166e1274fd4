package engine

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

// Active reports whether a session in this status still occupies its room.
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusRunning
}

type Session struct {
	ID         string
	RoomID     string
	HostID     string
	EntryFee   int64
	MaxPlayers int
	Chambers   int
	Bullets    int
	Status     Status
	WinnerID   string
	Prize      int64
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

type Player struct {
	AccountID string
	TurnIndex int
	Alive     bool
	JoinedAt  time.Time
}

// Payout is a settlement owed to the last survivor. It sits on the round
// until the ledger credit lands.
type Payout struct {
	WinnerID string
	Prize    int64
}

type Round struct {
	Number       int
	CurrentTurn  int
	Chambers     []bool
	Fired        int
	LastActionAt time.Time
	Payout       *Payout
}

type Rules struct {
	MinPlayers int
}

type State struct {
	Session Session
	Players []Player // ordered by TurnIndex
	Round   *Round
	Rules   Rules
}

type CommandType string

const (
	CmdJoin        CommandType = "Join"
	CmdStart       CommandType = "Start"
	CmdDraw        CommandType = "Draw"
	CmdClose       CommandType = "Close"
	CmdForceCancel CommandType = "ForceCancel"
	CmdSettle      CommandType = "Settle"
)

/*
	CmdJoin        -> EvtPlayerJoined
	CmdStart       -> EvtSessionStarted -> EvtRoundStarted
	CmdDraw (miss) -> EvtChamberFired -> EvtTurnAdvanced
	CmdDraw (hit)  -> EvtChamberFired -> EvtPlayerEliminated -> EvtRoundStarted
	                                                          or EvtPayoutDue
	CmdSettle      -> EvtSessionFinished
	CmdClose       -> EvtSessionCancelled
*/

type Command struct {
	Type      CommandType
	AccountID string
	Reason    string // ForceCancel only
}

type EventType string

const (
	EvtPlayerJoined     EventType = "PlayerJoined"
	EvtSessionStarted   EventType = "SessionStarted"
	EvtRoundStarted     EventType = "RoundStarted"
	EvtChamberFired     EventType = "ChamberFired"
	EvtMisfire          EventType = "Misfire"
	EvtPlayerEliminated EventType = "PlayerEliminated"
	EvtTurnAdvanced     EventType = "TurnAdvanced"
	EvtPayoutDue        EventType = "PayoutDue"
	EvtSessionFinished  EventType = "SessionFinished"
	EvtSessionCancelled EventType = "SessionCancelled"
)

type Event struct {
	Type      EventType
	AccountID string
	TurnIndex int
	Round     int
	Hit       bool
	Prize     int64
	Reason    string
}

// Env carries the inputs Apply must not gather itself.
type Env struct {
	Now  time.Time
	Load func(chambers, bullets int) []bool
}

const (
	ReasonHost = "host"
	ReasonIdle = "idle"
)

// Apply validates cmd against s and returns the resulting events and state.
// s is never modified; on error the returned state is s.
func Apply(s State, cmd Command, env Env) ([]Event, State, error) {
	if s.Round != nil && s.Round.Payout != nil && cmd.Type != CmdSettle {
		return nil, s, ErrSettlementPending
	}

	switch cmd.Type {
	case CmdJoin:
		return join(s, cmd, env)
	case CmdStart:
		return start(s, env)
	case CmdDraw:
		return draw(s, cmd, env)
	case CmdSettle:
		return settle(s, env)
	case CmdClose:
		if cmd.AccountID != s.Session.HostID {
			return nil, s, ErrNotHost
		}
		if s.Session.Status != StatusWaiting {
			return nil, s, ErrSessionNotWaiting
		}
		return cancel(s, ReasonHost, env)
	case CmdForceCancel:
		if !s.Session.Status.Active() {
			return nil, s, ErrSessionNotActive
		}
		reason := cmd.Reason
		if reason == "" {
			reason = ReasonIdle
		}
		return cancel(s, reason, env)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func join(s State, cmd Command, env Env) ([]Event, State, error) {
	if cmd.AccountID == "" {
		return nil, s, ErrMissingAccount
	}
	if s.Session.Status != StatusWaiting {
		return nil, s, ErrSessionNotWaiting
	}
	if _, ok := s.Player(cmd.AccountID); ok {
		return nil, s, ErrAlreadyJoined
	}
	if len(s.Players) >= s.Session.MaxPlayers {
		return nil, s, ErrSessionFull
	}

	newState := s.Clone()
	p := Player{
		AccountID: cmd.AccountID,
		TurnIndex: len(s.Players) + 1,
		Alive:     true,
		JoinedAt:  env.Now,
	}
	newState.Players = append(newState.Players, p)

	events := []Event{{Type: EvtPlayerJoined, AccountID: p.AccountID, TurnIndex: p.TurnIndex}}
	return events, newState, nil
}

func start(s State, env Env) ([]Event, State, error) {
	if s.Session.Status != StatusWaiting {
		return nil, s, ErrSessionNotWaiting
	}
	if len(s.Players) == 0 || len(s.Players) < s.Rules.MinPlayers {
		return nil, s, ErrNotEnoughPlayers
	}

	newState := s.Clone()
	for i := range newState.Players {
		newState.Players[i].Alive = true
	}
	newState.Session.Status = StatusRunning
	if newState.Session.StartedAt == nil {
		now := env.Now
		newState.Session.StartedAt = &now
	}

	events := []Event{{Type: EvtSessionStarted}}
	evt, err := nextRound(&newState, env)
	if err != nil {
		return nil, s, err
	}
	events = append(events, evt)
	return events, newState, nil
}

func draw(s State, cmd Command, env Env) ([]Event, State, error) {
	if s.Session.Status != StatusRunning {
		return nil, s, ErrSessionNotRunning
	}
	if s.Round == nil {
		return nil, s, ErrMissingRound
	}
	p, ok := s.Player(cmd.AccountID)
	if !ok || p.TurnIndex != s.Round.CurrentTurn {
		return nil, s, ErrNotYourTurn
	}
	if !p.Alive {
		return nil, s, ErrPlayerEliminated
	}

	newState := s.Clone()
	round := newState.Round
	turn := round.CurrentTurn
	round.LastActionAt = env.Now

	// Exhaustion cannot happen with bullets in [1, chambers]; degrade to a
	// misfire and reload so the session stays playable.
	if round.Fired >= len(round.Chambers) {
		events := []Event{{Type: EvtMisfire, AccountID: p.AccountID, TurnIndex: turn, Round: round.Number}}
		next, ok := nextAlive(newState.Players, turn)
		if !ok {
			return nil, s, ErrNoAlivePlayers
		}
		events = append(events, Event{Type: EvtTurnAdvanced, TurnIndex: next})
		evt, err := nextRound(&newState, env)
		if err != nil {
			return nil, s, err
		}
		newState.Round.CurrentTurn = next
		evt.TurnIndex = next
		return append(events, evt), newState, nil
	}

	hit := round.Chambers[round.Fired]
	round.Fired++
	events := []Event{{Type: EvtChamberFired, AccountID: p.AccountID, TurnIndex: turn, Round: round.Number, Hit: hit}}

	if !hit {
		next, ok := nextAlive(newState.Players, turn)
		if !ok {
			return nil, s, ErrNoAlivePlayers
		}
		round.CurrentTurn = next
		events = append(events, Event{Type: EvtTurnAdvanced, TurnIndex: next})
		return events, newState, nil
	}

	newState.setAlive(p.AccountID, false)
	events = append(events, Event{Type: EvtPlayerEliminated, AccountID: p.AccountID, TurnIndex: turn, Round: round.Number})

	// Practice sessions never end on elimination; the lone player is
	// revived by the next round.
	if len(newState.Players) == 1 {
		newState.Players[0].Alive = true
		evt, err := nextRound(&newState, env)
		if err != nil {
			return nil, s, err
		}
		return append(events, evt), newState, nil
	}

	if newState.AliveCount() <= 1 {
		winner, ok := newState.soleSurvivor()
		if !ok {
			// Nobody left to pay; conclude without settlement.
			now := env.Now
			newState.Session.Status = StatusFinished
			newState.Session.FinishedAt = &now
			return append(events, Event{Type: EvtSessionFinished}), newState, nil
		}
		prize := PrizeFor(newState.Session, newState.Players)
		round.Payout = &Payout{WinnerID: winner.AccountID, Prize: prize}
		events = append(events, Event{Type: EvtPayoutDue, AccountID: winner.AccountID, TurnIndex: winner.TurnIndex, Prize: prize})
		return events, newState, nil
	}

	evt, err := nextRound(&newState, env)
	if err != nil {
		return nil, s, err
	}
	return append(events, evt), newState, nil
}

func settle(s State, env Env) ([]Event, State, error) {
	if s.Round == nil || s.Round.Payout == nil {
		return nil, s, ErrNoPendingPayout
	}
	payout := *s.Round.Payout

	newState := s.Clone()
	now := env.Now
	newState.Round.Payout = nil
	newState.Session.Status = StatusFinished
	newState.Session.WinnerID = payout.WinnerID
	newState.Session.Prize = payout.Prize
	newState.Session.FinishedAt = &now

	events := []Event{{Type: EvtSessionFinished, AccountID: payout.WinnerID, Prize: payout.Prize}}
	return events, newState, nil
}

func cancel(s State, reason string, env Env) ([]Event, State, error) {
	newState := s.Clone()
	now := env.Now
	newState.Session.Status = StatusCancelled
	newState.Session.FinishedAt = &now
	return []Event{{Type: EvtSessionCancelled, Reason: reason}}, newState, nil
}

// nextRound replaces the round state with a freshly loaded chamber sequence
// and hands the turn to the lowest alive turn index.
func nextRound(s *State, env Env) (Event, error) {
	first, ok := lowestAlive(s.Players)
	if !ok {
		return Event{}, ErrNoAlivePlayers
	}
	number := 1
	if s.Round != nil {
		number = s.Round.Number + 1
	}
	chambers := env.Load(s.Session.Chambers, s.Session.Bullets)
	if len(chambers) != s.Session.Chambers {
		return Event{}, fmt.Errorf("%w: loaded %d chambers, want %d", ErrConsistency, len(chambers), s.Session.Chambers)
	}
	s.Round = &Round{
		Number:       number,
		CurrentTurn:  first,
		Chambers:     chambers,
		LastActionAt: env.Now,
	}
	return Event{Type: EvtRoundStarted, Round: number, TurnIndex: first}, nil
}
