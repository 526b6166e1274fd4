package engine

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultChambers = 6
	DefaultBullets  = 1
)

type Settings struct {
	EntryFee   int64
	MaxPlayers int
	Chambers   int
	Bullets    int
}

func (st Settings) Validate() error {
	if st.EntryFee <= 0 {
		return ErrInvalidEntryFee
	}
	if st.MaxPlayers <= 0 {
		return ErrInvalidCapacity
	}
	if st.Bullets < 1 || st.Bullets > st.Chambers {
		return ErrInvalidChambers
	}
	return nil
}

// NewSession returns a Waiting session, or a validation error.
func NewSession(id, roomID, hostID string, st Settings, now time.Time) (Session, error) {
	if err := st.Validate(); err != nil {
		return Session{}, err
	}
	return Session{
		ID:         id,
		RoomID:     roomID,
		HostID:     hostID,
		EntryFee:   st.EntryFee,
		MaxPlayers: st.MaxPlayers,
		Chambers:   st.Chambers,
		Bullets:    st.Bullets,
		Status:     StatusWaiting,
		CreatedAt:  now,
	}, nil
}

// LoadChambers picks a uniformly random set of bullets positions out of
// chambers, without replacement.
func LoadChambers(r *rand.Rand, chambers, bullets int) []bool {
	out := make([]bool, chambers)
	if bullets > chambers {
		bullets = chambers
	}
	for _, pos := range r.Perm(chambers)[:bullets] {
		out[pos] = true
	}
	return out
}

// PrizeFor is the whole pot: every player who ever joined paid the fee.
func PrizeFor(s Session, players []Player) int64 {
	return s.EntryFee * int64(len(players))
}

func (s State) Clone() State {
	out := s
	out.Players = append([]Player(nil), s.Players...)
	if s.Round != nil {
		r := *s.Round
		r.Chambers = append([]bool(nil), s.Round.Chambers...)
		if s.Round.Payout != nil {
			p := *s.Round.Payout
			r.Payout = &p
		}
		out.Round = &r
	}
	return out
}

func (s State) Player(accountID string) (Player, bool) {
	for _, p := range s.Players {
		if p.AccountID == accountID {
			return p, true
		}
	}
	return Player{}, false
}

func (s State) AliveCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Alive {
			n++
		}
	}
	return n
}

// PendingPayout returns the payout awaiting a ledger credit, if any.
func (s State) PendingPayout() (Payout, bool) {
	if s.Round == nil || s.Round.Payout == nil {
		return Payout{}, false
	}
	return *s.Round.Payout, true
}

func (s *State) setAlive(accountID string, alive bool) {
	for i := range s.Players {
		if s.Players[i].AccountID == accountID {
			s.Players[i].Alive = alive
		}
	}
}

func (s State) soleSurvivor() (Player, bool) {
	var found []Player
	for _, p := range s.Players {
		if p.Alive {
			found = append(found, p)
		}
	}
	if len(found) != 1 {
		return Player{}, false
	}
	return found[0], true
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Outcome summarises a draw for the caller.
type Outcome struct {
	Hit        bool
	Eliminated bool
	Misfire    bool
	WinnerID   string
	Prize      int64
	Round      int
	NextTurn   int
	Finished   bool
	// Settling is set when the draw decided the game but the prize has not
	// been credited. WinnerID and Prize stay empty until it is.
	Settling bool
}

// OutcomeOf folds the events of one draw (and its settlement, if any).
func OutcomeOf(events []Event) Outcome {
	var o Outcome
	for _, e := range events {
		switch e.Type {
		case EvtChamberFired:
			o.Hit = e.Hit
			o.Round = e.Round
		case EvtMisfire:
			o.Misfire = true
			o.Round = e.Round
		case EvtPlayerEliminated:
			o.Eliminated = true
		case EvtTurnAdvanced, EvtRoundStarted:
			o.NextTurn = e.TurnIndex
		case EvtPayoutDue:
			o.Settling = true
		case EvtSessionFinished:
			o.Finished = true
			o.Settling = false
			if e.AccountID != "" {
				o.WinnerID = e.AccountID
				o.Prize = e.Prize
			}
		}
	}
	return o
}
