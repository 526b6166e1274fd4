package store

import (
	"strings"
	"time"

	"github.com/DoyleJ11/roulette-backend/internal/engine"
)

type SessionRecord struct {
	ID         string `gorm:"primaryKey;size:64"`
	RoomID     string `gorm:"not null;index:idx_sessions_room_status,priority:1"`
	HostID     string `gorm:"not null"`
	EntryFee   int64  `gorm:"not null"`
	MaxPlayers int    `gorm:"not null"`
	Chambers   int    `gorm:"not null"`
	Bullets    int    `gorm:"not null"`
	Status     string `gorm:"not null;size:16;index:idx_sessions_room_status,priority:2"`
	WinnerID   string
	Prize      int64
	CreatedAt  time.Time `gorm:"not null;index"`
	StartedAt  *time.Time
	FinishedAt *time.Time
	UpdatedAt  time.Time
}

func (SessionRecord) TableName() string { return "sessions" }

type PlayerRecord struct {
	SessionID string    `gorm:"primaryKey;size:64;uniqueIndex:idx_players_session_turn,priority:1"`
	AccountID string    `gorm:"primaryKey;size:64"`
	TurnIndex int       `gorm:"not null;uniqueIndex:idx_players_session_turn,priority:2"`
	Alive     bool      `gorm:"not null"`
	JoinedAt  time.Time `gorm:"not null"`
}

func (PlayerRecord) TableName() string { return "players" }

type RoundRecord struct {
	SessionID    string `gorm:"primaryKey;size:64"`
	Number       int    `gorm:"not null"`
	CurrentTurn  int    `gorm:"not null"`
	Chambers     string `gorm:"not null;size:64"` // e.g. "001000"
	Fired        int    `gorm:"not null"`
	LastActionAt time.Time
	PayoutWinner string
	PayoutPrize  int64
}

func (RoundRecord) TableName() string { return "round_states" }

func toSessionRecord(s engine.Session) SessionRecord {
	return SessionRecord{
		ID:         s.ID,
		RoomID:     s.RoomID,
		HostID:     s.HostID,
		EntryFee:   s.EntryFee,
		MaxPlayers: s.MaxPlayers,
		Chambers:   s.Chambers,
		Bullets:    s.Bullets,
		Status:     string(s.Status),
		WinnerID:   s.WinnerID,
		Prize:      s.Prize,
		CreatedAt:  s.CreatedAt,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}

func (r SessionRecord) toSession() engine.Session {
	return engine.Session{
		ID:         r.ID,
		RoomID:     r.RoomID,
		HostID:     r.HostID,
		EntryFee:   r.EntryFee,
		MaxPlayers: r.MaxPlayers,
		Chambers:   r.Chambers,
		Bullets:    r.Bullets,
		Status:     engine.Status(r.Status),
		WinnerID:   r.WinnerID,
		Prize:      r.Prize,
		CreatedAt:  r.CreatedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

func toPlayerRecords(sessionID string, players []engine.Player) []PlayerRecord {
	out := make([]PlayerRecord, 0, len(players))
	for _, p := range players {
		out = append(out, PlayerRecord{
			SessionID: sessionID,
			AccountID: p.AccountID,
			TurnIndex: p.TurnIndex,
			Alive:     p.Alive,
			JoinedAt:  p.JoinedAt,
		})
	}
	return out
}

func (r PlayerRecord) toPlayer() engine.Player {
	return engine.Player{
		AccountID: r.AccountID,
		TurnIndex: r.TurnIndex,
		Alive:     r.Alive,
		JoinedAt:  r.JoinedAt,
	}
}

func toRoundRecord(sessionID string, r engine.Round) RoundRecord {
	rec := RoundRecord{
		SessionID:    sessionID,
		Number:       r.Number,
		CurrentTurn:  r.CurrentTurn,
		Chambers:     encodeChambers(r.Chambers),
		Fired:        r.Fired,
		LastActionAt: r.LastActionAt,
	}
	if r.Payout != nil {
		rec.PayoutWinner = r.Payout.WinnerID
		rec.PayoutPrize = r.Payout.Prize
	}
	return rec
}

func (r RoundRecord) toRound() engine.Round {
	round := engine.Round{
		Number:       r.Number,
		CurrentTurn:  r.CurrentTurn,
		Chambers:     decodeChambers(r.Chambers),
		Fired:        r.Fired,
		LastActionAt: r.LastActionAt,
	}
	if r.PayoutWinner != "" {
		round.Payout = &engine.Payout{WinnerID: r.PayoutWinner, Prize: r.PayoutPrize}
	}
	return round
}

func encodeChambers(chambers []bool) string {
	var b strings.Builder
	for _, loaded := range chambers {
		if loaded {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func decodeChambers(s string) []bool {
	out := make([]bool, len(s))
	for i := range s {
		out[i] = s[i] == '1'
	}
	return out
}
