package types

import "time"

// SessionView is the public read model of a session. Chamber contents are
// never exposed; only how many have been fired.
type SessionView struct {
	ID          string       `json:"id"`
	RoomID      string       `json:"room_id"`
	HostID      string       `json:"host_id"`
	EntryFee    int64        `json:"entry_fee"`
	MaxPlayers  int          `json:"max_players"`
	Chambers    int          `json:"chambers"`
	Bullets     int          `json:"bullets"`
	Status      string       `json:"status"`
	Players     []PlayerView `json:"players"`
	Round       int          `json:"round,omitempty"`
	CurrentTurn int          `json:"current_turn,omitempty"`
	ShotsFired  int          `json:"shots_fired,omitempty"`
	Pot         int64        `json:"pot"`
	WinnerID    string       `json:"winner_id,omitempty"`
	Prize       int64        `json:"prize,omitempty"`
	Settling    bool         `json:"settling,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

type PlayerView struct {
	AccountID string `json:"account_id"`
	TurnIndex int    `json:"turn_index"`
	Alive     bool   `json:"alive"`
}
