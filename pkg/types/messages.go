package types

import "time"

// Outcome is the result of one draw.
type Outcome struct {
	SessionID  string `json:"session_id"`
	Hit        bool   `json:"hit"`
	Eliminated bool   `json:"eliminated"`
	Misfire    bool   `json:"misfire,omitempty"`
	WinnerID   string `json:"winner_id,omitempty"`
	Prize      int64  `json:"prize,omitempty"`
	Round      int    `json:"round"`
	NextTurn   int    `json:"next_turn,omitempty"`
	Finished   bool   `json:"finished"`
	Settling   bool   `json:"settling,omitempty"`
}

type RoomEventType string

const (
	EventSessionCreated   RoomEventType = "SessionCreated"
	EventPlayerJoined     RoomEventType = "PlayerJoined"
	EventSessionStarted   RoomEventType = "SessionStarted"
	EventDrawResolved     RoomEventType = "DrawResolved"
	EventTurnAdvanced     RoomEventType = "TurnAdvanced"
	EventRoundStarted     RoomEventType = "RoundStarted"
	EventSessionFinished  RoomEventType = "SessionFinished"
	EventSessionCancelled RoomEventType = "SessionCancelled"
)

// RoomEvent is pushed to everyone watching a room.
type RoomEvent struct {
	Type      RoomEventType `json:"type"`
	RoomID    string        `json:"room_id"`
	SessionID string        `json:"session_id"`
	AccountID string        `json:"account_id,omitempty"`
	TurnIndex int           `json:"turn_index,omitempty"`
	Round     int           `json:"round,omitempty"`
	Hit       bool          `json:"hit,omitempty"`
	Prize     int64         `json:"prize,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	At        time.Time     `json:"at"`
}

// Error is the body of every rejected request.
type Error struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
