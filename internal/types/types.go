package types

import (
	pub "github.com/DoyleJ11/roulette-backend/pkg/types"
)

// ClientMessage is a command sent over the room websocket.
type ClientMessage struct {
	Type      string `json:"type"` // "Join" | "Start" | "Draw"
	SessionID string `json:"session_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

type ServerMessage struct {
	Type      string         `json:"type"` // "RoomEvent" | "Joined" | "Started" | "Outcome" | "Error"
	Version   int            `json:"version,omitempty"`
	Event     *pub.RoomEvent `json:"event,omitempty"`
	Outcome   *pub.Outcome   `json:"outcome,omitempty"`
	TurnIndex int            `json:"turn_index,omitempty"`
	Error     *pub.Error     `json:"error,omitempty"`
}
