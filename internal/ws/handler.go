// Package ws streams room events to websocket clients and accepts game
// commands from them.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/roulette-backend/internal/engine"
	"github.com/DoyleJ11/roulette-backend/internal/game"
	"github.com/DoyleJ11/roulette-backend/internal/hub"
	"github.com/DoyleJ11/roulette-backend/internal/lobby"
	"github.com/DoyleJ11/roulette-backend/internal/types"
)

const writeTimeout = 3 * time.Second

func Handler(svc *game.Service, h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	logger = logger.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		room := r.URL.Query().Get("room")
		if room == "" {
			http.Error(w, "missing room", http.StatusBadRequest)
			return
		}
		lb := h.Lobby(room)
		if lb == nil {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		log := logger.With(zap.String("room_id", room), zap.String("client_id", clientID))
		out := make(chan lobby.Snapshot, 16)
		if !lb.Send(lobby.Join{ClientID: clientID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "room closed")
			return
		}
		defer lb.Send(lobby.Leave{ClientID: clientID})
		log.Debug("client connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. The outbox closes when the lobby drops us; a lobby
		// that stopped before seeing our Join never closes it.
		go func() {
			defer cancel()
			for {
				select {
				case snap, ok := <-out:
					if !ok {
						return
					}
					ev := snap.Event
					msg := types.ServerMessage{Type: "RoomEvent", Version: snap.Version, Event: &ev}
					if err := write(ctx, conn, msg); err != nil {
						return
					}
				case <-lb.Done():
					return
				case <-ctx.Done():
					return
				}
			}
		}()

		// Reader loop
		for {
			var cm types.ClientMessage
			if err := wsjson.Read(ctx, conn, &cm); err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if ctx.Err() == nil {
						log.Debug("read failed", zap.Error(err))
					}
				}
				return
			}

			reply := handle(ctx, svc, cm)
			if err := write(ctx, conn, reply); err != nil {
				return
			}
		}
	}
}

func handle(ctx context.Context, svc *game.Service, cm types.ClientMessage) types.ServerMessage {
	if cm.SessionID == "" {
		return errorMessage(engine.ErrUnsupportedCommand, "session_id is required")
	}
	switch cm.Type {
	case "Join":
		turn, err := svc.Join(ctx, cm.SessionID, cm.AccountID)
		if err != nil {
			return errorMessage(err, "")
		}
		return types.ServerMessage{Type: "Joined", TurnIndex: turn}

	case "Start":
		if err := svc.Start(ctx, cm.SessionID); err != nil {
			return errorMessage(err, "")
		}
		return types.ServerMessage{Type: "Started"}

	case "Draw":
		o, err := svc.Draw(ctx, cm.SessionID, cm.AccountID)
		if err != nil && !(errors.Is(err, engine.ErrSettlementPending) && o.Round > 0) {
			return errorMessage(err, "")
		}
		outcome := game.ToOutcome(cm.SessionID, o)
		return types.ServerMessage{Type: "Outcome", Outcome: &outcome}

	default:
		return errorMessage(engine.ErrUnsupportedCommand, "unknown type "+cm.Type)
	}
}

func errorMessage(err error, msg string) types.ServerMessage {
	body := game.ErrorBody(err)
	if msg != "" {
		body.Message = msg
	}
	return types.ServerMessage{Type: "Error", Error: &body}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
