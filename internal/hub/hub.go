// Package hub owns one lobby per room and routes room events to it.
package hub

import (
	"context"

	"github.com/DoyleJ11/roulette-backend/internal/lobby"
	"github.com/DoyleJ11/roulette-backend/pkg/types"
)

type HubMsg interface{ isHubMsg() }

type GetLobby struct {
	RoomID string
	Reply  chan *lobby.Lobby
}

type EnsureLobby struct {
	RoomID string
	Reply  chan *lobby.Lobby
}

type RemoveLobby struct {
	RoomID string
}

type CountLobbies struct {
	Reply chan int
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	ctx     context.Context
	cancel  context.CancelFunc
}

type ShutdownHub struct{}

// PruneLobby stops the lobby of RoomID if nobody is watching it.
type PruneLobby struct {
	RoomID string
}

// lobbyStopped forgets Lobby once it has stopped, unless the room has
// been given a new one meanwhile.
type lobbyStopped struct {
	RoomID string
	Lobby  *lobby.Lobby
}

func (GetLobby) isHubMsg()     {}
func (EnsureLobby) isHubMsg()  {}
func (RemoveLobby) isHubMsg()  {}
func (CountLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}
func (PruneLobby) isHubMsg()   {}
func (lobbyStopped) isHubMsg() {}

func NewHub(parent context.Context) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			clear(h.lobbies)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetLobby:
				lb := h.lobbies[msg.RoomID]
				if lb != nil && isDone(lb) {
					delete(h.lobbies, msg.RoomID)
					lb = nil
				}
				msg.Reply <- lb // May be nil

			case EnsureLobby:
				if lb := h.lobbies[msg.RoomID]; lb != nil && !isDone(lb) {
					msg.Reply <- lb
					break
				}
				lb := lobby.NewLobby(h.ctx, msg.RoomID)
				h.lobbies[msg.RoomID] = lb
				msg.Reply <- lb

			case RemoveLobby:
				if lb := h.lobbies[msg.RoomID]; lb != nil {
					lb.Send(lobby.Shutdown{})
					delete(h.lobbies, msg.RoomID)
				}

			case PruneLobby:
				// Asking the lobby must not block the hub loop.
				if lb := h.lobbies[msg.RoomID]; lb != nil {
					go h.pruneIfIdle(msg.RoomID, lb)
				}

			case lobbyStopped:
				if h.lobbies[msg.RoomID] == msg.Lobby {
					delete(h.lobbies, msg.RoomID)
				}

			case CountLobbies:
				msg.Reply <- len(h.lobbies)

			case ShutdownHub:
				for _, lb := range h.lobbies {
					lb.Send(lobby.Shutdown{})
				}
				clear(h.lobbies)
				h.cancel()
			}
		}
	}
}

func isDone(lb *lobby.Lobby) bool {
	select {
	case <-lb.Done():
		return true
	default:
		return false
	}
}

// Lobby returns the lobby of roomID, creating it on first use. It returns nil
// once the hub has shut down.
func (h *Hub) Lobby(roomID string) *lobby.Lobby {
	reply := make(chan *lobby.Lobby, 1)
	select {
	case h.inbox <- EnsureLobby{RoomID: roomID, Reply: reply}:
	case <-h.ctx.Done():
		return nil
	}
	select {
	case lb := <-reply:
		return lb
	case <-h.ctx.Done():
		return nil
	}
}

func (h *Hub) pruneIfIdle(roomID string, lb *lobby.Lobby) {
	reply := make(chan bool, 1)
	if lb.Send(lobby.StopIfIdle{Reply: reply}) {
		select {
		case stopped := <-reply:
			if !stopped {
				return
			}
		case <-lb.Done():
		case <-h.ctx.Done():
			return
		}
	}
	select {
	case h.inbox <- lobbyStopped{RoomID: roomID, Lobby: lb}:
	case <-h.ctx.Done():
	}
}

// existing returns the lobby of roomID without creating one.
func (h *Hub) existing(roomID string) *lobby.Lobby {
	reply := make(chan *lobby.Lobby, 1)
	select {
	case h.inbox <- GetLobby{RoomID: roomID, Reply: reply}:
	case <-h.ctx.Done():
		return nil
	}
	select {
	case lb := <-reply:
		return lb
	case <-h.ctx.Done():
		return nil
	}
}

// Publish sends ev to everyone watching its room. Rooms nobody watches
// get no lobby. Once a session ends its room's lobby is pruned if it has
// no watchers left. Publish never blocks on slow watchers; lobbies drop
// them instead.
func (h *Hub) Publish(ev types.RoomEvent) {
	lb := h.existing(ev.RoomID)
	if lb == nil {
		return
	}
	lb.Send(lobby.Publish{Event: ev})

	switch ev.Type {
	case types.EventSessionFinished, types.EventSessionCancelled:
		select {
		case h.inbox <- PruneLobby{RoomID: ev.RoomID}:
		case <-h.ctx.Done():
		}
	}
}
