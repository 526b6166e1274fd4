// Package lobby fans room events out to the clients watching one room.
package lobby

import (
	"context"

	"github.com/DoyleJ11/roulette-backend/pkg/types"
)

type Msg interface{ isLobbyMsg() }

type Publish struct {
	Event types.RoomEvent
}

func (Publish) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive events
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

// StopIfIdle stops the lobby when it has no clients. Reply must be
// buffered; it receives whether the lobby stopped.
type StopIfIdle struct {
	Reply chan bool
}

func (StopIfIdle) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Snapshot struct {
	Version int
	Event   types.RoomEvent
}

type View struct {
	RoomID     string
	Version    int
	NumClients int
	Last       *types.RoomEvent
}

type Lobby struct {
	roomID  string
	inbox   chan Msg
	last    *types.RoomEvent
	version int
	clients map[string]chan Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewLobby(parent context.Context, roomID string) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		roomID:  roomID,
		inbox:   make(chan Msg, 64), // Small buffer
		clients: make(map[string]chan Snapshot),
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.clients[msg.ClientID] = msg.Outbox
				// Late joiners get the latest event so they know where the room stands.
				if l.last != nil {
					l.deliver(msg.ClientID, msg.Outbox, Snapshot{Version: l.version, Event: *l.last})
				}

			case Leave:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}

			case Publish:
				ev := msg.Event
				l.last = &ev
				l.version++
				l.broadcast(Snapshot{Version: l.version, Event: ev})

			case GetState:
				// test-only: reflect internal state without data races
				msg.Reply <- View{
					RoomID:     l.roomID,
					Version:    l.version,
					NumClients: len(l.clients),
					Last:       l.last,
				}

			case StopIfIdle:
				if len(l.clients) > 0 {
					msg.Reply <- false
					break
				}
				l.shutdown()
				msg.Reply <- true
				return

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch) // Tell client no more events
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(snap Snapshot) {
	for id, ch := range l.clients {
		l.deliver(id, ch, snap)
	}
}

func (l *Lobby) deliver(id string, ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		//ok
	default:
		// Client is slow/full - drop them.
		close(ch)
		delete(l.clients, id)
	}
}

// Send delivers msg unless the lobby has shut down. It reports whether the
// message was accepted.
func (l *Lobby) Send(msg Msg) bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
	}
	select {
	case l.inbox <- msg:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Done is closed once the lobby stops.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }
