package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/roulette-backend/pkg/types"
)

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

func recvNoSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further snapshots possible
			return
		}
		t.Fatalf("expected no snapshot within %v, but got: %+v", within, s)
	case <-time.After(within):
		// good: no snapshot
	}
}

func recvView(t *testing.T, l *Lobby, within time.Duration) View {
	t.Helper()
	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func joined(room, account string) types.RoomEvent {
	return types.RoomEvent{Type: types.EventPlayerJoined, RoomID: room, SessionID: "s1", AccountID: account}
}

func TestLobby_Publish_BroadcastsAndVersionIncrements(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "room1")

	clientOut := make(chan Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: clientOut}
	recvNoSnapshot(t, clientOut, 50*time.Millisecond) // nothing happened yet

	l.Inbox() <- Publish{Event: joined("room1", "alice")}

	next := recvSnapshot(t, clientOut, 100*time.Millisecond)
	if next.Version != 1 {
		t.Fatalf("after publish: want version=1, got %d", next.Version)
	}
	if next.Event.AccountID != "alice" || next.Event.Type != types.EventPlayerJoined {
		t.Fatalf("unexpected event %+v", next.Event)
	}

	l.Inbox() <- Shutdown{}
}

func TestLobby_LateJoinerGetsLastEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "room1")
	l.Inbox() <- Publish{Event: joined("room1", "alice")}
	l.Inbox() <- Publish{Event: joined("room1", "bob")}

	out := make(chan Snapshot, 2)
	l.Inbox() <- Join{ClientID: "late", Outbox: out}

	snap := recvSnapshot(t, out, 100*time.Millisecond)
	if snap.Version != 2 || snap.Event.AccountID != "bob" {
		t.Fatalf("want latest event at version 2, got %+v", snap)
	}
}

func TestLobby_DropSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "room1")

	clientOut := make(chan Snapshot, 1)
	l.Inbox() <- Join{ClientID: "c1", Outbox: clientOut}

	l.Inbox() <- Publish{Event: joined("room1", "alice")}
	l.Inbox() <- Publish{Event: joined("room1", "bob")}

	view := recvView(t, l, 100*time.Millisecond)
	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
	if view.Version != 2 || view.RoomID != "room1" {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestLobby_LeaveClosesOutbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "room1")
	out := make(chan Snapshot, 1)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	l.Inbox() <- Leave{ClientID: "c1"}

	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected closed outbox")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("outbox not closed after leave")
	}
}

func TestLobby_Shutdown_StopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "room1")

	out := make(chan Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	l.Inbox() <- Shutdown{}

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatalf("lobby did not stop")
	}
	if l.Send(Publish{Event: joined("room1", "alice")}) {
		t.Fatalf("send after shutdown should be refused")
	}
	recvNoSnapshot(t, out, 50*time.Millisecond)
}

func TestLobby_StopIfIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "room1")
	out := make(chan Snapshot, 1)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}

	reply := make(chan bool, 1)
	l.Inbox() <- StopIfIdle{Reply: reply}
	if <-reply {
		t.Fatalf("lobby with a client must keep running")
	}

	l.Inbox() <- Leave{ClientID: "c1"}
	l.Inbox() <- StopIfIdle{Reply: reply}
	if !<-reply {
		t.Fatalf("empty lobby should stop")
	}
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatalf("lobby not done after stopping")
	}
	if l.Send(Publish{Event: joined("room1", "alice")}) {
		t.Fatalf("stopped lobby accepted a message")
	}
}
