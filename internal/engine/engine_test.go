package engine

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// loaderAt returns a loader that always puts the single bullet at pos.
func loaderAt(pos int) func(int, int) []bool {
	return func(chambers, bullets int) []bool {
		out := make([]bool, chambers)
		out[pos] = true
		return out
	}
}

func envAt(pos int) Env {
	return Env{Now: t0, Load: loaderAt(pos)}
}

func newWaiting(t *testing.T, maxPlayers int, accounts ...string) State {
	t.Helper()
	sess, err := NewSession("s1", "room1", "host", Settings{EntryFee: 100, MaxPlayers: maxPlayers, Chambers: 6, Bullets: 1}, t0)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	s := State{Session: sess, Rules: Rules{MinPlayers: 1}}
	for _, a := range accounts {
		_, s, err = Apply(s, Command{Type: CmdJoin, AccountID: a}, envAt(0))
		if err != nil {
			t.Fatalf("join %s: %v", a, err)
		}
	}
	return s
}

func mustApply(t *testing.T, s State, cmd Command, env Env) ([]Event, State) {
	t.Helper()
	events, next, err := Apply(s, cmd, env)
	if err != nil {
		t.Fatalf("%s: unexpected err %v", cmd.Type, err)
	}
	return events, next
}

func TestNewSession_Validation(t *testing.T) {
	cases := []struct {
		name    string
		st      Settings
		wantErr error
	}{
		{name: "valid", st: Settings{EntryFee: 100, MaxPlayers: 6, Chambers: 6, Bullets: 1}},
		{name: "zero fee", st: Settings{EntryFee: 0, MaxPlayers: 6, Chambers: 6, Bullets: 1}, wantErr: ErrInvalidEntryFee},
		{name: "negative fee", st: Settings{EntryFee: -5, MaxPlayers: 6, Chambers: 6, Bullets: 1}, wantErr: ErrInvalidEntryFee},
		{name: "zero capacity", st: Settings{EntryFee: 100, MaxPlayers: 0, Chambers: 6, Bullets: 1}, wantErr: ErrInvalidCapacity},
		{name: "no bullets", st: Settings{EntryFee: 100, MaxPlayers: 2, Chambers: 6, Bullets: 0}, wantErr: ErrInvalidChambers},
		{name: "more bullets than chambers", st: Settings{EntryFee: 100, MaxPlayers: 2, Chambers: 6, Bullets: 7}, wantErr: ErrInvalidChambers},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess, err := NewSession("id", "room", "host", tc.st, t0)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected err: %v", err)
				}
				if sess.Status != StatusWaiting {
					t.Fatalf("status: got %s, want waiting", sess.Status)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) || !errors.Is(err, ErrValidation) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestJoin_AssignsContiguousTurnIndices(t *testing.T) {
	s := newWaiting(t, 4, "a", "b", "c")
	for i, p := range s.Players {
		if p.TurnIndex != i+1 {
			t.Fatalf("player %s: turn index %d, want %d", p.AccountID, p.TurnIndex, i+1)
		}
		if !p.Alive {
			t.Fatalf("player %s should join alive", p.AccountID)
		}
	}
}

func TestJoin_Rejections(t *testing.T) {
	running := newWaiting(t, 2, "a", "b")
	_, running = mustApply(t, running, Command{Type: CmdStart}, envAt(0))

	cases := []struct {
		name    string
		setup   State
		account string
		wantErr error
	}{
		{name: "already joined", setup: newWaiting(t, 3, "a"), account: "a", wantErr: ErrAlreadyJoined},
		{name: "full", setup: newWaiting(t, 2, "a", "b"), account: "c", wantErr: ErrSessionFull},
		{name: "not waiting", setup: running, account: "c", wantErr: ErrSessionNotWaiting},
		{name: "no account", setup: newWaiting(t, 3, "a"), account: "", wantErr: ErrMissingAccount},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, got, err := Apply(tc.setup, Command{Type: CmdJoin, AccountID: tc.account}, envAt(0))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if len(got.Players) != len(tc.setup.Players) {
				t.Fatalf("rejected join changed players: %+v", got.Players)
			}
		})
	}
}

func TestStart_BeginsRoundOne(t *testing.T) {
	s := newWaiting(t, 3, "a", "b")
	s.Players[1].Alive = false

	events, next := mustApply(t, s, Command{Type: CmdStart}, envAt(3))

	if next.Session.Status != StatusRunning {
		t.Fatalf("status: got %s", next.Session.Status)
	}
	if next.Session.StartedAt == nil || !next.Session.StartedAt.Equal(t0) {
		t.Fatalf("started at not recorded: %v", next.Session.StartedAt)
	}
	if next.AliveCount() != 2 {
		t.Fatalf("start must revive every player, alive=%d", next.AliveCount())
	}
	if next.Round == nil || next.Round.Number != 1 || next.Round.CurrentTurn != 1 || next.Round.Fired != 0 {
		t.Fatalf("unexpected round: %+v", next.Round)
	}
	if !ContainsEvent(events, EvtRoundStarted) {
		t.Fatalf("expected EvtRoundStarted")
	}
	if s.Session.Status != StatusWaiting || s.Round != nil {
		t.Fatalf("Apply mutated its input")
	}
}

func TestStart_MinimumPlayers(t *testing.T) {
	s := newWaiting(t, 3, "a")
	s.Rules.MinPlayers = 2
	if _, _, err := Apply(s, Command{Type: CmdStart}, envAt(0)); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("want ErrNotEnoughPlayers, got %v", err)
	}

	empty := newWaiting(t, 3)
	empty.Rules.MinPlayers = 0
	if _, _, err := Apply(empty, Command{Type: CmdStart}, envAt(0)); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("empty session must not start, got %v", err)
	}
}

func TestDraw_RejectsOutOfTurn(t *testing.T) {
	s := newWaiting(t, 3, "a", "b")
	_, s = mustApply(t, s, Command{Type: CmdStart}, envAt(0))

	for _, account := range []string{"b", "stranger"} {
		_, got, err := Apply(s, Command{Type: CmdDraw, AccountID: account}, envAt(0))
		if !errors.Is(err, ErrNotYourTurn) {
			t.Fatalf("%s: want ErrNotYourTurn, got %v", account, err)
		}
		if got.Round.Fired != 0 || got.Round.CurrentTurn != 1 {
			t.Fatalf("%s: rejected draw mutated round: %+v", account, got.Round)
		}
	}
}

func TestDraw_EliminatedActorIsConsistencyError(t *testing.T) {
	s := newWaiting(t, 3, "a", "b")
	_, s = mustApply(t, s, Command{Type: CmdStart}, envAt(0))
	s.Players[0].Alive = false

	_, _, err := Apply(s, Command{Type: CmdDraw, AccountID: "a"}, envAt(0))
	if !errors.Is(err, ErrPlayerEliminated) || Kind(err) != KindConsistency {
		t.Fatalf("want ErrPlayerEliminated, got %v", err)
	}
}

func TestDraw_MissAdvancesAmongAlive(t *testing.T) {
	s := newWaiting(t, 4, "a", "b", "c")
	_, s = mustApply(t, s, Command{Type: CmdStart}, envAt(5))
	s.Players[1].Alive = false // b is out

	events, s := mustApply(t, s, Command{Type: CmdDraw, AccountID: "a"}, envAt(5))
	if o := OutcomeOf(events); o.Hit || o.Eliminated || o.NextTurn != 3 {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if s.Round.Fired != 1 || s.Round.CurrentTurn != 3 {
		t.Fatalf("unexpected round %+v", s.Round)
	}

	_, s = mustApply(t, s, Command{Type: CmdDraw, AccountID: "c"}, envAt(5))
	if s.Round.CurrentTurn != 1 {
		t.Fatalf("turn should wrap to 1, got %d", s.Round.CurrentTurn)
	}
}

func TestDraw_HitStartsNewRoundWhenSeveralRemain(t *testing.T) {
	s := newWaiting(t, 3, "a", "b", "c")
	_, s = mustApply(t, s, Command{Type: CmdStart}, envAt(0))

	events, s := mustApply(t, s, Command{Type: CmdDraw, AccountID: "a"}, envAt(2))
	o := OutcomeOf(events)
	if !o.Hit || !o.Eliminated || o.WinnerID != "" || o.Prize != 0 || o.Finished {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if s.Round.Number != 2 || s.Round.Fired != 0 || s.Round.CurrentTurn != 2 {
		t.Fatalf("expected fresh round 2 led by turn 2, got %+v", s.Round)
	}
	if s.Session.Status != StatusRunning {
		t.Fatalf("status: got %s", s.Session.Status)
	}
}

func TestDraw_LastSurvivorOwesPayoutThenSettles(t *testing.T) {
	s := newWaiting(t, 2, "a", "b")
	_, s = mustApply(t, s, Command{Type: CmdStart}, envAt(1))

	_, s = mustApply(t, s, Command{Type: CmdDraw, AccountID: "a"}, envAt(1))
	events, s := mustApply(t, s, Command{Type: CmdDraw, AccountID: "b"}, envAt(1))
	if o := OutcomeOf(events); !o.Settling || o.Finished || o.WinnerID != "" || o.Prize != 0 {
		t.Fatalf("unpaid winner reported: %+v", o)
	}

	payout, ok := s.PendingPayout()
	if !ok || payout.WinnerID != "a" || payout.Prize != 200 {
		t.Fatalf("unexpected payout %+v (ok=%v)", payout, ok)
	}
	if !ContainsEvent(events, EvtPayoutDue) || s.Session.Status != StatusRunning {
		t.Fatalf("session must stay running until paid")
	}

	if _, _, err := Apply(s, Command{Type: CmdDraw, AccountID: "a"}, envAt(1)); !errors.Is(err, ErrSettlementPending) {
		t.Fatalf("want ErrSettlementPending, got %v", err)
	}

	settled, s := mustApply(t, s, Command{Type: CmdSettle}, envAt(1))
	if !ContainsEvent(settled, EvtSessionFinished) {
		t.Fatalf("expected EvtSessionFinished")
	}
	if o := OutcomeOf(append(events, settled...)); o.Settling || !o.Finished || o.WinnerID != "a" || o.Prize != 200 {
		t.Fatalf("unexpected settled outcome %+v", o)
	}
	if s.Session.Status != StatusFinished || s.Session.WinnerID != "a" || s.Session.Prize != 200 || s.Session.FinishedAt == nil {
		t.Fatalf("unexpected session %+v", s.Session)
	}
	if _, _, err := Apply(s, Command{Type: CmdSettle}, envAt(1)); !errors.Is(err, ErrNoPendingPayout) {
		t.Fatalf("double settle: want ErrNoPendingPayout, got %v", err)
	}
}

func TestDraw_PrizeCountsEveryJoiner(t *testing.T) {
	s := newWaiting(t, 3, "a", "b", "c")
	_, s = mustApply(t, s, Command{Type: CmdStart}, envAt(0))
	_, s = mustApply(t, s, Command{Type: CmdDraw, AccountID: "a"}, envAt(0)) // a out, round 2 led by b
	_, s = mustApply(t, s, Command{Type: CmdDraw, AccountID: "b"}, envAt(0)) // b out

	payout, ok := s.PendingPayout()
	if !ok || payout.WinnerID != "c" || payout.Prize != 300 {
		t.Fatalf("unexpected payout %+v", payout)
	}
}

func TestDraw_SoloSessionNeverFinishes(t *testing.T) {
	s := newWaiting(t, 1, "solo")
	_, s = mustApply(t, s, Command{Type: CmdStart}, Env{Now: t0, Load: loaderAt(0)})

	r := rand.New(rand.NewChaCha8([32]byte{1}))
	env := Env{Now: t0, Load: func(c, b int) []bool { return LoadChambers(r, c, b) }}
	for i := 0; i < 200; i++ {
		var events []Event
		events, s = mustApply(t, s, Command{Type: CmdDraw, AccountID: "solo"}, env)
		if ContainsEvent(events, EvtPayoutDue) || ContainsEvent(events, EvtSessionFinished) {
			t.Fatalf("draw %d: practice session settled", i)
		}
		if s.Session.Status != StatusRunning || !s.Players[0].Alive {
			t.Fatalf("draw %d: unexpected state %+v", i, s.Session)
		}
	}
}

func TestDraw_ExhaustedChamberMisfires(t *testing.T) {
	s := newWaiting(t, 2, "a", "b")
	_, s = mustApply(t, s, Command{Type: CmdStart}, envAt(0))
	s.Round.Chambers = make([]bool, 6)
	s.Round.Fired = 6

	events, s := mustApply(t, s, Command{Type: CmdDraw, AccountID: "a"}, envAt(0))
	o := OutcomeOf(events)
	if !o.Misfire || o.Hit || o.NextTurn != 2 {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if s.Round.Fired != 0 || s.Round.CurrentTurn != 2 || s.AliveCount() != 2 {
		t.Fatalf("expected a reloaded round on turn 2, got %+v", s.Round)
	}
}

func TestClose(t *testing.T) {
	waiting := newWaiting(t, 2, "a", "b")
	running := waiting
	_, running = mustApply(t, running, Command{Type: CmdStart}, envAt(0))

	if _, _, err := Apply(waiting, Command{Type: CmdClose, AccountID: "a"}, envAt(0)); !errors.Is(err, ErrNotHost) {
		t.Fatalf("non-host: want ErrNotHost, got %v", err)
	}
	if _, _, err := Apply(running, Command{Type: CmdClose, AccountID: "host"}, envAt(0)); !errors.Is(err, ErrSessionNotWaiting) {
		t.Fatalf("running: want ErrSessionNotWaiting, got %v", err)
	}

	events, closed := mustApply(t, waiting, Command{Type: CmdClose, AccountID: "host"}, envAt(0))
	if closed.Session.Status != StatusCancelled || events[0].Reason != ReasonHost {
		t.Fatalf("unexpected close result %+v %+v", closed.Session, events)
	}
}

func TestForceCancel(t *testing.T) {
	s := newWaiting(t, 2, "a", "b")
	_, s = mustApply(t, s, Command{Type: CmdStart}, envAt(0))

	events, s := mustApply(t, s, Command{Type: CmdForceCancel}, envAt(0))
	if s.Session.Status != StatusCancelled || events[0].Reason != ReasonIdle {
		t.Fatalf("unexpected cancel %+v", s.Session)
	}

	for _, cmd := range []Command{{Type: CmdForceCancel}, {Type: CmdDraw, AccountID: "a"}, {Type: CmdJoin, AccountID: "z"}, {Type: CmdStart}} {
		if _, _, err := Apply(s, cmd, envAt(0)); Kind(err) != KindState {
			t.Fatalf("%s on cancelled session: want state error, got %v", cmd.Type, err)
		}
	}
}

func TestDraw_TerminatesWithOneWinner(t *testing.T) {
	r := rand.New(rand.NewChaCha8([32]byte{7}))
	env := Env{Now: t0, Load: func(c, b int) []bool { return LoadChambers(r, c, b) }}

	for trial := 0; trial < 50; trial++ {
		s := newWaiting(t, 5, "a", "b", "c", "d", "e")
		_, s = mustApply(t, s, Command{Type: CmdStart}, env)

		wasDead := map[string]bool{}
		for step := 0; ; step++ {
			if step > 1000 {
				t.Fatalf("trial %d: session did not terminate", trial)
			}
			if _, ok := s.PendingPayout(); ok {
				break
			}
			var current string
			for _, p := range s.Players {
				if p.TurnIndex == s.Round.CurrentTurn {
					current = p.AccountID
				}
			}
			_, s = mustApply(t, s, Command{Type: CmdDraw, AccountID: current}, env)
			for _, p := range s.Players {
				if wasDead[p.AccountID] && p.Alive {
					t.Fatalf("trial %d: %s came back to life", trial, p.AccountID)
				}
				if !p.Alive {
					wasDead[p.AccountID] = true
				}
			}
		}

		_, s = mustApply(t, s, Command{Type: CmdSettle}, env)
		if s.Session.Status != StatusFinished || s.AliveCount() != 1 || s.Session.Prize != 500 {
			t.Fatalf("trial %d: unexpected end state %+v", trial, s.Session)
		}
	}
}

func TestLoadChambers_Fairness(t *testing.T) {
	const trials = 60000
	r := rand.New(rand.NewChaCha8([32]byte{42}))
	counts := make([]int, 6)
	for i := 0; i < trials; i++ {
		chambers := LoadChambers(r, 6, 1)
		loaded := 0
		for pos, c := range chambers {
			if c {
				counts[pos]++
				loaded++
			}
		}
		if loaded != 1 {
			t.Fatalf("want exactly one loaded chamber, got %d", loaded)
		}
	}

	want := trials / 6
	for pos, n := range counts {
		if n < want*9/10 || n > want*11/10 {
			t.Fatalf("position %d loaded %d times, want about %d (%v)", pos, n, want, counts)
		}
	}
}

func TestLoadChambers_MultipleBullets(t *testing.T) {
	r := rand.New(rand.NewChaCha8([32]byte{3}))
	for i := 0; i < 100; i++ {
		loaded := 0
		for _, c := range LoadChambers(r, 6, 3) {
			if c {
				loaded++
			}
		}
		if loaded != 3 {
			t.Fatalf("want 3 loaded chambers, got %d", loaded)
		}
	}
}

func TestNextAlive(t *testing.T) {
	players := []Player{
		{TurnIndex: 1, Alive: true},
		{TurnIndex: 2, Alive: false},
		{TurnIndex: 3, Alive: true},
		{TurnIndex: 4, Alive: true},
	}
	cases := []struct {
		name    string
		current int
		want    int
	}{
		{name: "skips dead", current: 1, want: 3},
		{name: "from dead index", current: 2, want: 3},
		{name: "plain step", current: 3, want: 4},
		{name: "wraps", current: 4, want: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := nextAlive(players, tc.current)
			if !ok || got != tc.want {
				t.Fatalf("nextAlive(%d): got %d, want %d", tc.current, got, tc.want)
			}
		})
	}

	if _, ok := nextAlive([]Player{{TurnIndex: 1}}, 1); ok {
		t.Fatalf("expected no alive player")
	}
}

func TestErrorCodes(t *testing.T) {
	if got := Code(ErrNotYourTurn); got != "not_your_turn" {
		t.Fatalf("got %q", got)
	}
	if got := Kind(ErrInsufficientFunds); got != KindExternal {
		t.Fatalf("got %q", got)
	}
	if got := Code(errors.New("boom")); got != string(KindUnknown) {
		t.Fatalf("got %q", got)
	}
}
