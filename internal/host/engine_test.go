package host

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"liargame/internal/app"
	"liargame/internal/domain"
)

type harness struct {
	mu      sync.Mutex
	state   domain.RoomState
	actions chan domain.Action
	engine  *Engine
}

func newHarness(t *testing.T, players int) *harness {
	t.Helper()
	h := &harness{actions: make(chan domain.Action, 16)}
	h.state = domain.NewRoomState(domain.DefaultSettings())
	for i := 0; i < players; i++ {
		h.state.Players = append(h.state.Players, domain.Player{
			ID:     string(rune('a' + i)),
			Name:   "player",
			IsHost: i == 0,
		})
	}
	svc := app.NewService(rand.New(rand.NewSource(7)))
	h.engine = New(svc, func(a domain.Action) { h.actions <- a }, h.snapshot, zerolog.Nop())
	h.engine.SetDelays(time.Millisecond, time.Millisecond)
	t.Cleanup(h.engine.Stop)
	return h
}

func (h *harness) snapshot() domain.RoomState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Clone()
}

func (h *harness) mutate(fn func(*domain.RoomState)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.state)
}

func (h *harness) next(t *testing.T) domain.Action {
	t.Helper()
	select {
	case a := <-h.actions:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("no action emitted")
		return domain.Action{}
	}
}

func (h *harness) none(t *testing.T) {
	t.Helper()
	select {
	case a := <-h.actions:
		t.Fatalf("unexpected action %s", a.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartGameGating(t *testing.T) {
	h := newHarness(t, 2)
	h.engine.StartGame()
	h.none(t)

	h.mutate(func(st *domain.RoomState) {
		st.Players = append(st.Players, domain.Player{ID: "c", Name: "player"})
	})
	h.engine.StartGame()
	if got := h.next(t); got.Type != domain.ActionStartGame {
		t.Fatalf("got %s, want START_GAME", got.Type)
	}
}

func TestRevealScheduledOncePerRound(t *testing.T) {
	h := newHarness(t, 4)
	h.mutate(func(st *domain.RoomState) {
		st.Game.Phase = domain.PhaseCategoryReveal
		st.Game.CurrentRound = 1
	})

	h.engine.OnStateChanged()
	h.engine.OnStateChanged()

	got := h.next(t)
	if got.Type != domain.ActionRevealCategory {
		t.Fatalf("got %s, want REVEAL_CATEGORY", got.Type)
	}
	if got.Category == "" || got.Keyword == "" || got.LiarID == "" {
		t.Fatalf("incomplete reveal payload: %+v", got)
	}
	st := h.snapshot()
	if !st.HasPlayer(got.LiarID) {
		t.Fatalf("liar %q not in roster", got.LiarID)
	}
	h.none(t)
}

func TestRevealSkippedWhenPhaseMovedOn(t *testing.T) {
	h := newHarness(t, 4)
	h.engine.SetDelays(20*time.Millisecond, time.Millisecond)
	h.mutate(func(st *domain.RoomState) {
		st.Game.Phase = domain.PhaseCategoryReveal
		st.Game.CurrentRound = 1
	})
	h.engine.OnStateChanged()

	h.mutate(func(st *domain.RoomState) { st.Game.Phase = domain.PhaseResults })
	h.none(t)
}

func TestCompletionEmitsPhaseAdvance(t *testing.T) {
	h := newHarness(t, 3)
	h.mutate(func(st *domain.RoomState) {
		st.Game.Phase = domain.PhasePlaying
		for i := range st.Players {
			st.Players[i].HasAnswered = true
			st.Players[i].Answer = "something"
		}
	})
	h.engine.OnStateChanged()
	if got := h.next(t); got.Type != domain.ActionStartVoting {
		t.Fatalf("got %s, want START_VOTING", got.Type)
	}

	h.mutate(func(st *domain.RoomState) {
		st.Game.Phase = domain.PhaseVoting
		for i := range st.Players {
			st.Players[i].VotedFor = st.Players[0].ID
		}
	})
	h.engine.OnStateChanged()
	if got := h.next(t); got.Type != domain.ActionRevealLiar {
		t.Fatalf("got %s, want REVEAL_LIAR", got.Type)
	}
}

func TestCompletionNotEmittedWhileWaitingOnPlayers(t *testing.T) {
	h := newHarness(t, 3)
	h.mutate(func(st *domain.RoomState) {
		st.Game.Phase = domain.PhasePlaying
		st.Players[0].HasAnswered = true
	})
	h.engine.OnStateChanged()
	h.none(t)
}

func TestEndRoundScheduledAfterReveal(t *testing.T) {
	h := newHarness(t, 3)
	h.mutate(func(st *domain.RoomState) {
		st.Game.Phase = domain.PhaseReveal
		st.Game.CurrentRound = 1
		st.Game.LiarID = "a"
		st.Players[0].IsLiar = true
		st.VoteOrder = []domain.Vote{
			{Voter: "a", Target: "b"},
			{Voter: "b", Target: "a"},
			{Voter: "c", Target: "a"},
		}
	})
	h.engine.OnStateChanged()
	h.engine.OnStateChanged()

	got := h.next(t)
	if got.Type != domain.ActionEndRound {
		t.Fatalf("got %s, want END_ROUND", got.Type)
	}
	if len(got.Winners) != 2 {
		t.Fatalf("winners = %v, want the two non-liars", got.Winners)
	}
	h.none(t)
}

func TestNextRoundAdvancesOrEnds(t *testing.T) {
	h := newHarness(t, 3)
	h.mutate(func(st *domain.RoomState) {
		st.Game.Phase = domain.PhaseResults
		st.Game.CurrentRound = 1
	})
	h.engine.NextRound()
	if got := h.next(t); got.Type != domain.ActionNextRound {
		t.Fatalf("got %s, want NEXT_ROUND", got.Type)
	}

	h.mutate(func(st *domain.RoomState) { st.Game.CurrentRound = st.Game.TotalRounds })
	h.engine.NextRound()
	if got := h.next(t); got.Type != domain.ActionEndGame {
		t.Fatalf("got %s, want END_GAME", got.Type)
	}
}

func TestStoppedEngineSchedulesNothing(t *testing.T) {
	h := newHarness(t, 4)
	h.mutate(func(st *domain.RoomState) {
		st.Game.Phase = domain.PhaseCategoryReveal
		st.Game.CurrentRound = 1
	})
	h.engine.Stop()
	h.engine.OnStateChanged()
	h.none(t)
}
