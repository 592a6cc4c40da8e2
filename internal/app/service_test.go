package app

import (
	"errors"
	"math/rand"
	"testing"

	"liargame/internal/domain"
)

func roster(ids ...string) []domain.Player {
	players := make([]domain.Player, 0, len(ids))
	for _, id := range ids {
		players = append(players, domain.Player{ID: id, Name: "Player " + id})
	}
	return players
}

func TestNewRoundPicksFromFixedSets(t *testing.T) {
	svc := NewService(rand.New(rand.NewSource(1)))
	players := roster("p1", "p2", "p3", "p4")

	for i := 0; i < 50; i++ {
		round, err := svc.NewRound(players)
		if err != nil {
			t.Fatalf("NewRound failed: %v", err)
		}

		category := domain.FindCategory(round.Category)
		if category == nil {
			t.Fatalf("picked unknown category %q", round.Category)
		}
		foundWord := false
		for _, w := range category.Words {
			if w == round.Keyword {
				foundWord = true
				break
			}
		}
		if !foundWord {
			t.Errorf("keyword %q not in category %q", round.Keyword, round.Category)
		}

		foundLiar := false
		for _, p := range players {
			if p.ID == round.LiarID {
				foundLiar = true
				break
			}
		}
		if !foundLiar {
			t.Errorf("liar %q not in roster", round.LiarID)
		}
	}
}

func TestNewRoundEmptyRoster(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.NewRound(nil); !errors.Is(err, ErrEmptyRoster) {
		t.Errorf("expected ErrEmptyRoster, got %v", err)
	}
}

func TestCompletionAction(t *testing.T) {
	svc := NewService(nil)

	tests := []struct {
		name     string
		phase    domain.Phase
		answered []string
		voted    []string
		want     domain.ActionType
	}{
		{name: "playing incomplete", phase: domain.PhasePlaying, answered: []string{"p1", "p2"}},
		{name: "playing complete", phase: domain.PhasePlaying, answered: []string{"p1", "p2", "p3"}, want: domain.ActionStartVoting},
		{name: "voting incomplete", phase: domain.PhaseVoting, voted: []string{"p1"}},
		{name: "voting complete", phase: domain.PhaseVoting, voted: []string{"p1", "p2", "p3"}, want: domain.ActionRevealLiar},
		{name: "waiting never completes", phase: domain.PhaseWaiting, answered: []string{"p1", "p2", "p3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := domain.NewRoomState(domain.DefaultSettings())
			state.Players = roster("p1", "p2", "p3")
			state.Game.Phase = tt.phase
			for _, id := range tt.answered {
				state.FindPlayer(id).HasAnswered = true
			}
			for _, id := range tt.voted {
				state.FindPlayer(id).VotedFor = "p1"
			}

			action := svc.CompletionAction(state)
			if tt.want == "" {
				if action != nil {
					t.Fatalf("expected no transition, got %s", action.Type)
				}
				return
			}
			if action == nil || action.Type != tt.want {
				t.Fatalf("expected %s, got %+v", tt.want, action)
			}
		})
	}
}

func TestCompletionActionAfterLeave(t *testing.T) {
	svc := NewService(nil)
	state := domain.NewRoomState(domain.DefaultSettings())
	state.Players = roster("p1", "p2", "p3", "p4")
	state.Game.Phase = domain.PhasePlaying
	for _, id := range []string{"p1", "p2", "p3"} {
		state.FindPlayer(id).HasAnswered = true
	}

	if svc.CompletionAction(state) != nil {
		t.Fatal("phase must not complete while p4 is rostered and unanswered")
	}

	state.SyncRoster(roster("p1", "p2", "p3"))
	action := svc.CompletionAction(state)
	if action == nil || action.Type != domain.ActionStartVoting {
		t.Fatalf("expected START_VOTING after p4 left, got %+v", action)
	}
}

func TestEndRoundAction(t *testing.T) {
	svc := NewService(nil)
	state := domain.NewRoomState(domain.DefaultSettings())
	state.Players = roster("p1", "p2", "p3", "p4")
	state.Game.Phase = domain.PhaseReveal
	state.Game.LiarID = "p3"
	state.VoteOrder = []domain.Vote{
		{Voter: "p1", Target: "p3"},
		{Voter: "p2", Target: "p3"},
		{Voter: "p4", Target: "p3"},
		{Voter: "p3", Target: "p1"},
	}

	action := svc.EndRoundAction(state)
	if action.Type != domain.ActionEndRound {
		t.Fatalf("expected END_ROUND, got %s", action.Type)
	}
	if len(action.Winners) != 3 {
		t.Fatalf("expected 3 winners when liar caught, got %v", action.Winners)
	}
	for _, id := range action.Winners {
		if id == "p3" {
			t.Errorf("caught liar must not be a winner")
		}
	}
}

func TestAdvanceAction(t *testing.T) {
	svc := NewService(nil)
	state := domain.NewRoomState(domain.DefaultSettings())
	state.Game.CurrentRound = 2

	if got := svc.AdvanceAction(state); got.Type != domain.ActionNextRound {
		t.Errorf("expected NEXT_ROUND mid-game, got %s", got.Type)
	}

	state.Game.CurrentRound = state.Game.TotalRounds
	if got := svc.AdvanceAction(state); got.Type != domain.ActionEndGame {
		t.Errorf("expected END_GAME on final round, got %s", got.Type)
	}
}
