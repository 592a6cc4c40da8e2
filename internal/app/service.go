// Package app contains the host-authority use-cases operating on domain
// state: round setup and the phase-completion decisions. The client-side host
// engine and the server-authoritative Nakama port both drive their
// transitions through this service so the two variants cannot drift apart.
package app

import (
	"errors"
	"math/rand"
	"time"

	"liargame/internal/domain"
)

// Service computes host decisions. The rng is injected so tests can fix the
// round secrets.
type Service struct {
	rng *rand.Rand
}

// NewService constructs a Service with the provided rng or a time-seeded
// default.
func NewService(rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{rng: rng}
}

var (
	ErrEmptyRoster  = errors.New("no players to pick a liar from")
	ErrNoCategories = errors.New("category set is empty")
)

// RoundData is one round's secrets, chosen by the host.
type RoundData struct {
	Category string
	Keyword  string
	LiarID   string
}

// NewRound picks one category, one keyword from that category and one liar
// from the roster, all uniformly at random.
func (s *Service) NewRound(players []domain.Player) (RoundData, error) {
	if len(players) == 0 {
		return RoundData{}, ErrEmptyRoster
	}
	if len(domain.Categories) == 0 {
		return RoundData{}, ErrNoCategories
	}

	category := domain.Categories[s.rng.Intn(len(domain.Categories))]
	keyword := category.Words[s.rng.Intn(len(category.Words))]
	liar := players[s.rng.Intn(len(players))]

	return RoundData{
		Category: category.Name,
		Keyword:  keyword,
		LiarID:   liar.ID,
	}, nil
}

// RevealAction wraps freshly picked round secrets in a REVEAL_CATEGORY action.
func (s *Service) RevealAction(players []domain.Player) (domain.Action, error) {
	round, err := s.NewRound(players)
	if err != nil {
		return domain.Action{}, err
	}
	return domain.Action{
		Type:     domain.ActionRevealCategory,
		Category: round.Category,
		Keyword:  round.Keyword,
		LiarID:   round.LiarID,
	}, nil
}

// CompletionAction evaluates the phase-completion predicate against the
// current roster and returns the transition the host should emit, or nil
// when the phase is not complete. It must be re-run on every answer, vote,
// join and leave: players may still be coming and going mid-phase.
func (s *Service) CompletionAction(state domain.RoomState) *domain.Action {
	switch state.Game.Phase {
	case domain.PhasePlaying:
		if state.AllAnswered() {
			return &domain.Action{Type: domain.ActionStartVoting}
		}
	case domain.PhaseVoting:
		if state.AllVoted() {
			return &domain.Action{Type: domain.ActionRevealLiar}
		}
	}
	return nil
}

// EndRoundAction tallies the round's votes and returns the END_ROUND action
// carrying the winner set. The vote order is this replica's observation
// order; only the host ever calls this, so its observation is canonical.
func (s *Service) EndRoundAction(state domain.RoomState) domain.Action {
	result := domain.Tally(state.VoteOrder, state.Players, state.Game.LiarID)
	return domain.Action{
		Type:    domain.ActionEndRound,
		Winners: result.Winners,
	}
}

// AdvanceAction returns the action that moves the game on from the results
// phase: NEXT_ROUND while rounds remain, END_GAME otherwise.
func (s *Service) AdvanceAction(state domain.RoomState) domain.Action {
	if state.Game.CurrentRound < state.Game.TotalRounds {
		return domain.Action{Type: domain.ActionNextRound}
	}
	return domain.Action{Type: domain.ActionEndGame}
}
