package domain

import "errors"

// Protocol violations reported by the reducer. A violation means the action
// was received while its preconditions do not hold; receivers drop the action
// and log locally, they never crash or re-broadcast.
var (
	ErrNotHost         = errors.New("sender is not host")
	ErrWrongPhase      = errors.New("action not valid in current phase")
	ErrTooFewPlayers   = errors.New("not enough players to start")
	ErrUnknownPlayer   = errors.New("player not in roster")
	ErrUnknownTarget   = errors.New("vote target not in roster")
	ErrAlreadyAnswered = errors.New("player already answered")
	ErrAlreadyVoted    = errors.New("player already voted")
	ErrUnknownAction   = errors.New("unknown action type")
)

// Apply is the pure reducer: it applies one action to a room state replica
// and returns the next state. The input state is never mutated.
//
// The reducer is idempotent under at-least-once delivery: re-applying a
// SUBMIT_ANSWER or SUBMIT_VOTE that already took effect with the same payload
// returns the state unchanged with no error. It is also commutative for
// independent per-player field updates, since two players' answers or votes
// touch disjoint fields.
func Apply(state RoomState, action Action, senderIsHost bool) (RoomState, error) {
	if action.Type.IsHostOnly() && !senderIsHost {
		return state, ErrNotHost
	}

	next := state.Clone()

	switch action.Type {
	case ActionStartGame:
		if state.Game.Phase != PhaseWaiting {
			return state, ErrWrongPhase
		}
		if len(state.Players) < state.Settings.MinPlayers {
			return state, ErrTooFewPlayers
		}
		next.Game.Phase = PhaseCategoryReveal
		next.Game.CurrentRound = 1
		return next, nil

	case ActionRevealCategory:
		if state.Game.Phase != PhaseCategoryReveal {
			return state, ErrWrongPhase
		}
		if !state.HasPlayer(action.LiarID) {
			return state, ErrUnknownTarget
		}
		next.Game.Phase = PhasePlaying
		next.Game.Category = action.Category
		next.Game.Keyword = action.Keyword
		next.Game.LiarID = action.LiarID
		next.Game.TimeLeft = state.Settings.TimePerRound
		for i := range next.Players {
			next.Players[i].IsLiar = next.Players[i].ID == action.LiarID
		}
		return next, nil

	case ActionSubmitAnswer:
		if state.Game.Phase != PhasePlaying {
			return state, ErrWrongPhase
		}
		pl := next.FindPlayer(action.PlayerID)
		if pl == nil {
			return state, ErrUnknownPlayer
		}
		if pl.HasAnswered {
			if pl.Answer == action.Answer {
				return state, nil // duplicate delivery, merge is a no-op
			}
			return state, ErrAlreadyAnswered
		}
		pl.HasAnswered = true
		pl.Answer = action.Answer
		return next, nil

	case ActionStartVoting:
		if state.Game.Phase != PhasePlaying {
			return state, ErrWrongPhase
		}
		next.Game.Phase = PhaseVoting
		return next, nil

	case ActionSubmitVote:
		if state.Game.Phase != PhaseVoting {
			return state, ErrWrongPhase
		}
		pl := next.FindPlayer(action.PlayerID)
		if pl == nil {
			return state, ErrUnknownPlayer
		}
		if !state.HasPlayer(action.VotedFor) {
			return state, ErrUnknownTarget
		}
		if pl.VotedFor != "" {
			if pl.VotedFor == action.VotedFor {
				return state, nil
			}
			return state, ErrAlreadyVoted
		}
		pl.VotedFor = action.VotedFor
		next.VoteOrder = append(next.VoteOrder, Vote{Voter: action.PlayerID, Target: action.VotedFor})
		return next, nil

	case ActionRevealLiar:
		if state.Game.Phase != PhaseVoting {
			return state, ErrWrongPhase
		}
		next.Game.Phase = PhaseReveal
		return next, nil

	case ActionEndRound:
		if state.Game.Phase != PhaseReveal {
			return state, ErrWrongPhase
		}
		next.Game.Phase = PhaseResults
		next.Game.Winners = append([]string(nil), action.Winners...)
		for _, id := range action.Winners {
			if pl := next.FindPlayer(id); pl != nil {
				pl.Score++
			}
		}
		return next, nil

	case ActionNextRound:
		if state.Game.Phase != PhaseResults {
			return state, ErrWrongPhase
		}
		if state.Game.CurrentRound >= state.Game.TotalRounds {
			// Rounds exhausted: results is terminal.
			return next, nil
		}
		next.resetRoundFields()
		next.Game.Phase = PhaseCategoryReveal
		next.Game.CurrentRound++
		return next, nil

	case ActionEndGame:
		next.Game.Phase = PhaseResults
		return next, nil
	}

	return state, ErrUnknownAction
}
