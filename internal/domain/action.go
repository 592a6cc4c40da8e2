package domain

// ActionType identifies a game action. The names are the wire-level tags of
// the broadcast envelope's tagged union.
type ActionType string

const (
	// Host-only, state-advancing actions.
	ActionStartGame      ActionType = "START_GAME"
	ActionRevealCategory ActionType = "REVEAL_CATEGORY"
	ActionStartVoting    ActionType = "START_VOTING"
	ActionRevealLiar     ActionType = "REVEAL_LIAR"
	ActionEndRound       ActionType = "END_ROUND"
	ActionNextRound      ActionType = "NEXT_ROUND"
	ActionEndGame        ActionType = "END_GAME"

	// Per-player actions; any rostered player may emit these for themselves.
	ActionSubmitAnswer ActionType = "SUBMIT_ANSWER"
	ActionSubmitVote   ActionType = "SUBMIT_VOTE"
)

// Action is the tagged union of all game actions. Fields beyond Type are
// populated per action kind and omitted from the wire otherwise.
type Action struct {
	Type ActionType `json:"type"`

	// REVEAL_CATEGORY
	Category string `json:"category,omitempty"`
	Keyword  string `json:"keyword,omitempty"`
	LiarID   string `json:"liarId,omitempty"`

	// SUBMIT_ANSWER / SUBMIT_VOTE
	PlayerID string `json:"playerId,omitempty"`
	Answer   string `json:"answer,omitempty"`
	VotedFor string `json:"votedFor,omitempty"`

	// END_ROUND
	Winners []string `json:"winners,omitempty"`
}

// IsHostOnly reports whether the action may only be emitted by the host.
func (t ActionType) IsHostOnly() bool {
	switch t {
	case ActionStartGame, ActionRevealCategory, ActionStartVoting,
		ActionRevealLiar, ActionEndRound, ActionNextRound, ActionEndGame:
		return true
	}
	return false
}
