package domain

// Phase represents the lifecycle stage of a liar-game round.
type Phase string

const (
	// PhaseWaiting is the lobby state where players can join.
	PhaseWaiting Phase = "waiting"
	// PhaseCategoryReveal is the short stage between rounds where the host
	// picks the round secrets.
	PhaseCategoryReveal Phase = "category-reveal"
	// PhasePlaying is the active state where players describe the keyword.
	PhasePlaying Phase = "playing"
	// PhaseVoting is the state where players vote for the suspected liar.
	PhaseVoting Phase = "voting"
	// PhaseReveal is the state where the liar is revealed.
	PhaseReveal Phase = "reveal"
	// PhaseResults is the round (and game) summary state.
	PhaseResults Phase = "results"
)

// Player holds state for a participant in the room.
type Player struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsHost      bool   `json:"isHost"`
	IsLiar      bool   `json:"isLiar"`
	HasAnswered bool   `json:"hasAnswered"`
	Answer      string `json:"answer,omitempty"`
	VotedFor    string `json:"votedFor,omitempty"`
	Score       int    `json:"score"`
}

// GameState holds the room-level fields of the authoritative state.
type GameState struct {
	Phase        Phase    `json:"phase"`
	Category     string   `json:"category"`
	Keyword      string   `json:"keyword"`
	LiarID       string   `json:"liarId"`
	CurrentRound int      `json:"currentRound"`
	TotalRounds  int      `json:"totalRounds"`
	TimeLeft     int      `json:"timeLeft"`
	Winners      []string `json:"winners"`
}

// Settings are the room parameters fixed at creation time.
type Settings struct {
	MinPlayers   int `json:"min_players"`
	MaxPlayers   int `json:"max_players"`
	TimePerRound int `json:"time_per_round"` // seconds
	TotalRounds  int `json:"total_rounds"`
}

// DefaultSettings returns the standard room parameters.
func DefaultSettings() Settings {
	return Settings{
		MinPlayers:   3,
		MaxPlayers:   8,
		TimePerRound: 180,
		TotalRounds:  5,
	}
}

// RoomState is one replica of the logical room: the game state plus the
// roster. Exactly one copy (the host's) is authoritative; every other
// replica is updated only by applying broadcast actions.
type RoomState struct {
	Settings Settings
	Game     GameState
	Players  []Player

	// VoteOrder records SUBMIT_VOTE arrival order as observed by this
	// replica. Only the host's observation is ever used for tallying.
	VoteOrder []Vote
}

// NewRoomState returns a waiting-phase room with no players.
func NewRoomState(settings Settings) RoomState {
	return RoomState{
		Settings: settings,
		Game: GameState{
			Phase:       PhaseWaiting,
			TotalRounds: settings.TotalRounds,
		},
	}
}

// FindPlayer returns a pointer into Players for the given id, or nil.
func (rs *RoomState) FindPlayer(id string) *Player {
	for i := range rs.Players {
		if rs.Players[i].ID == id {
			return &rs.Players[i]
		}
	}
	return nil
}

// HasPlayer reports whether the given id is in the current roster.
func (rs *RoomState) HasPlayer(id string) bool {
	return rs.FindPlayer(id) != nil
}

// SyncRoster replaces the roster with the presence-derived player list,
// merging reducer-owned fields (answer, vote, liar flag, score) for players
// that were already present. Presence payloads carry those fields too, but
// they are informational only and are superseded by reducer-applied state.
func (rs *RoomState) SyncRoster(players []Player) {
	merged := make([]Player, 0, len(players))
	for _, incoming := range players {
		if existing := rs.FindPlayer(incoming.ID); existing != nil {
			incoming.IsLiar = existing.IsLiar
			incoming.HasAnswered = existing.HasAnswered
			incoming.Answer = existing.Answer
			incoming.VotedFor = existing.VotedFor
			incoming.Score = existing.Score
		}
		merged = append(merged, incoming)
	}
	rs.Players = merged
}

// AllAnswered reports whether every currently rostered player has answered.
// The predicate counts only present players, so a round can complete after a
// non-answering player disconnects.
func (rs *RoomState) AllAnswered() bool {
	if len(rs.Players) == 0 {
		return false
	}
	for i := range rs.Players {
		if !rs.Players[i].HasAnswered {
			return false
		}
	}
	return true
}

// AllVoted reports whether every currently rostered player has voted.
func (rs *RoomState) AllVoted() bool {
	if len(rs.Players) == 0 {
		return false
	}
	for i := range rs.Players {
		if rs.Players[i].VotedFor == "" {
			return false
		}
	}
	return true
}

// resetRoundFields clears every round-scoped field on the room and its
// players. Called on NEXT_ROUND.
func (rs *RoomState) resetRoundFields() {
	rs.Game.Category = ""
	rs.Game.Keyword = ""
	rs.Game.LiarID = ""
	rs.Game.TimeLeft = 0
	rs.Game.Winners = nil
	rs.VoteOrder = nil
	for i := range rs.Players {
		rs.Players[i].IsLiar = false
		rs.Players[i].HasAnswered = false
		rs.Players[i].Answer = ""
		rs.Players[i].VotedFor = ""
	}
}

// Clone returns a deep copy of the room state.
func (rs RoomState) Clone() RoomState {
	out := rs
	out.Players = append([]Player(nil), rs.Players...)
	out.VoteOrder = append([]Vote(nil), rs.VoteOrder...)
	out.Game.Winners = append([]string(nil), rs.Game.Winners...)
	return out
}
