package realtime

import (
	"sort"

	"liargame/internal/domain"
)

// Roster flattens a presence state snapshot into a player list. Connection
// keys are walked in sorted order so repeated syncs of the same state produce
// the same slice, but callers must not rely on roster order for turn order:
// keys change as connections come and go.
func Roster(state PresenceState) []domain.Player {
	keys := make([]string, 0, len(state))
	for key := range state {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	players := make([]domain.Player, 0, len(state))
	seen := make(map[string]struct{}, len(state))
	for _, key := range keys {
		for _, payload := range state[key] {
			if payload.Player.ID == "" {
				continue
			}
			// One player tracked from two connections counts once.
			if _, dup := seen[payload.Player.ID]; dup {
				continue
			}
			seen[payload.Player.ID] = struct{}{}
			players = append(players, payload.Player)
		}
	}
	return players
}
