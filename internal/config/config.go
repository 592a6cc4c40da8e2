package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"liargame/internal/domain"
)

// GameConfig holds tunables for room behavior. Zero values fall back to the
// defaults below so a partial config file is fine.
type GameConfig struct {
	MinPlayers             int `json:"min_players"`
	MaxPlayers             int `json:"max_players"`
	TimePerRoundSeconds    int `json:"time_per_round_seconds"`
	TotalRounds            int `json:"total_rounds"`
	RoundStartDelaySeconds int `json:"round_start_delay_seconds"`
	RevealDelaySeconds     int `json:"reveal_delay_seconds"`
	IdleRoomTimeoutMinutes int `json:"idle_room_timeout_minutes"`
}

var (
	cfg      *GameConfig
	loadOnce sync.Once
	loadErr  error
)

// LoadGameConfig loads the game configuration from the given path. Only the
// first call reads the file; later calls return the first result.
func LoadGameConfig(path string) error {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read game config: %w", err)
			return
		}

		var c GameConfig
		if err := json.Unmarshal(data, &c); err != nil {
			loadErr = fmt.Errorf("failed to unmarshal game config: %w", err)
			return
		}
		cfg = &c
	})
	return loadErr
}

// GetGameConfig returns the loaded configuration with defaults applied, or
// pure defaults when no file was loaded.
func GetGameConfig() GameConfig {
	defaults := GameConfig{
		MinPlayers:             3,
		MaxPlayers:             8,
		TimePerRoundSeconds:    180,
		TotalRounds:            5,
		RoundStartDelaySeconds: 2,
		RevealDelaySeconds:     5,
		IdleRoomTimeoutMinutes: 60,
	}
	if cfg == nil {
		return defaults
	}

	out := *cfg
	if out.MinPlayers == 0 {
		out.MinPlayers = defaults.MinPlayers
	}
	if out.MaxPlayers == 0 {
		out.MaxPlayers = defaults.MaxPlayers
	}
	if out.TimePerRoundSeconds == 0 {
		out.TimePerRoundSeconds = defaults.TimePerRoundSeconds
	}
	if out.TotalRounds == 0 {
		out.TotalRounds = defaults.TotalRounds
	}
	if out.RoundStartDelaySeconds == 0 {
		out.RoundStartDelaySeconds = defaults.RoundStartDelaySeconds
	}
	if out.RevealDelaySeconds == 0 {
		out.RevealDelaySeconds = defaults.RevealDelaySeconds
	}
	if out.IdleRoomTimeoutMinutes == 0 {
		out.IdleRoomTimeoutMinutes = defaults.IdleRoomTimeoutMinutes
	}
	return out
}

// Settings converts the config to domain room settings.
func (c GameConfig) Settings() domain.Settings {
	return domain.Settings{
		MinPlayers:   c.MinPlayers,
		MaxPlayers:   c.MaxPlayers,
		TimePerRound: c.TimePerRoundSeconds,
		TotalRounds:  c.TotalRounds,
	}
}
