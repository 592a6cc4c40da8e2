// Package protocol defines the wire format shared by every channel binding:
// the broadcast envelope carrying game actions and the presence payload each
// client tracks. All messages are JSON.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"liargame/internal/domain"
)

// Broadcast event names on the room channel.
const (
	EventGameAction = "game_action"
	EventChat       = "chat"
)

// Envelope wraps one game action on the broadcast channel.
type Envelope struct {
	Action    domain.Action `json:"action"`
	PlayerID  string        `json:"playerId"`
	Timestamp int64         `json:"timestamp"` // unix milliseconds
}

// NewEnvelope stamps an action with its sender and the current time.
func NewEnvelope(action domain.Action, playerID string) Envelope {
	return Envelope{
		Action:    action,
		PlayerID:  playerID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// PresencePayload is the record a client tracks on the room channel.
type PresencePayload struct {
	Player   domain.Player `json:"player"`
	OnlineAt string        `json:"online_at"` // ISO-8601
}

// NewPresencePayload stamps a player record with the current time.
func NewPresencePayload(player domain.Player) PresencePayload {
	return PresencePayload{
		Player:   player,
		OnlineAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// ChatMessage is a non-state-changing message carried on the same channel.
// It never reaches the reducer.
type ChatMessage struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// EncodeChat marshals a chat message for the wire.
func EncodeChat(msg ChatMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeChat unmarshals a chat message, rejecting ones with no sender.
func DecodeChat(data []byte) (ChatMessage, error) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if msg.PlayerID == "" {
		return ChatMessage{}, fmt.Errorf("%w: missing sender", ErrMalformedEnvelope)
	}
	return msg, nil
}

var ErrMalformedEnvelope = errors.New("malformed action envelope")

// EncodeEnvelope marshals an envelope for the wire.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// DecodeEnvelope unmarshals and validates an envelope. A payload that parses
// but fails validation is reported as ErrMalformedEnvelope so receivers can
// drop it without surfacing a fault.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := ValidateAction(env.Action); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.PlayerID == "" {
		return Envelope{}, fmt.Errorf("%w: missing sender", ErrMalformedEnvelope)
	}
	return env, nil
}

// ValidateAction checks that the fields required by the action's type are
// present. Preconditions that depend on state (phase, roster membership) are
// the reducer's job, not the codec's.
func ValidateAction(action domain.Action) error {
	switch action.Type {
	case domain.ActionStartGame, domain.ActionStartVoting, domain.ActionRevealLiar,
		domain.ActionNextRound, domain.ActionEndGame:
		return nil
	case domain.ActionRevealCategory:
		if action.Category == "" || action.Keyword == "" || action.LiarID == "" {
			return errors.New("REVEAL_CATEGORY requires category, keyword and liarId")
		}
		return nil
	case domain.ActionSubmitAnswer:
		if action.PlayerID == "" || action.Answer == "" {
			return errors.New("SUBMIT_ANSWER requires playerId and answer")
		}
		return nil
	case domain.ActionSubmitVote:
		if action.PlayerID == "" || action.VotedFor == "" {
			return errors.New("SUBMIT_VOTE requires playerId and votedFor")
		}
		return nil
	case domain.ActionEndRound:
		return nil
	}
	return fmt.Errorf("unknown action type %q", action.Type)
}
