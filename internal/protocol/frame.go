package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame types exchanged between a channel client and the relay. Broadcast
// frames flow both ways; track and untrack flow client to relay; presence
// frames flow relay to client.
const (
	FrameBroadcast = "broadcast"
	FrameTrack     = "track"
	FrameUntrack   = "untrack"
	FramePresence  = "presence"
)

// Frame is one websocket message on a relay connection.
type Frame struct {
	Type     string          `json:"type"`
	Event    string          `json:"event,omitempty"`    // broadcast frames
	Payload  json.RawMessage `json:"payload,omitempty"`  // broadcast: event payload; track: PresencePayload
	Presence *PresenceFrame  `json:"presence,omitempty"` // presence frames
}

// PresenceFrame carries a presence notification with the full snapshot, so
// clients rebuild their roster from state alone and never need a query
// round-trip.
type PresenceFrame struct {
	Type  string                       `json:"type"` // join, leave, sync
	Key   string                       `json:"key,omitempty"`
	State map[string][]PresencePayload `json:"state"`
}

var ErrMalformedFrame = errors.New("malformed frame")

// DecodeFrame unmarshals and validates one relay frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch f.Type {
	case FrameBroadcast:
		if f.Event == "" {
			return Frame{}, fmt.Errorf("%w: broadcast without event", ErrMalformedFrame)
		}
	case FrameTrack:
		if len(f.Payload) == 0 {
			return Frame{}, fmt.Errorf("%w: track without payload", ErrMalformedFrame)
		}
	case FrameUntrack, FramePresence:
	default:
		return Frame{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, f.Type)
	}
	return f, nil
}

// EncodeFrame marshals one relay frame.
func EncodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}
