// Package realtime defines the room-scoped publish/subscribe channel the game
// runs over, and an in-process binding of it for local play. The networked
// binding lives in realtime/wsclient.
package realtime

import (
	"context"
	"errors"

	"liargame/internal/protocol"
)

// Status is the connection state of a channel, surfaced to the UI instead of
// errors thrown across the reducer boundary.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// PresenceEventType classifies presence notifications.
type PresenceEventType string

const (
	PresenceJoin  PresenceEventType = "join"
	PresenceLeave PresenceEventType = "leave"
	PresenceSync  PresenceEventType = "sync"
)

// PresenceState maps connection keys to the payloads tracked on them.
type PresenceState map[string][]protocol.PresencePayload

// PresenceEvent is delivered on every presence change. State is the full
// snapshot at event time, so a sync handler can rebuild the roster without a
// separate query.
type PresenceEvent struct {
	Type  PresenceEventType
	Key   string // connection key that joined or left; empty on sync
	State PresenceState
}

var (
	ErrNotSubscribed     = errors.New("channel is not subscribed")
	ErrAlreadySubscribed = errors.New("channel is already subscribed")
)

// Channel is a named, room-scoped pub/sub conduit with presence tracking.
// Handlers must be registered before Subscribe; they are invoked from a
// single dispatch goroutine per channel, so handler code needs no locking
// against other handlers on the same channel.
//
// Delivery is at-least-once with no cross-sender total ordering. Handlers
// must be idempotent.
type Channel interface {
	OnBroadcast(event string, fn func(payload []byte))
	OnPresence(fn func(ev PresenceEvent))
	OnStatus(fn func(status Status))

	// Subscribe attaches to the channel and blocks until the subscription
	// reaches a ready status or ctx is done.
	Subscribe(ctx context.Context) error

	// Broadcast publishes a payload to every current subscriber, including
	// the sender.
	Broadcast(event string, payload []byte) error

	// Track publishes this connection's presence payload. Re-tracking
	// overwrites the previous payload for the connection.
	Track(payload protocol.PresencePayload) error

	// Untrack withdraws this connection's presence payload.
	Untrack() error

	// Unsubscribe detaches from the channel, untracking first if needed.
	// Safe to call on every teardown path.
	Unsubscribe() error
}
