// Package relay implements the websocket fan-out server for live play. It
// knows nothing about game rules: it keeps per-room presence state and
// forwards broadcast frames to every subscriber, which is all the channel
// contract requires of a backend.
package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"liargame/internal/protocol"
)

// room is one fan-out hub. All state is owned by the run goroutine; other
// goroutines reach it through the request channels only, except the reaper,
// which reads lastActive under mu.
type room struct {
	code    string
	logger  zerolog.Logger
	clients map[*client]bool

	// presence is keyed by connection key. A connection that drops without
	// untracking is withdrawn automatically, so a crashed client never
	// lingers in anyone's roster.
	presence map[string]protocol.PresencePayload

	register chan *client
	unreg    chan *client
	frames   chan inboundFrame
	done     chan struct{}

	mu         sync.RWMutex
	createdAt  time.Time
	lastActive time.Time
}

type inboundFrame struct {
	from  *client
	frame protocol.Frame
}

func newRoom(code string, logger zerolog.Logger) *room {
	now := time.Now()
	return &room{
		code:       code,
		logger:     logger.With().Str("room", code).Logger(),
		clients:    make(map[*client]bool),
		presence:   make(map[string]protocol.PresencePayload),
		register:   make(chan *client),
		unreg:      make(chan *client),
		frames:     make(chan inboundFrame, 64),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (r *room) run() {
	for {
		select {
		case c := <-r.register:
			r.touch()
			r.clients[c] = true
			// Late joiners get the current presence snapshot immediately,
			// before any of their own frames are processed.
			c.enqueue(r.presenceFrame(protocol.PresenceFrame{
				Type:  "sync",
				State: r.snapshot(),
			}))
			r.logger.Debug().Str("conn", c.key).Int("clients", len(r.clients)).Msg("client connected")

		case c := <-r.unreg:
			r.touch()
			if _, ok := r.clients[c]; ok {
				delete(r.clients, c)
				c.closeSend()
			}
			r.withdraw(c.key)
			r.logger.Debug().Str("conn", c.key).Int("clients", len(r.clients)).Msg("client disconnected")

		case in := <-r.frames:
			r.touch()
			r.handleFrame(in)

		case <-r.done:
			for c := range r.clients {
				delete(r.clients, c)
				c.closeSend()
				_ = c.conn.Close()
			}
			return
		}
	}
}

func (r *room) handleFrame(in inboundFrame) {
	switch in.frame.Type {
	case protocol.FrameBroadcast:
		data, err := protocol.EncodeFrame(in.frame)
		if err != nil {
			return
		}
		// Fan out to everyone, the sender included; replicas converge by
		// applying their own actions on delivery like everyone else's.
		for c := range r.clients {
			r.send(c, data)
		}

	case protocol.FrameTrack:
		var payload protocol.PresencePayload
		if err := unmarshalPayload(in.frame.Payload, &payload); err != nil {
			r.logger.Warn().Err(err).Str("conn", in.from.key).Msg("dropping malformed track")
			return
		}
		_, rejoin := r.presence[in.from.key]
		r.presence[in.from.key] = payload
		if !rejoin {
			r.fanOutPresence(protocol.PresenceFrame{Type: "join", Key: in.from.key, State: r.snapshot()})
		}
		r.fanOutPresence(protocol.PresenceFrame{Type: "sync", State: r.snapshot()})

	case protocol.FrameUntrack:
		r.withdraw(in.from.key)
	}
}

func (r *room) withdraw(key string) {
	if _, ok := r.presence[key]; !ok {
		return
	}
	delete(r.presence, key)
	r.fanOutPresence(protocol.PresenceFrame{Type: "leave", Key: key, State: r.snapshot()})
	r.fanOutPresence(protocol.PresenceFrame{Type: "sync", State: r.snapshot()})
}

func (r *room) fanOutPresence(pf protocol.PresenceFrame) {
	data := r.presenceFrame(pf)
	for c := range r.clients {
		r.send(c, data)
	}
}

func (r *room) presenceFrame(pf protocol.PresenceFrame) []byte {
	data, err := protocol.EncodeFrame(protocol.Frame{Type: protocol.FramePresence, Presence: &pf})
	if err != nil {
		r.logger.Error().Err(err).Msg("presence frame encode failed")
		return nil
	}
	return data
}

// send enqueues data for one client, dropping the client if its send buffer
// is full. A consumer that slow is better disconnected than holding up the
// whole room.
func (r *room) send(c *client, data []byte) {
	if data == nil {
		return
	}
	if !c.enqueue(data) {
		delete(r.clients, c)
		c.closeSend()
		r.withdraw(c.key)
		r.logger.Warn().Str("conn", c.key).Msg("dropping slow client")
	}
}

func unmarshalPayload(data json.RawMessage, v any) error {
	return json.Unmarshal(data, v)
}

func (r *room) snapshot() map[string][]protocol.PresencePayload {
	out := make(map[string][]protocol.PresencePayload, len(r.presence))
	for key, payload := range r.presence {
		out[key] = []protocol.PresencePayload{payload}
	}
	return out
}

func (r *room) touch() {
	r.mu.Lock()
	r.lastActive = time.Now()
	r.mu.Unlock()
}

func (r *room) idleSince() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActive
}

func (r *room) close() {
	close(r.done)
}

// client is one websocket connection in one room.
type client struct {
	conn    *websocket.Conn
	key     string
	send    chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, key string, limiter *rate.Limiter) *client {
	return &client{
		conn:    conn,
		key:     key,
		send:    make(chan []byte, 32),
		limiter: limiter,
	}
}

func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *client) readPump(r *room) {
	defer func() {
		// The run goroutine may already be gone if the room was closed
		// while this connection was attached.
		select {
		case r.unreg <- c:
		case <-r.done:
		}
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			r.logger.Warn().Str("conn", c.key).Msg("rate limit exceeded, closing")
			return
		}
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			r.logger.Warn().Err(err).Str("conn", c.key).Msg("dropping malformed frame")
			continue
		}
		if frame.Type == protocol.FramePresence {
			// Presence frames are relay-to-client only.
			continue
		}
		select {
		case r.frames <- inboundFrame{from: c, frame: frame}:
		case <-r.done:
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
