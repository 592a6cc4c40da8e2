// Package wsclient is the networked binding of realtime.Channel: it speaks
// the relay's frame protocol over a websocket. One Channel is one connection
// to one room.
package wsclient

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"liargame/internal/protocol"
	"liargame/internal/realtime"
)

// Channel implements realtime.Channel over a relay websocket.
type Channel struct {
	url    string
	dialer *websocket.Dialer
	logger zerolog.Logger

	broadcastHandlers map[string][]func([]byte)
	presenceHandlers  []func(realtime.PresenceEvent)
	statusHandlers    []func(realtime.Status)

	mu         sync.Mutex
	conn       *websocket.Conn
	send       chan []byte
	closed     chan struct{}
	subscribed bool
	tracked    bool
}

// New builds a channel for the given websocket URL, e.g.
// ws://host/rooms/ABC123/ws. An http(s) scheme is rewritten to ws(s).
func New(url string, logger zerolog.Logger) *Channel {
	if strings.HasPrefix(url, "http") {
		url = "ws" + strings.TrimPrefix(url, "http")
	}
	return &Channel{
		url:               url,
		dialer:            websocket.DefaultDialer,
		logger:            logger.With().Str("url", url).Logger(),
		broadcastHandlers: make(map[string][]func([]byte)),
	}
}

func (c *Channel) OnBroadcast(event string, fn func(payload []byte)) {
	c.broadcastHandlers[event] = append(c.broadcastHandlers[event], fn)
}

func (c *Channel) OnPresence(fn func(ev realtime.PresenceEvent)) {
	c.presenceHandlers = append(c.presenceHandlers, fn)
}

func (c *Channel) OnStatus(fn func(status realtime.Status)) {
	c.statusHandlers = append(c.statusHandlers, fn)
}

// Subscribe dials the relay. The connected status is emitted before the read
// pump starts, so handlers see it before any frame.
func (c *Channel) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.subscribed {
		c.mu.Unlock()
		return realtime.ErrAlreadySubscribed
	}
	c.mu.Unlock()

	c.emitStatus(realtime.StatusConnecting)
	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		c.emitStatus(realtime.StatusError)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.send = make(chan []byte, 32)
	c.closed = make(chan struct{})
	c.subscribed = true
	c.mu.Unlock()

	c.emitStatus(realtime.StatusConnected)
	go c.writePump()
	go c.readPump()
	return nil
}

func (c *Channel) Broadcast(event string, payload []byte) error {
	frame := protocol.Frame{Type: protocol.FrameBroadcast, Event: event, Payload: payload}
	return c.enqueueFrame(frame)
}

func (c *Channel) Track(payload protocol.PresencePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := c.enqueueFrame(protocol.Frame{Type: protocol.FrameTrack, Payload: data}); err != nil {
		return err
	}
	c.mu.Lock()
	c.tracked = true
	c.mu.Unlock()
	return nil
}

func (c *Channel) Untrack() error {
	if err := c.enqueueFrame(protocol.Frame{Type: protocol.FrameUntrack}); err != nil {
		return err
	}
	c.mu.Lock()
	c.tracked = false
	c.mu.Unlock()
	return nil
}

// Unsubscribe untracks best-effort and closes the connection. The relay
// withdraws presence on disconnect anyway, so a lost untrack frame only
// delays the leave event, never loses it.
func (c *Channel) Unsubscribe() error {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return nil
	}
	if c.tracked {
		c.tracked = false
		if data, err := protocol.EncodeFrame(protocol.Frame{Type: protocol.FrameUntrack}); err == nil {
			select {
			case c.send <- data:
			default:
			}
		}
	}
	c.subscribed = false
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	close(closed)
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}

func (c *Channel) enqueueFrame(frame protocol.Frame) error {
	data, err := protocol.EncodeFrame(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	subscribed := c.subscribed
	send := c.send
	closed := c.closed
	c.mu.Unlock()
	if !subscribed {
		return realtime.ErrNotSubscribed
	}

	select {
	case send <- data:
		return nil
	case <-closed:
		return realtime.ErrNotSubscribed
	}
}

func (c *Channel) writePump() {
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readPump is the dispatch goroutine: every broadcast and presence handler
// runs here, one frame at a time.
func (c *Channel) readPump() {
	defer func() {
		c.mu.Lock()
		deliberate := !c.subscribed
		c.subscribed = false
		c.mu.Unlock()

		if !deliberate {
			_ = c.conn.Close()
			c.emitStatus(realtime.StatusError)
		}
		c.emitStatus(realtime.StatusDisconnected)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}

		switch frame.Type {
		case protocol.FrameBroadcast:
			for _, fn := range c.broadcastHandlers[frame.Event] {
				fn(frame.Payload)
			}
		case protocol.FramePresence:
			if frame.Presence == nil {
				continue
			}
			ev := realtime.PresenceEvent{
				Type:  realtime.PresenceEventType(frame.Presence.Type),
				Key:   frame.Presence.Key,
				State: frame.Presence.State,
			}
			for _, fn := range c.presenceHandlers {
				fn(ev)
			}
		}
	}
}

func (c *Channel) emitStatus(status realtime.Status) {
	for _, fn := range c.statusHandlers {
		fn(status)
	}
}
