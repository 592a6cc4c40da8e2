package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"liargame/internal/protocol"
)

// Bus is an in-process transport: every channel created from the same Bus
// with the same topic shares one room. It backs local/offline play and tests;
// live play uses the wsclient binding against a relay.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topic

	// Redeliver makes the bus deliver every broadcast twice. The transport
	// contract is at-least-once, so tests flip this to prove handlers are
	// idempotent.
	Redeliver bool
}

type topic struct {
	subscribers map[*LocalChannel]struct{}
	presence    map[string]protocol.PresencePayload
}

// NewBus returns an empty in-process transport.
func NewBus() *Bus {
	return &Bus{topics: make(map[string]*topic)}
}

type broadcastDelivery struct {
	event   string
	payload []byte
}

type delivery struct {
	broadcast *broadcastDelivery
	presence  *PresenceEvent
	status    *Status
	stop      bool
}

// LocalChannel is the Bus binding of Channel.
type LocalChannel struct {
	bus   *Bus
	name  string
	key   string
	inbox chan delivery

	broadcastHandlers map[string][]func([]byte)
	presenceHandlers  []func(PresenceEvent)
	statusHandlers    []func(Status)

	mu         sync.Mutex
	subscribed bool
	tracked    bool
}

// Channel creates an unsubscribed channel for the given topic. The connection
// key is a fresh uuid per channel, mirroring one websocket connection.
func (b *Bus) Channel(name string) *LocalChannel {
	return &LocalChannel{
		bus:               b,
		name:              name,
		key:               uuid.NewString(),
		broadcastHandlers: make(map[string][]func([]byte)),
	}
}

func (c *LocalChannel) OnBroadcast(event string, fn func(payload []byte)) {
	c.broadcastHandlers[event] = append(c.broadcastHandlers[event], fn)
}

func (c *LocalChannel) OnPresence(fn func(ev PresenceEvent)) {
	c.presenceHandlers = append(c.presenceHandlers, fn)
}

func (c *LocalChannel) OnStatus(fn func(status Status)) {
	c.statusHandlers = append(c.statusHandlers, fn)
}

func (c *LocalChannel) Subscribe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.subscribed {
		c.mu.Unlock()
		return ErrAlreadySubscribed
	}
	c.subscribed = true
	c.inbox = make(chan delivery, 256)
	c.mu.Unlock()

	go c.dispatchLoop()

	c.bus.mu.Lock()
	tp, ok := c.bus.topics[c.name]
	if !ok {
		tp = &topic{
			subscribers: make(map[*LocalChannel]struct{}),
			presence:    make(map[string]protocol.PresencePayload),
		}
		c.bus.topics[c.name] = tp
	}
	tp.subscribers[c] = struct{}{}
	snapshot := tp.snapshot()
	c.bus.mu.Unlock()

	connected := StatusConnected
	c.post(delivery{status: &connected})
	c.post(delivery{presence: &PresenceEvent{Type: PresenceSync, State: snapshot}})
	return nil
}

func (c *LocalChannel) Broadcast(event string, payload []byte) error {
	c.mu.Lock()
	subscribed := c.subscribed
	c.mu.Unlock()
	if !subscribed {
		return ErrNotSubscribed
	}

	c.bus.mu.Lock()
	tp := c.bus.topics[c.name]
	if tp == nil {
		// A concurrent Unsubscribe of the last subscriber can delete the
		// topic between the subscribed check and this lookup.
		c.bus.mu.Unlock()
		return ErrNotSubscribed
	}
	targets := tp.subscriberList()
	redeliver := c.bus.Redeliver
	c.bus.mu.Unlock()

	data := append([]byte(nil), payload...)
	for _, sub := range targets {
		sub.post(delivery{broadcast: &broadcastDelivery{event: event, payload: data}})
		if redeliver {
			sub.post(delivery{broadcast: &broadcastDelivery{event: event, payload: data}})
		}
	}
	return nil
}

func (c *LocalChannel) Track(payload protocol.PresencePayload) error {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return ErrNotSubscribed
	}
	c.tracked = true
	c.mu.Unlock()

	c.bus.mu.Lock()
	tp := c.bus.topics[c.name]
	if tp == nil {
		c.bus.mu.Unlock()
		return ErrNotSubscribed
	}
	_, rejoin := tp.presence[c.key]
	tp.presence[c.key] = payload
	targets := tp.subscriberList()
	snapshot := tp.snapshot()
	c.bus.mu.Unlock()

	for _, sub := range targets {
		if !rejoin {
			sub.post(delivery{presence: &PresenceEvent{Type: PresenceJoin, Key: c.key, State: snapshot}})
		}
		sub.post(delivery{presence: &PresenceEvent{Type: PresenceSync, State: snapshot}})
	}
	return nil
}

func (c *LocalChannel) Untrack() error {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return ErrNotSubscribed
	}
	c.tracked = false
	c.mu.Unlock()

	c.removePresence()
	return nil
}

func (c *LocalChannel) Unsubscribe() error {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return nil
	}
	c.subscribed = false
	tracked := c.tracked
	c.tracked = false
	c.mu.Unlock()

	if tracked {
		c.removePresence()
	}

	c.bus.mu.Lock()
	if tp, ok := c.bus.topics[c.name]; ok {
		delete(tp.subscribers, c)
		if len(tp.subscribers) == 0 {
			delete(c.bus.topics, c.name)
		}
	}
	c.bus.mu.Unlock()

	disconnected := StatusDisconnected
	c.post(delivery{status: &disconnected})
	c.post(delivery{stop: true})
	return nil
}

func (c *LocalChannel) removePresence() {
	c.bus.mu.Lock()
	tp, ok := c.bus.topics[c.name]
	if !ok {
		c.bus.mu.Unlock()
		return
	}
	_, present := tp.presence[c.key]
	delete(tp.presence, c.key)
	targets := tp.subscriberList()
	snapshot := tp.snapshot()
	c.bus.mu.Unlock()

	if !present {
		return
	}
	for _, sub := range targets {
		sub.post(delivery{presence: &PresenceEvent{Type: PresenceLeave, Key: c.key, State: snapshot}})
		sub.post(delivery{presence: &PresenceEvent{Type: PresenceSync, State: snapshot}})
	}
}

func (c *LocalChannel) post(d delivery) {
	select {
	case c.inbox <- d:
	default:
		// Slow consumer; at-least-once permits drops only at the consumer's
		// expense, and a full inbox here means the dispatch goroutine died.
	}
}

func (c *LocalChannel) dispatchLoop() {
	for d := range c.inbox {
		switch {
		case d.stop:
			return
		case d.broadcast != nil:
			for _, fn := range c.broadcastHandlers[d.broadcast.event] {
				fn(d.broadcast.payload)
			}
		case d.presence != nil:
			for _, fn := range c.presenceHandlers {
				fn(*d.presence)
			}
		case d.status != nil:
			for _, fn := range c.statusHandlers {
				fn(*d.status)
			}
		}
	}
}

func (tp *topic) subscriberList() []*LocalChannel {
	out := make([]*LocalChannel, 0, len(tp.subscribers))
	for sub := range tp.subscribers {
		out = append(out, sub)
	}
	return out
}

func (tp *topic) snapshot() PresenceState {
	out := make(PresenceState, len(tp.presence))
	for key, payload := range tp.presence {
		out[key] = []protocol.PresencePayload{payload}
	}
	return out
}
