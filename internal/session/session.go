// Package session ties one player's connection to a room together: it owns
// the local replica of the room state, feeds received actions through the
// reducer, rebuilds the roster from presence, and, when the local player is
// the host, runs the host engine on top.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"liargame/internal/app"
	"liargame/internal/domain"
	"liargame/internal/host"
	"liargame/internal/protocol"
	"liargame/internal/realtime"
)

var (
	ErrNotJoined = errors.New("session has not joined the room")
	ErrNotHost   = errors.New("local player is not the host")
)

// Session is one player's view of one room. All exported methods are safe
// for concurrent use; handler callbacks run on the channel's dispatch
// goroutine.
type Session struct {
	channel realtime.Channel
	self    domain.Player
	logger  zerolog.Logger
	svc     *app.Service
	engine  *host.Engine

	onState func(domain.RoomState)
	onChat  func(protocol.ChatMessage)

	mu     sync.Mutex
	state  domain.RoomState
	status realtime.Status
	joined bool
}

// New builds a session for self on the given channel. The host engine is
// created only for the host; everyone else is a follower and only ever
// broadcasts their own submissions.
func New(channel realtime.Channel, self domain.Player, settings domain.Settings, svc *app.Service, logger zerolog.Logger) *Session {
	s := &Session{
		channel: channel,
		self:    self,
		logger:  logger.With().Str("player", self.ID).Logger(),
		svc:     svc,
		state:   domain.NewRoomState(settings),
		status:  realtime.StatusConnecting,
	}
	if self.IsHost {
		s.engine = host.New(svc, s.broadcastAction, s.State, s.logger)
	}
	return s
}

// Engine exposes the host engine for delay tuning. Nil for non-hosts.
func (s *Session) Engine() *host.Engine {
	return s.engine
}

// OnStateChange registers a callback fired after every accepted state
// change. Must be called before Join.
func (s *Session) OnStateChange(fn func(domain.RoomState)) {
	s.onState = fn
}

// OnChat registers a callback for chat messages. Must be called before Join.
func (s *Session) OnChat(fn func(protocol.ChatMessage)) {
	s.onChat = fn
}

// Join subscribes to the room channel and announces presence. On any
// failure the channel is torn down before returning, so a failed Join
// leaves nothing behind.
func (s *Session) Join(ctx context.Context) error {
	s.channel.OnBroadcast(protocol.EventGameAction, s.handleAction)
	s.channel.OnBroadcast(protocol.EventChat, s.handleChat)
	s.channel.OnPresence(s.handlePresence)
	s.channel.OnStatus(s.handleStatus)

	if err := s.channel.Subscribe(ctx); err != nil {
		return err
	}
	if err := s.channel.Track(protocol.NewPresencePayload(s.self)); err != nil {
		_ = s.channel.Unsubscribe()
		return err
	}

	s.mu.Lock()
	s.joined = true
	s.mu.Unlock()
	s.logger.Info().Msg("joined room")
	return nil
}

// Leave withdraws presence and detaches from the channel. Safe to call on
// every teardown path, joined or not.
func (s *Session) Leave() {
	if s.engine != nil {
		s.engine.Stop()
	}
	s.mu.Lock()
	s.joined = false
	s.mu.Unlock()
	if err := s.channel.Unsubscribe(); err != nil && !errors.Is(err, realtime.ErrNotSubscribed) {
		s.logger.Warn().Err(err).Msg("unsubscribe failed")
	}
	s.logger.Info().Msg("left room")
}

// State returns a deep copy of the current replica.
func (s *Session) State() domain.RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Status returns the connection status last reported by the channel.
func (s *Session) Status() realtime.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StartGame asks the host engine to begin the game. Host only.
func (s *Session) StartGame() error {
	if s.engine == nil {
		return ErrNotHost
	}
	s.engine.StartGame()
	return nil
}

// NextRound asks the host engine to move on from the results screen.
// Host only.
func (s *Session) NextRound() error {
	if s.engine == nil {
		return ErrNotHost
	}
	s.engine.NextRound()
	return nil
}

// SubmitAnswer broadcasts this player's answer for the current round. The
// local replica is not mutated here; it advances when the broadcast is
// delivered back, the same way every other replica advances.
func (s *Session) SubmitAnswer(answer string) error {
	return s.send(domain.Action{
		Type:     domain.ActionSubmitAnswer,
		PlayerID: s.self.ID,
		Answer:   answer,
	})
}

// SubmitVote broadcasts this player's vote.
func (s *Session) SubmitVote(target string) error {
	return s.send(domain.Action{
		Type:     domain.ActionSubmitVote,
		PlayerID: s.self.ID,
		VotedFor: target,
	})
}

// SendChat broadcasts a chat line. Chat never touches the reducer.
func (s *Session) SendChat(text string) error {
	s.mu.Lock()
	joined := s.joined
	s.mu.Unlock()
	if !joined {
		return ErrNotJoined
	}
	msg := protocol.ChatMessage{
		PlayerID:  s.self.ID,
		Name:      s.self.Name,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := protocol.EncodeChat(msg)
	if err != nil {
		return err
	}
	return s.channel.Broadcast(protocol.EventChat, data)
}

func (s *Session) send(action domain.Action) error {
	s.mu.Lock()
	joined := s.joined
	s.mu.Unlock()
	if !joined {
		return ErrNotJoined
	}
	data, err := protocol.EncodeEnvelope(protocol.NewEnvelope(action, s.self.ID))
	if err != nil {
		return err
	}
	return s.channel.Broadcast(protocol.EventGameAction, data)
}

// broadcastAction is the host engine's send hook. Engine timers fire off
// the dispatch goroutine, so failures are logged rather than returned.
func (s *Session) broadcastAction(action domain.Action) {
	if err := s.send(action); err != nil {
		s.logger.Error().Err(err).Str("action", string(action.Type)).Msg("host broadcast failed")
	}
}

func (s *Session) handleAction(payload []byte) {
	env, err := protocol.DecodeEnvelope(payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("dropping malformed broadcast")
		return
	}

	s.mu.Lock()
	senderIsHost := false
	if p := s.state.FindPlayer(env.PlayerID); p != nil {
		senderIsHost = p.IsHost
	}
	next, err := domain.Apply(s.state, env.Action, senderIsHost)
	if err != nil {
		s.mu.Unlock()
		s.logger.Debug().Err(err).
			Str("action", string(env.Action.Type)).
			Str("sender", env.PlayerID).
			Msg("dropping rejected action")
		return
	}
	s.state = next
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.afterStateChange(snapshot)
}

func (s *Session) handleChat(payload []byte) {
	msg, err := protocol.DecodeChat(payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("dropping malformed chat")
		return
	}
	if s.onChat != nil {
		s.onChat(msg)
	}
}

// handlePresence rebuilds the roster from the presence snapshot carried on
// every event. Join and leave carry the same snapshot as sync, so one code
// path serves all three.
func (s *Session) handlePresence(ev realtime.PresenceEvent) {
	roster := realtime.Roster(ev.State)

	s.mu.Lock()
	s.state.SyncRoster(roster)
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.logger.Debug().
		Str("event", string(ev.Type)).
		Int("players", len(roster)).
		Msg("roster updated")
	s.afterStateChange(snapshot)
}

func (s *Session) handleStatus(status realtime.Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.logger.Info().Str("status", string(status)).Msg("channel status")
}

func (s *Session) afterStateChange(snapshot domain.RoomState) {
	if s.engine != nil {
		s.engine.OnStateChanged()
	}
	if s.onState != nil {
		s.onState(snapshot)
	}
}
