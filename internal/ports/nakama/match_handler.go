package nakama

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/heroiclabs/nakama-common/runtime"

	"liargame/internal/app"
	"liargame/internal/config"
	"liargame/internal/domain"
	"liargame/internal/protocol"
)

// MatchLabel is the queryable label published for every room.
type MatchLabel struct {
	Game  string `json:"game"`
	Code  string `json:"code"`
	Open  int    `json:"open"`
	Phase string `json:"phase"`
}

// RoomSnapshot is the per-recipient state payload sent on OpRoomState. The
// keyword is blanked for the liar before sending, which is the one place the
// authoritative variant diverges from broadcasting identical state to all.
type RoomSnapshot struct {
	Code string           `json:"code"`
	Tick int64            `json:"tick"`
	Room domain.RoomState `json:"room"`
}

// ErrorPayload is sent on OpError to the offending client only.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MatchState holds the authoritative runtime state for one room. Unlike the
// relay, which only forwards frames, this handler owns the room state and is
// itself the host authority; clients never run a host engine against it.
type MatchState struct {
	Code      string                      `json:"code"`
	Room      domain.RoomState            `json:"room"`
	Tick      int64                       `json:"tick"`
	Presences map[string]runtime.Presence `json:"-"` // user ID -> presence
	Svc       *app.Service                `json:"-"`

	// Tick deadlines for server-driven transitions, zero when unarmed.
	// Tick rate is 1/s, so deadlines are in seconds.
	RevealAtTick      int64 `json:"reveal_at_tick"`
	EndRoundAtTick    int64 `json:"end_round_at_tick"`
	RoundDeadlineTick int64 `json:"round_deadline_tick"`
}

func (ms *MatchState) openSeats() int {
	open := ms.Room.Settings.MaxPlayers - len(ms.Room.Players)
	if open < 0 {
		return 0
	}
	return open
}

// hostID returns the current host's user ID, or empty when the room has no
// players.
func (ms *MatchState) hostID() string {
	for _, p := range ms.Room.Players {
		if p.IsHost {
			return p.ID
		}
	}
	return ""
}

// clientActionAllowed reports whether clients may send this action type.
// Phase transitions other than the three below are driven by the server's
// own timers and completion checks, so a client sending one is a protocol
// violation regardless of who they are.
func clientActionAllowed(t domain.ActionType) bool {
	switch t {
	case domain.ActionStartGame, domain.ActionNextRound, domain.ActionEndGame,
		domain.ActionSubmitAnswer, domain.ActionSubmitVote:
		return true
	}
	return false
}

func newMatchHandler() runtime.Match {
	return &matchHandler{}
}

type matchHandler struct{}

func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	if err := config.LoadGameConfig("data/game_config.json"); err != nil {
		logger.Warn("MatchInit: Could not load game config: %v", err)
	}
	cfg := config.GetGameConfig()

	code, _ := params["code"].(string)
	if !domain.ValidateRoomCode(code) {
		code = domain.GenerateRoomCode()
	}

	state := &MatchState{
		Code:      code,
		Room:      domain.NewRoomState(cfg.Settings()),
		Presences: make(map[string]runtime.Presence),
		Svc:       app.NewService(nil),
	}

	label, err := marshalLabel(state)
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}

	logger.Info("MatchInit: Room %s ready.", code)
	tickRate := 1
	return state, tickRate, label
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}

	if matchState.Room.HasPlayer(presence.GetUserId()) {
		// Reconnect, their seat is still theirs.
		return matchState, true, ""
	}
	if matchState.openSeats() <= 0 {
		return matchState, false, "Room full"
	}
	return matchState, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		matchState.Presences[p.GetUserId()] = p
		if matchState.Room.HasPlayer(p.GetUserId()) {
			logger.Debug("MatchJoin: User %s reconnected to room %s.", p.GetUserId(), matchState.Code)
			continue
		}

		player := domain.Player{
			ID:     p.GetUserId(),
			Name:   p.GetUsername(),
			IsHost: matchState.hostID() == "",
		}
		matchState.Room.Players = append(matchState.Room.Players, player)
		logger.Info("MatchJoin: User %s joined room %s (host=%t).", p.GetUserId(), matchState.Code, player.IsHost)
	}

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastRoomState(matchState, dispatcher, logger)
	return matchState
}

func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	for _, p := range presences {
		delete(matchState.Presences, p.GetUserId())
		removePlayer(&matchState.Room, p.GetUserId())
		logger.Debug("MatchLeave: User %s left room %s.", p.GetUserId(), matchState.Code)
	}

	if len(matchState.Room.Players) == 0 {
		logger.Info("MatchLeave: Terminating empty room %s.", matchState.Code)
		return nil
	}

	// Promote a new host if the host left. The server is the real authority
	// here, so handing the host badge over is just a roster edit.
	if matchState.hostID() == "" {
		matchState.Room.Players[0].IsHost = true
		logger.Info("MatchLeave: Host left, promoted %s.", matchState.Room.Players[0].ID)
	}

	// A shrunk roster can complete the current phase.
	mh.checkCompletion(matchState, dispatcher, logger)

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastRoomState(matchState, dispatcher, logger)
	return matchState
}

func removePlayer(room *domain.RoomState, userID string) {
	dst := room.Players[:0]
	for _, p := range room.Players {
		if p.ID != userID {
			dst = append(dst, p)
		}
	}
	room.Players = dst
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}
	matchState.Tick = tick

	for _, msg := range messages {
		switch msg.GetOpCode() {
		case OpAction:
			mh.handleAction(matchState, dispatcher, logger, msg)
		case OpChat:
			mh.handleChat(matchState, dispatcher, logger, msg)
		default:
			logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		}
	}

	mh.runTimers(matchState, dispatcher, logger)
	return matchState
}

func (mh *matchHandler) handleAction(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()

	env, err := protocol.DecodeEnvelope(msg.GetData())
	if err != nil {
		logger.Warn("handleAction: Malformed envelope from %s: %v", senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, 400, "malformed action envelope")
		return
	}

	// The sender cannot speak for anyone else. The relay has to trust the
	// envelope; here the transport authenticates the sender, so use it.
	if env.PlayerID != senderID {
		logger.Warn("handleAction: User %s sent an envelope claiming to be %s.", senderID, env.PlayerID)
		mh.sendError(state, dispatcher, logger, senderID, 403, "envelope sender mismatch")
		return
	}
	if !clientActionAllowed(env.Action.Type) {
		logger.Warn("handleAction: User %s sent server-reserved action %s.", senderID, env.Action.Type)
		mh.sendError(state, dispatcher, logger, senderID, 403, "action is server-driven")
		return
	}

	senderIsHost := senderID == state.hostID()
	next, err := domain.Apply(state.Room, env.Action, senderIsHost)
	if err != nil {
		logger.Debug("handleAction: Rejected %s from %s: %v", env.Action.Type, senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, 400, err.Error())
		return
	}

	prevPhase := state.Room.Game.Phase
	state.Room = next
	mh.afterTransition(state, dispatcher, logger, prevPhase)
	mh.checkCompletion(state, dispatcher, logger)
	mh.broadcastRoomState(state, dispatcher, logger)
}

func (mh *matchHandler) handleChat(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	chat, err := protocol.DecodeChat(msg.GetData())
	if err != nil || chat.PlayerID != senderID {
		logger.Warn("handleChat: Dropping malformed chat from %s.", senderID)
		return
	}
	if pl := state.Room.FindPlayer(senderID); pl != nil {
		chat.Name = pl.Name
	}
	data, err := json.Marshal(chat)
	if err != nil {
		return
	}
	dispatcher.BroadcastMessage(OpChatRelay, data, nil, nil, true)
}

// applyHostAction applies a server-originated action. These come from the
// server's own timers and completion checks, so a rejection is a bug worth a
// log line, not a client error.
func (mh *matchHandler) applyHostAction(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, action domain.Action) {
	next, err := domain.Apply(state.Room, action, true)
	if err != nil {
		logger.Error("applyHostAction: %s rejected: %v", action.Type, err)
		return
	}
	prevPhase := state.Room.Game.Phase
	state.Room = next
	mh.afterTransition(state, dispatcher, logger, prevPhase)
	mh.broadcastRoomState(state, dispatcher, logger)
}

// afterTransition arms the tick deadlines that follow a phase change.
func (mh *matchHandler) afterTransition(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, prevPhase domain.Phase) {
	phase := state.Room.Game.Phase
	if phase == prevPhase {
		return
	}

	cfg := config.GetGameConfig()
	switch phase {
	case domain.PhaseCategoryReveal:
		state.RevealAtTick = state.Tick + int64(cfg.RoundStartDelaySeconds)
	case domain.PhasePlaying:
		state.RoundDeadlineTick = state.Tick + int64(state.Room.Settings.TimePerRound)
	case domain.PhaseReveal:
		state.EndRoundAtTick = state.Tick + int64(cfg.RevealDelaySeconds)
	}
	mh.updateLabel(state, dispatcher, logger)
}

// checkCompletion advances the phase when every present player has acted.
func (mh *matchHandler) checkCompletion(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if action := state.Svc.CompletionAction(state.Room); action != nil {
		mh.applyHostAction(state, dispatcher, logger, *action)
	}
}

// runTimers drives the transitions that are time-based rather than
// input-based: the category reveal pause, the round countdown and the
// end-of-round reveal pause.
func (mh *matchHandler) runTimers(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	switch state.Room.Game.Phase {
	case domain.PhaseCategoryReveal:
		if state.RevealAtTick > 0 && state.Tick >= state.RevealAtTick {
			state.RevealAtTick = 0
			action, err := state.Svc.RevealAction(state.Room.Players)
			if err != nil {
				logger.Error("runTimers: Could not pick round secrets: %v", err)
				return
			}
			mh.applyHostAction(state, dispatcher, logger, action)
		}

	case domain.PhasePlaying:
		remaining := int(state.RoundDeadlineTick - state.Tick)
		if remaining < 0 {
			remaining = 0
		}
		if remaining != state.Room.Game.TimeLeft {
			state.Room.Game.TimeLeft = remaining
			mh.broadcastRoomState(state, dispatcher, logger)
		}
		if remaining == 0 {
			// Time is up; whoever has not answered is skipped.
			logger.Info("runTimers: Round timer expired in room %s.", state.Code)
			mh.applyHostAction(state, dispatcher, logger, domain.Action{Type: domain.ActionStartVoting})
		}

	case domain.PhaseReveal:
		if state.EndRoundAtTick > 0 && state.Tick >= state.EndRoundAtTick {
			state.EndRoundAtTick = 0
			mh.applyHostAction(state, dispatcher, logger, state.Svc.EndRoundAction(state.Room))
		}
	}
}

// broadcastRoomState sends each connected player their own view of the
// room. Everyone gets identical state except the liar, whose copy has the
// keyword blanked; the client variant cannot do this, a relay has no
// per-recipient delivery.
func (mh *matchHandler) broadcastRoomState(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	for userID, presence := range state.Presences {
		snapshot := RoomSnapshot{
			Code: state.Code,
			Tick: state.Tick,
			Room: snapshotFor(state.Room, userID),
		}
		data, err := json.Marshal(snapshot)
		if err != nil {
			logger.Error("broadcastRoomState: Marshal failed: %v", err)
			return
		}
		dispatcher.BroadcastMessage(OpRoomState, data, []runtime.Presence{presence}, nil, true)
	}
}

// snapshotFor redacts the parts of the room the recipient must not see.
func snapshotFor(room domain.RoomState, userID string) domain.RoomState {
	out := room.Clone()
	if out.Game.LiarID == userID && out.Game.Phase != domain.PhaseReveal && out.Game.Phase != domain.PhaseResults {
		out.Game.Keyword = ""
	}
	return out
}

func (mh *matchHandler) sendError(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, code int, message string) {
	presence, ok := state.Presences[userID]
	if !ok {
		logger.Warn("sendError: Cannot send error to %s: presence not found", userID)
		return
	}
	data, err := json.Marshal(ErrorPayload{Code: code, Message: message})
	if err != nil {
		logger.Error("sendError: Marshal failed: %v", err)
		return
	}
	dispatcher.BroadcastMessage(OpError, data, []runtime.Presence{presence}, nil, true)
}

func marshalLabel(state *MatchState) (string, error) {
	label := MatchLabel{
		Game:  labelGame,
		Code:  state.Code,
		Open:  state.openSeats(),
		Phase: string(state.Room.Game.Phase),
	}
	data, err := json.Marshal(label)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	label, err := marshalLabel(state)
	if err != nil {
		logger.Error("updateLabel: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(label); err != nil {
		logger.Error("updateLabel: Failed to update: %v", err)
	}
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, reason int) interface{} {
	logger.Debug("MatchTerminate: Match terminated for reason %d", reason)
	return state
}

// MatchSignal answers out-of-band queries with the room label, which keeps
// ops tooling from needing a presence in the room just to inspect it.
func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, ""
	}
	label, err := marshalLabel(matchState)
	if err != nil {
		return matchState, ""
	}
	return matchState, label
}
