// Package host implements the host-authority engine. Exactly one client per
// room runs it: the one whose player is flagged as host. It decides when the
// state machine advances and emits the corresponding actions; every other
// client only ever emits SUBMIT_ANSWER and SUBMIT_VOTE for itself.
package host

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"liargame/internal/app"
	"liargame/internal/domain"
)

// Engine drives the host-only transitions. Its timers are wall-clock and
// local to the host; they are not part of the authoritative state and other
// clients never assume they fired, they just wait for the broadcast.
type Engine struct {
	svc    *app.Service
	send   func(action domain.Action)
	state  func() domain.RoomState
	logger zerolog.Logger

	roundStartDelay time.Duration
	revealDelay     time.Duration

	mu                 sync.Mutex
	stopped            bool
	timers             []*time.Timer
	revealScheduledFor int
	endScheduledFor    int
}

// New constructs an engine. send broadcasts an action to the room; state
// returns the current replica so timer callbacks act on fresh data rather
// than a snapshot taken at scheduling time.
func New(svc *app.Service, send func(domain.Action), state func() domain.RoomState, logger zerolog.Logger) *Engine {
	return &Engine{
		svc:             svc,
		send:            send,
		state:           state,
		logger:          logger,
		roundStartDelay: 2 * time.Second,
		revealDelay:     5 * time.Second,
	}
}

// SetDelays overrides the round-start and reveal pauses.
func (e *Engine) SetDelays(roundStart, reveal time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roundStartDelay = roundStart
	e.revealDelay = reveal
}

// StartGame emits START_GAME when the lobby preconditions hold.
func (e *Engine) StartGame() {
	st := e.state()
	if st.Game.Phase != domain.PhaseWaiting {
		e.logger.Warn().Str("phase", string(st.Game.Phase)).Msg("start requested outside lobby")
		return
	}
	if len(st.Players) < st.Settings.MinPlayers {
		e.logger.Warn().Int("players", len(st.Players)).Int("min", st.Settings.MinPlayers).
			Msg("start requested with too few players")
		return
	}
	e.send(domain.Action{Type: domain.ActionStartGame})
}

// NextRound emits the results-phase advance: NEXT_ROUND while rounds remain,
// END_GAME otherwise.
func (e *Engine) NextRound() {
	st := e.state()
	if st.Game.Phase != domain.PhaseResults {
		e.logger.Warn().Str("phase", string(st.Game.Phase)).Msg("next round requested outside results")
		return
	}
	e.send(e.svc.AdvanceAction(st))
}

// OnStateChanged must be called after every reducer application and roster
// sync while the local player is host. It re-evaluates the completion
// predicates against the current roster every time, since players may still
// be joining and leaving mid-phase.
func (e *Engine) OnStateChanged() {
	st := e.state()

	switch st.Game.Phase {
	case domain.PhaseCategoryReveal:
		e.scheduleReveal(st.Game.CurrentRound)

	case domain.PhasePlaying, domain.PhaseVoting:
		if action := e.svc.CompletionAction(st); action != nil {
			e.send(*action)
		}

	case domain.PhaseReveal:
		e.scheduleEndRound(st.Game.CurrentRound)
	}
}

func (e *Engine) scheduleReveal(round int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped || e.revealScheduledFor == round {
		return
	}
	e.revealScheduledFor = round

	e.addTimerLocked(e.roundStartDelay, func() {
		st := e.state()
		if st.Game.Phase != domain.PhaseCategoryReveal || st.Game.CurrentRound != round {
			return
		}
		action, err := e.svc.RevealAction(st.Players)
		if err != nil {
			e.logger.Error().Err(err).Msg("could not pick round secrets")
			return
		}
		e.send(action)
	})
}

func (e *Engine) scheduleEndRound(round int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped || e.endScheduledFor == round {
		return
	}
	e.endScheduledFor = round

	e.addTimerLocked(e.revealDelay, func() {
		st := e.state()
		if st.Game.Phase != domain.PhaseReveal || st.Game.CurrentRound != round {
			return
		}
		e.send(e.svc.EndRoundAction(st))
	})
}

func (e *Engine) addTimerLocked(d time.Duration, fn func()) {
	e.timers = append(e.timers, time.AfterFunc(d, fn))
}

// Stop cancels pending timers. Called on room teardown; a stopped engine
// schedules nothing further.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	for _, t := range e.timers {
		t.Stop()
	}
	e.timers = nil
}
