// Package engine implements the quantum five-in-a-row state machine.
//
// The engine owns the canonical GameState and is the only writer in local
// modes. Player actions validate against the current phase and either mutate
// the state or are silently dropped; results flow to the caller exclusively
// through emitted state snapshots. In networked mode every accepted action is
// pushed wholesale through the room store and every remote document replaces
// the local state.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/louisbranch/collapse.space/internal/game/ai"
	"github.com/louisbranch/collapse.space/internal/game/board"
	"github.com/louisbranch/collapse.space/internal/game/history"
	"github.com/louisbranch/collapse.space/internal/random"
	"github.com/louisbranch/collapse.space/internal/room"
)

// cpuPhase tracks which heuristic step the single pending timer drives.
type cpuPhase int

const (
	cpuIdle cpuPhase = iota
	cpuThinking
	cpuDeciding
)

// Engine runs one game instance. All mutations are serialized through its
// action entry points; at most one state-machine timer is in flight.
type Engine struct {
	mu      sync.Mutex
	state   GameState
	history *history.Stack[GameState]

	rng      random.Source
	clk      clock.Clock
	delays   Delays
	listener func(GameState)
	notice   func(string)

	timer    *clock.Timer
	timerSeq uint64
	cpu      cpuPhase

	store       room.Store
	clientID    string
	roomID      string
	isHost      bool
	localColor  *board.Color
	connections map[string]bool
	watchCancel context.CancelFunc
	graceTimer  *clock.Timer
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandom injects the random source used for collapse draws and heuristic
// decisions.
func WithRandom(src random.Source) Option {
	return func(e *Engine) { e.rng = src }
}

// WithClock injects the clock driving state-machine timers.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clk = clk }
}

// WithDelays overrides the fixed timer durations.
func WithDelays(d Delays) Option {
	return func(e *Engine) { e.delays = d }
}

// WithListener registers the snapshot callback invoked after every
// transition.
func WithListener(fn func(GameState)) Option {
	return func(e *Engine) { e.listener = fn }
}

// WithNotice registers the callback for user-facing notices such as sync
// failures and opponent departure.
func WithNotice(fn func(string)) Option {
	return func(e *Engine) { e.notice = fn }
}

// WithStore attaches the shared document store used in networked mode. An
// empty clientID gets a generated identity.
func WithStore(store room.Store, clientID string) Option {
	return func(e *Engine) {
		e.store = store
		e.clientID = clientID
	}
}

// WithHeuristicColor sets the computer-controlled color for LocalVsHeuristic.
func WithHeuristicColor(c board.Color) Option {
	return func(e *Engine) {
		color := c
		e.state.HeuristicColor = &color
	}
}

// New returns an engine with a fresh game in the given mode.
func New(mode Mode, opts ...Option) *Engine {
	e := &Engine{
		state:   newGameState(mode, nil),
		history: history.New[GameState](0),
		delays:  DefaultDelays(),
		notice:  func(msg string) { log.Printf("engine: %s", msg) },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		seed, err := random.NewSeed()
		if err != nil {
			seed = time.Now().UnixNano()
		}
		e.rng = random.NewSource(seed)
	}
	if e.clk == nil {
		e.clk = clock.New()
	}
	if e.clientID == "" {
		e.clientID = uuid.NewString()
	}
	e.mu.Lock()
	e.scheduleHeuristicLocked()
	done := e.finishLocked(false)
	e.mu.Unlock()
	done()
	return e
}

// State returns a snapshot of the current game state.
func (e *Engine) State() GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// PlaceStone places the selected strength at the cell, or marks it pending
// when confirmation mode is on. Invalid calls are dropped.
func (e *Engine) PlaceStone(row, col int) {
	e.mu.Lock()
	s := &e.state
	if s.Phase != AwaitingPlacement || !e.actingAllowedLocked() || !s.Board.Empty(row, col) {
		e.mu.Unlock()
		return
	}
	coord := board.Coord{Row: row, Col: col}
	if s.ConfirmMode && (s.Pending == nil || *s.Pending != coord) {
		s.Pending = &coord
		done := e.finishLocked(true)
		e.mu.Unlock()
		done()
		return
	}
	if s.StrengthForbidden(s.CurrentPlayer, s.SelectedStrength) {
		e.mu.Unlock()
		return
	}
	e.commitPlacementLocked(row, col)
	done := e.finishLocked(true)
	e.mu.Unlock()
	done()
}

// SelectStrength picks the stone strength for the next placement. Dropped
// when the index is forbidden by the repetition rule or it is not the local
// player's turn to choose.
func (e *Engine) SelectStrength(strength int) {
	e.mu.Lock()
	s := &e.state
	if strength != 0 && strength != 1 || s.Phase == Over || !e.actingAllowedLocked() {
		e.mu.Unlock()
		return
	}
	if s.StrengthForbidden(s.CurrentPlayer, strength) {
		e.mu.Unlock()
		return
	}
	s.SelectedStrength = strength
	done := e.finishLocked(true)
	e.mu.Unlock()
	done()
}

// EndTurn completes the turn without observing.
func (e *Engine) EndTurn() {
	e.mu.Lock()
	if e.state.Phase != Placed || !e.actingAllowedLocked() {
		e.mu.Unlock()
		return
	}
	e.advanceTurnLocked()
	e.scheduleHeuristicLocked()
	done := e.finishLocked(true)
	e.mu.Unlock()
	done()
}

// Observe triggers a collapse of every placed stone. Dropped when no stone
// was placed this turn or the observation budget is spent.
func (e *Engine) Observe() {
	e.mu.Lock()
	s := &e.state
	if s.Phase != Placed || !e.actingAllowedLocked() || s.ObservationsLeft[s.CurrentPlayer] <= 0 {
		e.mu.Unlock()
		return
	}
	e.beginObservationLocked()
	done := e.finishLocked(true)
	e.mu.Unlock()
	done()
}

// ToggleConfirmationMode flips two-click placement confirmation.
func (e *Engine) ToggleConfirmationMode() {
	e.mu.Lock()
	e.state.ConfirmMode = !e.state.ConfirmMode
	e.state.Pending = nil
	done := e.finishLocked(false)
	e.mu.Unlock()
	done()
}

// Undo rewinds to the start of the acting player's previous placement. In
// LocalVsHeuristic it keeps rewinding until the human is back at the start of
// their own turn; when history bottoms out on the computer's opening frame,
// the computer's turn is re-armed and replays. Disabled entirely in networked
// mode.
func (e *Engine) Undo() {
	e.mu.Lock()
	s := &e.state
	if s.Mode == Networked {
		e.mu.Unlock()
		return
	}
	frame, ok := e.history.Pop()
	if !ok {
		e.mu.Unlock()
		return
	}
	e.cancelTimerLocked()
	e.cpu = cpuIdle
	if s.Mode == LocalVsHeuristic && s.HeuristicColor != nil {
		cpu := *s.HeuristicColor
		for frame.CurrentPlayer == cpu || frame.Phase == Placed {
			next, more := e.history.Pop()
			if !more {
				break
			}
			frame = next
		}
	}
	e.state = frame
	e.scheduleHeuristicLocked()
	done := e.finishLocked(false)
	e.mu.Unlock()
	done()
}

// ResetOptions carries optional overrides for Reset. Nil fields preserve the
// current mode and heuristic color.
type ResetOptions struct {
	Mode           *Mode
	HeuristicColor *board.Color
}

// Reset starts a fresh game, canceling any pending timer.
func (e *Engine) Reset(opts ResetOptions) {
	e.mu.Lock()
	e.cancelTimerLocked()
	e.cancelGraceLocked()

	mode := e.state.Mode
	if opts.Mode != nil {
		mode = *opts.Mode
	}
	heuristicColor := e.state.HeuristicColor
	if opts.HeuristicColor != nil {
		heuristicColor = opts.HeuristicColor
	}
	confirm := e.state.ConfirmMode
	status, hostColor := e.state.Status, e.state.HostColor

	e.state = newGameState(mode, heuristicColor)
	e.state.ConfirmMode = confirm
	if mode == Networked {
		e.state.Status = status
		e.state.HostColor = hostColor
	}
	e.history.Clear()
	e.cpu = cpuIdle
	e.scheduleHeuristicLocked()
	done := e.finishLocked(true)
	e.mu.Unlock()
	done()
}

// actingAllowedLocked gates player actions by turn ownership.
func (e *Engine) actingAllowedLocked() bool {
	s := &e.state
	switch s.Mode {
	case Networked:
		return s.Status == StatusPlaying && e.localColor != nil && *e.localColor == s.CurrentPlayer
	case LocalVsHeuristic:
		return s.HeuristicColor == nil || *s.HeuristicColor != s.CurrentPlayer
	default:
		return true
	}
}

// commitPlacementLocked writes the stone and moves the phase to Placed. The
// pre-placement state is snapshotted for undo in non-networked modes.
func (e *Engine) commitPlacementLocked(row, col int) {
	s := &e.state
	if s.Mode != Networked {
		e.history.Push(s.Clone())
	}
	if err := s.Board.Place(row, col, stoneProbability(s.CurrentPlayer, s.SelectedStrength)); err != nil {
		return
	}
	s.LastStrength[s.CurrentPlayer] = s.SelectedStrength
	s.Pending = nil
	s.Phase = Placed
}

// advanceTurnLocked rotates the current player and rearms placement.
func (e *Engine) advanceTurnLocked() {
	s := &e.state
	s.CurrentPlayer = s.CurrentPlayer.Other()
	s.SelectedStrength = s.defaultStrength(s.CurrentPlayer)
	s.Pending = nil
	s.Phase = AwaitingPlacement
}

// beginObservationLocked starts the collapse pipeline.
func (e *Engine) beginObservationLocked() {
	e.state.Phase = Collapsing
	e.scheduleLocked(e.delays.Collapse, e.finishCollapse)
}

// finishCollapse resolves every stone, spends one observation, and runs the
// win detector with the observer as tiebreak.
func (e *Engine) finishCollapse(seq uint64) {
	e.mu.Lock()
	if seq != e.timerSeq || e.state.Phase != Collapsing {
		e.mu.Unlock()
		return
	}
	s := &e.state
	observer := s.CurrentPlayer
	s.Board.Resolve(e.rng.Float64)
	s.ObservationsLeft[observer]--

	result := board.DetectWin(&s.Board, observer)
	if result.Winner != nil {
		s.Winner = result.Winner
		s.WinningLine = result.Line
		s.Phase = Over
		e.cpu = cpuIdle
	} else {
		s.Phase = ShowingNoWinner
		e.scheduleLocked(e.delays.NoWinner, e.beginRevert)
	}
	done := e.finishLocked(true)
	e.mu.Unlock()
	done()
}

// beginRevert clears every observed color and shows the board back in
// superposition.
func (e *Engine) beginRevert(seq uint64) {
	e.mu.Lock()
	if seq != e.timerSeq || e.state.Phase != ShowingNoWinner {
		e.mu.Unlock()
		return
	}
	e.state.Board.Revert()
	e.state.Phase = Reverting
	e.scheduleLocked(e.delays.Revert, e.finishRevert)
	done := e.finishLocked(true)
	e.mu.Unlock()
	done()
}

// finishRevert completes the turn exactly like the direct end-turn path.
func (e *Engine) finishRevert(seq uint64) {
	e.mu.Lock()
	if seq != e.timerSeq || e.state.Phase != Reverting {
		e.mu.Unlock()
		return
	}
	e.advanceTurnLocked()
	e.scheduleHeuristicLocked()
	done := e.finishLocked(true)
	e.mu.Unlock()
	done()
}

// scheduleHeuristicLocked arms the thinking timer when it is the computer's
// turn to place.
func (e *Engine) scheduleHeuristicLocked() {
	s := &e.state
	if s.Mode != LocalVsHeuristic || s.HeuristicColor == nil {
		return
	}
	if s.Phase != AwaitingPlacement || s.CurrentPlayer != *s.HeuristicColor || s.Winner != nil {
		return
	}
	e.cpu = cpuThinking
	e.scheduleLocked(e.delays.Thinking, e.heuristicPlace)
}

// heuristicPlace commits the computer's placement and arms the observation
// decision timer.
func (e *Engine) heuristicPlace(seq uint64) {
	e.mu.Lock()
	s := &e.state
	if seq != e.timerSeq || e.cpu != cpuThinking || s.Phase != AwaitingPlacement {
		e.mu.Unlock()
		return
	}
	cpu := *s.HeuristicColor

	strength := 0
	if s.StrengthForbidden(cpu, 0) {
		strength = 1
	} else {
		strength = e.rng.Intn(2)
	}
	s.SelectedStrength = strength

	move, ok := ai.ChooseMove(&s.Board, cpu, e.rng)
	if !ok {
		e.cpu = cpuIdle
		e.mu.Unlock()
		return
	}
	e.commitPlacementLocked(move.Row, move.Col)
	e.cpu = cpuDeciding
	e.scheduleLocked(e.delays.Thinking, e.heuristicDecide)
	done := e.finishLocked(true)
	e.mu.Unlock()
	done()
}

// heuristicDecide either triggers an observation or ends the computer's turn.
func (e *Engine) heuristicDecide(seq uint64) {
	e.mu.Lock()
	s := &e.state
	if seq != e.timerSeq || e.cpu != cpuDeciding || s.Phase != Placed {
		e.mu.Unlock()
		return
	}
	cpu := *s.HeuristicColor
	e.cpu = cpuIdle
	if ai.ShouldObserve(&s.Board, cpu, s.ObservationsLeft[cpu], e.rng) {
		e.beginObservationLocked()
	} else {
		e.advanceTurnLocked()
	}
	done := e.finishLocked(true)
	e.mu.Unlock()
	done()
}

// scheduleLocked arms the single state-machine timer, replacing any pending
// one. Callbacks verify the sequence so canceled timers can never act.
func (e *Engine) scheduleLocked(d time.Duration, fn func(seq uint64)) {
	e.cancelTimerLocked()
	seq := e.timerSeq
	e.timer = e.clk.AfterFunc(d, func() { fn(seq) })
}

// cancelTimerLocked stops the pending timer and invalidates its sequence.
func (e *Engine) cancelTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerSeq++
}

// finishLocked captures the snapshot and, when push is set and the game is
// networked, the document to replicate. The returned closure must run after
// the lock is released.
func (e *Engine) finishLocked(push bool) func() {
	snap := e.state.Clone()
	var doc *room.Document
	var roomID string
	if push && e.state.Mode == Networked && e.store != nil && e.roomID != "" {
		doc = e.buildDocumentLocked(snap)
		roomID = e.roomID
	}
	listener := e.listener
	return func() {
		if listener != nil {
			listener(snap)
		}
		if doc != nil {
			e.save(roomID, *doc)
		}
	}
}

func (e *Engine) noticef(format string, args ...any) {
	if e.notice != nil {
		e.notice(fmt.Sprintf(format, args...))
	}
}
