package engine

import (
	"time"

	"github.com/louisbranch/collapse.space/internal/game/board"
)

// Mode selects who controls each color.
type Mode int

const (
	LocalVsLocal Mode = iota
	LocalVsHeuristic
	Networked
)

func (m Mode) String() string {
	switch m {
	case LocalVsLocal:
		return "local"
	case LocalVsHeuristic:
		return "heuristic"
	case Networked:
		return "networked"
	default:
		return "unknown"
	}
}

// Phase is the turn state machine position.
type Phase int

const (
	AwaitingPlacement Phase = iota
	Placed
	Collapsing
	ShowingNoWinner
	Reverting
	Over
)

func (p Phase) String() string {
	switch p {
	case AwaitingPlacement:
		return "awaiting_placement"
	case Placed:
		return "placed"
	case Collapsing:
		return "collapsing"
	case ShowingNoWinner:
		return "showing_no_winner"
	case Reverting:
		return "reverting"
	case Over:
		return "over"
	default:
		return "unknown"
	}
}

// Status tracks the networked room lifecycle.
type Status int

const (
	StatusLocal Status = iota
	StatusWaiting
	StatusPlaying
)

// ObservationQuota is each color's observation budget per game.
const ObservationQuota = 5

// NoStrength marks a color that has not placed a stone yet.
const NoStrength = -1

// Stone strengths, as the probability of resolving to the owner's color.
// Index 0 is the strongest and cannot be played twice in a row by the same
// color.
var strengthProbabilities = [2]float64{0.9, 0.7}

// stoneProbability converts a strength index into the stored Black-resolve
// probability for the given owner.
func stoneProbability(owner board.Color, strength int) float64 {
	p := strengthProbabilities[strength]
	if owner == White {
		return 1 - p
	}
	return p
}

// Aliases so engine callers rarely need the board package for colors.
const (
	Black = board.Black
	White = board.White
)

// GameState is the single source of truth for one game. It serializes to one
// flat document; in networked mode the whole document is the unit of
// synchronization.
type GameState struct {
	Board            board.Board   `json:"board"`
	Mode             Mode          `json:"mode"`
	HeuristicColor   *board.Color  `json:"heuristic_color,omitempty"`
	CurrentPlayer    board.Color   `json:"current_player"`
	SelectedStrength int           `json:"selected_strength"`
	LastStrength     [2]int        `json:"last_strength"`
	ObservationsLeft [2]int        `json:"observations_left"`
	Phase            Phase         `json:"phase"`
	Winner           *board.Color  `json:"winner,omitempty"`
	WinningLine      []board.Coord `json:"winning_line,omitempty"`
	Pending          *board.Coord  `json:"pending,omitempty"`
	ConfirmMode      bool          `json:"confirm_mode,omitempty"`
	Status           Status        `json:"status,omitempty"`
	HostColor        *board.Color  `json:"host_color,omitempty"`
}

// newGameState returns the fresh state for a game in the given mode.
func newGameState(mode Mode, heuristicColor *board.Color) GameState {
	state := GameState{
		Mode:             mode,
		CurrentPlayer:    Black,
		LastStrength:     [2]int{NoStrength, NoStrength},
		ObservationsLeft: [2]int{ObservationQuota, ObservationQuota},
	}
	if mode == LocalVsHeuristic && heuristicColor != nil {
		c := *heuristicColor
		state.HeuristicColor = &c
	}
	return state
}

// Clone returns a deep copy safe to hand to listeners and stores.
func (s GameState) Clone() GameState {
	out := s
	out.Board = s.Board.Clone()
	out.HeuristicColor = cloneColor(s.HeuristicColor)
	out.Winner = cloneColor(s.Winner)
	out.HostColor = cloneColor(s.HostColor)
	if s.WinningLine != nil {
		out.WinningLine = append([]board.Coord(nil), s.WinningLine...)
	}
	if s.Pending != nil {
		pending := *s.Pending
		out.Pending = &pending
	}
	return out
}

// StrengthForbidden reports whether the repetition rule bars the strength for
// the color's next placement.
func (s *GameState) StrengthForbidden(c board.Color, strength int) bool {
	return strength == 0 && s.LastStrength[c] == 0
}

// defaultStrength returns the strength selected at the start of a turn.
func (s *GameState) defaultStrength(c board.Color) int {
	if s.StrengthForbidden(c, 0) {
		return 1
	}
	return 0
}

// IsCollapsing reports whether the board is mid-collapse, for renderers.
func (s *GameState) IsCollapsing() bool {
	return s.Phase == Collapsing
}

// normalize repairs a state decoded from a possibly sparse remote document so
// the engine can treat it as authoritative.
func (s *GameState) normalize() {
	for c := range s.ObservationsLeft {
		if s.ObservationsLeft[c] < 0 {
			s.ObservationsLeft[c] = 0
		}
	}
	for c := range s.LastStrength {
		if s.LastStrength[c] != 0 && s.LastStrength[c] != 1 {
			s.LastStrength[c] = NoStrength
		}
	}
	if s.SelectedStrength != 0 && s.SelectedStrength != 1 {
		s.SelectedStrength = s.defaultStrength(s.CurrentPlayer)
	}
	if s.Phase < AwaitingPlacement || s.Phase > Over {
		s.Phase = AwaitingPlacement
	}
}

func cloneColor(c *board.Color) *board.Color {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// Delays holds every fixed timer duration the state machine uses.
type Delays struct {
	// Thinking paces the heuristic opponent's placement and its
	// observation decision.
	Thinking time.Duration
	// Collapse separates the Collapsing phase from stone resolution.
	Collapse time.Duration
	// NoWinner holds the resolved board on screen when nobody won.
	NoWinner time.Duration
	// Revert holds the Reverting phase before the next turn starts.
	Revert time.Duration
	// Grace is how long a missing peer presence flag is tolerated before
	// the opponent counts as disconnected.
	Grace time.Duration
}

// DefaultDelays returns the reference timing contract.
func DefaultDelays() Delays {
	return Delays{
		Thinking: time.Second,
		Collapse: time.Second,
		NoWinner: time.Second,
		Revert:   time.Second,
		Grace:    3 * time.Second,
	}
}
