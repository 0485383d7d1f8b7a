// Package board implements the quantum five-in-a-row board model.
//
// Every placed stone carries a probability of resolving to Black when an
// observation collapses the board. Stones stay color-indeterminate until
// Resolve fixes them, and Revert returns them to superposition.
package board

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Size is the fixed board dimension.
const Size = 15

// WinRun is the run length required to win.
const WinRun = 5

// Color identifies one of the two players. Black moves first.
type Color int

const (
	Black Color = iota
	White
)

func (c Color) String() string {
	switch c {
	case Black:
		return "Black"
	case White:
		return "White"
	default:
		return "Unknown"
	}
}

// Other returns the opposing color.
func (c Color) Other() Color {
	if c == Black {
		return White
	}
	return Black
}

// Coord addresses a single board cell.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// ErrOccupied indicates a placement targeted a non-empty cell.
var ErrOccupied = errors.New("cell is occupied")

// ErrOutOfBounds indicates a coordinate outside the board.
var ErrOutOfBounds = errors.New("coordinate out of bounds")

// Stone is a placed stone. Probability is the chance of resolving to Black;
// Observed is set only between an observation and the matching revert.
type Stone struct {
	Probability float64 `json:"probability"`
	Observed    *Color  `json:"observed,omitempty"`
}

// ResolveProbability returns the chance the stone resolves to the given color.
func (s Stone) ResolveProbability(c Color) float64 {
	if c == Black {
		return s.Probability
	}
	return 1 - s.Probability
}

// Board is a fixed grid of optional stones.
type Board struct {
	cells [Size][Size]*Stone
}

// InBounds reports whether the coordinate is on the board.
func InBounds(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}

// At returns the stone at the coordinate, or nil for an empty or
// out-of-bounds cell.
func (b *Board) At(row, col int) *Stone {
	if !InBounds(row, col) {
		return nil
	}
	return b.cells[row][col]
}

// Empty reports whether the cell is on the board and holds no stone.
func (b *Board) Empty(row, col int) bool {
	return InBounds(row, col) && b.cells[row][col] == nil
}

// Place writes a stone with the given Black-resolve probability.
func (b *Board) Place(row, col int, probability float64) error {
	if !InBounds(row, col) {
		return fmt.Errorf("place at (%d,%d): %w", row, col, ErrOutOfBounds)
	}
	if b.cells[row][col] != nil {
		return fmt.Errorf("place at (%d,%d): %w", row, col, ErrOccupied)
	}
	b.cells[row][col] = &Stone{Probability: probability}
	return nil
}

// Full reports whether no empty cell remains.
func (b *Board) Full() bool {
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			if b.cells[row][col] == nil {
				return false
			}
		}
	}
	return true
}

// Resolve collapses every stone to a concrete color. The draw function must
// return uniform values in [0,1); exactly one draw is consumed per stone, in
// row-major order.
func (b *Board) Resolve(draw func() float64) {
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			stone := b.cells[row][col]
			if stone == nil {
				continue
			}
			color := White
			if draw() < stone.Probability {
				color = Black
			}
			stone.Observed = &color
		}
	}
}

// Revert clears every observed color, returning the board to superposition.
// Probabilities are untouched.
func (b *Board) Revert() {
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			if stone := b.cells[row][col]; stone != nil {
				stone.Observed = nil
			}
		}
	}
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() Board {
	var out Board
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			if stone := b.cells[row][col]; stone != nil {
				copied := *stone
				if stone.Observed != nil {
					observed := *stone.Observed
					copied.Observed = &observed
				}
				out.cells[row][col] = &copied
			}
		}
	}
	return out
}

// placedStone is the wire form of one occupied cell. The board serializes as
// the list of occupied cells so replicated documents stay sparse.
type placedStone struct {
	Row         int     `json:"row"`
	Col         int     `json:"col"`
	Probability float64 `json:"probability"`
	Observed    *Color  `json:"observed,omitempty"`
}

type boardDoc struct {
	Stones []placedStone `json:"stones,omitempty"`
}

// MarshalJSON encodes the board as its occupied cells.
func (b Board) MarshalJSON() ([]byte, error) {
	var doc boardDoc
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			stone := b.cells[row][col]
			if stone == nil {
				continue
			}
			doc.Stones = append(doc.Stones, placedStone{
				Row:         row,
				Col:         col,
				Probability: stone.Probability,
				Observed:    stone.Observed,
			})
		}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON materializes a full board from a possibly sparse document.
// Missing cells default to empty and out-of-range entries are dropped.
func (b *Board) UnmarshalJSON(data []byte) error {
	var doc boardDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal board: %w", err)
	}
	var out Board
	for _, placed := range doc.Stones {
		if !InBounds(placed.Row, placed.Col) {
			continue
		}
		stone := &Stone{Probability: placed.Probability}
		if placed.Observed != nil {
			observed := *placed.Observed
			stone.Observed = &observed
		}
		out.cells[placed.Row][placed.Col] = stone
	}
	*b = out
	return nil
}
