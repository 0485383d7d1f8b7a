// Package ai implements the heuristic computer opponent.
//
// Both selectors are pure functions of the current board plus an injected
// random source, so games replay deterministically under a seeded source.
package ai

import (
	"github.com/louisbranch/collapse.space/internal/game/board"
	"github.com/louisbranch/collapse.space/internal/random"
)

// extendThreshold is the minimum resolve probability a neighbor needs to keep
// a probabilistic run growing.
const extendThreshold = 0.4

// tieMargin groups candidate moves whose scores are effectively equal.
const tieMargin = 0.001

// defenseWeight values blocking the opponent slightly above attacking.
const defenseWeight = 1.2

var axes = [4]board.Coord{
	{Row: 0, Col: 1},
	{Row: 1, Col: 0},
	{Row: 1, Col: 1},
	{Row: 1, Col: -1},
}

// ChooseMove scores every empty cell for the color and picks uniformly among
// the best candidates. It returns false only when the board is full.
func ChooseMove(b *board.Board, c board.Color, rng random.Source) (board.Coord, bool) {
	scores := make(map[board.Coord]float64)
	best := 0.0
	found := false

	for row := 0; row < board.Size; row++ {
		for col := 0; col < board.Size; col++ {
			if !b.Empty(row, col) {
				continue
			}
			attack := lineStrength(b, row, col, c)
			defense := lineStrength(b, row, col, c.Other())
			score := attack + defense*defenseWeight + centralityBonus(row, col)
			scores[board.Coord{Row: row, Col: col}] = score
			if !found || score > best {
				best = score
				found = true
			}
		}
	}
	if !found {
		return board.Coord{}, false
	}

	var candidates []board.Coord
	for row := 0; row < board.Size; row++ {
		for col := 0; col < board.Size; col++ {
			coord := board.Coord{Row: row, Col: col}
			if score, ok := scores[coord]; ok && score >= best-tieMargin {
				candidates = append(candidates, coord)
			}
		}
	}
	return candidates[rng.Intn(len(candidates))], true
}

// lineStrength evaluates the candidate cell as if it already held a fully
// resolved stone of the color, extending outward along each axis and
// accumulating neighbor resolve probabilities while they stay at or above
// extendThreshold.
func lineStrength(b *board.Board, row, col int, c board.Color) float64 {
	total := 0.0
	for _, axis := range axes {
		sum := 1.0
		count := 1
		for _, sign := range [2]int{1, -1} {
			for step := 1; ; step++ {
				stone := b.At(row+axis.Row*sign*step, col+axis.Col*sign*step)
				if stone == nil {
					break
				}
				probability := stone.ResolveProbability(c)
				if probability < extendThreshold {
					break
				}
				sum += probability
				count++
			}
		}
		total += runContribution(count, sum)
	}
	return total
}

// runContribution weights a probabilistic run by its equivalent length.
func runContribution(count int, sum float64) float64 {
	switch {
	case count >= 5:
		return 10000 * sum
	case count == 4:
		return 1000 * sum
	case count == 3:
		return 100 * sum
	case count == 2:
		return 10 * sum
	default:
		return 0
	}
}

// centralityBonus nudges otherwise equal moves toward the board center.
func centralityBonus(row, col int) float64 {
	center := board.Size / 2
	distance := abs(row-center) + abs(col-center)
	return float64(10-distance) * 0.1
}

// ShouldObserve decides stochastically whether the color should trigger a
// collapse, based on the probability that a complete winning line is already
// realized somewhere on the board.
func ShouldObserve(b *board.Board, c board.Color, observationsLeft int, rng random.Source) bool {
	if observationsLeft <= 0 {
		return false
	}

	chance := bestLineProbability(b, c)
	roll := rng.Float64()
	switch {
	case chance > 0.8:
		return roll < 0.95
	case chance > 0.5:
		return roll < 0.8
	case chance > 0.2:
		if observationsLeft >= 3 {
			return roll < 0.4
		}
		return roll < 0.1
	default:
		// Occasional bluff observation keeps the opponent honest.
		return roll < 0.02
	}
}

// bestLineProbability returns the maximum probability over every on-board
// five-cell window that all of its stones resolve to the color. Windows with
// an empty cell contribute zero.
func bestLineProbability(b *board.Board, c board.Color) float64 {
	best := 0.0
	for row := 0; row < board.Size; row++ {
		for col := 0; col < board.Size; col++ {
			for _, axis := range axes {
				endRow := row + axis.Row*(board.WinRun-1)
				endCol := col + axis.Col*(board.WinRun-1)
				if !board.InBounds(endRow, endCol) {
					continue
				}
				probability := 1.0
				for i := 0; i < board.WinRun; i++ {
					stone := b.At(row+axis.Row*i, col+axis.Col*i)
					if stone == nil {
						probability = 0
						break
					}
					probability *= stone.ResolveProbability(c)
				}
				if probability > best {
					best = probability
				}
			}
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
