package ai

import (
	"testing"

	"github.com/louisbranch/collapse.space/internal/game/board"
)

// scriptedSource returns canned values so selector decisions are exact.
type scriptedSource struct {
	floats []float64
	ints   []int
}

func (s *scriptedSource) Float64() float64 {
	if len(s.floats) == 0 {
		return 0.5
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *scriptedSource) Intn(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0] % n
	s.ints = s.ints[1:]
	return v
}

func place(t *testing.T, b *board.Board, row, col int, probability float64) {
	t.Helper()
	if err := b.Place(row, col, probability); err != nil {
		t.Fatalf("Place(%d,%d): %v", row, col, err)
	}
}

// TestChooseMovePrefersCenterOnEmptyBoard ensures the centrality bonus breaks
// the tie on an otherwise featureless board.
func TestChooseMovePrefersCenterOnEmptyBoard(t *testing.T) {
	var b board.Board
	move, ok := ChooseMove(&b, board.Black, &scriptedSource{})
	if !ok {
		t.Fatal("no move on empty board")
	}
	center := board.Size / 2
	if move != (board.Coord{Row: center, Col: center}) {
		t.Fatalf("move = %+v, want center (%d,%d)", move, center, center)
	}
}

// TestChooseMoveCompletesOwnRun ensures four strong stones in a row pull the
// fifth placement onto the winning extension.
func TestChooseMoveCompletesOwnRun(t *testing.T) {
	var b board.Board
	for i := 0; i < 4; i++ {
		place(t, &b, 7, 4+i, 0.9)
	}
	move, ok := ChooseMove(&b, board.Black, &scriptedSource{})
	if !ok {
		t.Fatal("no move returned")
	}
	if move.Row != 7 || (move.Col != 3 && move.Col != 8) {
		t.Fatalf("move = %+v, want an extension of row 7 run", move)
	}
}

// TestChooseMoveBlocksOpponentRun ensures defense outweighs a weaker attack.
func TestChooseMoveBlocksOpponentRun(t *testing.T) {
	var b board.Board
	// White threat: four stones at 0.1 Black-probability (0.9 White).
	for i := 0; i < 4; i++ {
		place(t, &b, 2, 2+i, 0.1)
	}
	move, ok := ChooseMove(&b, board.Black, &scriptedSource{})
	if !ok {
		t.Fatal("no move returned")
	}
	if move.Row != 2 || (move.Col != 1 && move.Col != 6) {
		t.Fatalf("move = %+v, want a block of row 2 run", move)
	}
}

// TestChooseMoveStopsExtensionBelowThreshold ensures a low-probability
// neighbor ends run extension instead of contributing.
func TestChooseMoveStopsExtensionBelowThreshold(t *testing.T) {
	var b board.Board
	// From Black's view the 0.3 stone is below the 0.4 extension threshold,
	// so (5,2) and (5,6) see runs of different strength.
	place(t, &b, 5, 3, 0.3)
	place(t, &b, 5, 4, 0.9)
	place(t, &b, 5, 5, 0.9)

	strong := lineStrength(&b, 5, 6, board.Black)
	weak := lineStrength(&b, 5, 2, board.Black)
	if strong <= weak {
		t.Fatalf("extension past threshold: strong %v <= weak %v", strong, weak)
	}
}

// TestChooseMoveFullBoard ensures a full board yields no move.
func TestChooseMoveFullBoard(t *testing.T) {
	var b board.Board
	for row := 0; row < board.Size; row++ {
		for col := 0; col < board.Size; col++ {
			place(t, &b, row, col, 0.5)
		}
	}
	if _, ok := ChooseMove(&b, board.Black, &scriptedSource{}); ok {
		t.Fatal("move returned on full board")
	}
}

// TestShouldObserveExhaustedBudget ensures a spent budget always declines.
func TestShouldObserveExhaustedBudget(t *testing.T) {
	var b board.Board
	for i := 0; i < 5; i++ {
		place(t, &b, 7, 3+i, 0.9)
	}
	if ShouldObserve(&b, board.Black, 0, &scriptedSource{floats: []float64{0.0}}) {
		t.Fatal("observed with no budget left")
	}
}

// TestShouldObserveThresholds walks the decision tiers with scripted rolls.
func TestShouldObserveThresholds(t *testing.T) {
	strongLine := func(probability float64) *board.Board {
		var b board.Board
		for i := 0; i < 5; i++ {
			place(t, &b, 7, 3+i, probability)
		}
		return &b
	}

	tcs := []struct {
		name        string
		probability float64
		budget      int
		roll        float64
		want        bool
	}{
		// 0.9^5 ~ 0.59: the >0.5 tier observes at 80%.
		{name: "mid tier accepts", probability: 0.9, budget: 5, roll: 0.79, want: true},
		{name: "mid tier declines", probability: 0.9, budget: 5, roll: 0.81, want: false},
		// 0.8^5 ~ 0.33: the >0.2 tier at full budget observes at 40%.
		{name: "low tier full budget", probability: 0.8, budget: 5, roll: 0.39, want: true},
		{name: "low tier short budget", probability: 0.8, budget: 2, roll: 0.39, want: false},
		// Empty-line noise tier observes at 2%.
		{name: "noise tier accepts", probability: 0.5, budget: 5, roll: 0.01, want: true},
		{name: "noise tier declines", probability: 0.5, budget: 5, roll: 0.03, want: false},
	}

	for _, tc := range tcs {
		b := strongLine(tc.probability)
		got := ShouldObserve(b, board.Black, tc.budget, &scriptedSource{floats: []float64{tc.roll}})
		if got != tc.want {
			t.Fatalf("%s: ShouldObserve = %v, want %v", tc.name, got, tc.want)
		}
	}
}

// TestBestLineProbabilityZeroesOnGaps ensures windows with empty cells never
// contribute.
func TestBestLineProbabilityZeroesOnGaps(t *testing.T) {
	var b board.Board
	place(t, &b, 0, 0, 0.9)
	place(t, &b, 0, 1, 0.9)
	place(t, &b, 0, 3, 0.9)
	place(t, &b, 0, 4, 0.9)
	if got := bestLineProbability(&b, board.Black); got != 0 {
		t.Fatalf("gapped window probability = %v, want 0", got)
	}
}
