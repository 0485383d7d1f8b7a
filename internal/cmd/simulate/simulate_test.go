package simulate

import (
	"flag"
	"testing"

	"github.com/louisbranch/collapse.space/internal/game/engine"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Games != 10 {
		t.Fatalf("expected default games 10, got %d", cfg.Games)
	}
	if cfg.Seed != 0 {
		t.Fatalf("expected zero seed, got %d", cfg.Seed)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-games", "3", "-seed", "42", "-v"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Games != 3 || cfg.Seed != 42 || !cfg.Verbose {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestPlayGameTerminates(t *testing.T) {
	winner, moves := playGame(1)
	if moves == 0 {
		t.Fatal("expected at least one move")
	}
	if moves >= maxMoves {
		t.Fatalf("game did not converge within %d moves", maxMoves)
	}
	if winner != nil && *winner != engine.Black && *winner != engine.White {
		t.Fatalf("winner = %v", winner)
	}
}

func TestPlayGameIsDeterministic(t *testing.T) {
	winnerA, movesA := playGame(7)
	winnerB, movesB := playGame(7)
	if movesA != movesB {
		t.Fatalf("moves differ: %d vs %d", movesA, movesB)
	}
	if (winnerA == nil) != (winnerB == nil) {
		t.Fatal("winner presence differs between identical seeds")
	}
	if winnerA != nil && *winnerA != *winnerB {
		t.Fatalf("winners differ: %v vs %v", *winnerA, *winnerB)
	}
}
