// Package simulate parses simulation flags and plays unattended games.
//
// It drives the engine with a mock clock so a full game finishes in
// microseconds, and is the main tool for eyeballing heuristic balance.
package simulate

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/louisbranch/collapse.space/internal/game/ai"
	"github.com/louisbranch/collapse.space/internal/game/board"
	"github.com/louisbranch/collapse.space/internal/game/engine"
	entrypoint "github.com/louisbranch/collapse.space/internal/platform/cmd"
	"github.com/louisbranch/collapse.space/internal/random"
)

// maxMoves bounds one game; a full board is 225 placements.
const maxMoves = 400

// Config holds simulate command configuration.
type Config struct {
	Games   int   `env:"COLLAPSE_SPACE_SIM_GAMES" envDefault:"10"`
	Seed    int64 `env:"COLLAPSE_SPACE_SIM_SEED"`
	Verbose bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Games, "games", cfg.Games, "Number of games to play")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed (0 derives one per run)")
	fs.BoolVar(&cfg.Verbose, "v", false, "Log every game result")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Tally aggregates simulation outcomes.
type Tally struct {
	BlackWins int
	WhiteWins int
	NoWinner  int
	Moves     int
}

// Run plays the configured number of games and logs a summary.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSimulate, func(context.Context) error {
		seed := cfg.Seed
		if seed == 0 {
			var err error
			seed, err = random.NewSeed()
			if err != nil {
				return err
			}
		}

		var tally Tally
		for i := 0; i < cfg.Games; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			winner, moves := playGame(seed + int64(i))
			tally.Moves += moves
			switch {
			case winner == nil:
				tally.NoWinner++
			case *winner == engine.Black:
				tally.BlackWins++
			default:
				tally.WhiteWins++
			}
			if cfg.Verbose {
				log.Printf("game %d: winner=%v moves=%d", i+1, colorName(winner), moves)
			}
		}

		log.Printf("played %d games (seed %d): black %d, white %d, none %d, avg moves %.1f",
			cfg.Games, seed, tally.BlackWins, tally.WhiteWins, tally.NoWinner,
			float64(tally.Moves)/float64(max(cfg.Games, 1)))
		return nil
	})
}

// playGame drives both colors with the placement heuristic until someone
// wins, the board fills, or the move bound trips.
func playGame(seed int64) (*board.Color, int) {
	mock := clock.NewMock()
	rng := random.NewSource(seed)
	e := engine.New(engine.LocalVsLocal,
		engine.WithClock(mock),
		engine.WithRandom(rng),
	)

	moves := 0
	for moves < maxMoves {
		state := e.State()
		if state.Phase == engine.Over || state.Board.Full() {
			break
		}
		current := state.CurrentPlayer

		e.SelectStrength(rng.Intn(2))
		move, ok := ai.ChooseMove(&state.Board, current, rng)
		if !ok {
			break
		}
		e.PlaceStone(move.Row, move.Col)
		moves++

		state = e.State()
		if ai.ShouldObserve(&state.Board, current, state.ObservationsLeft[current], rng) {
			e.Observe()
			// Collapse, no-winner hold, and revert each take one tick.
			mock.Add(3 * time.Second)
		} else {
			e.EndTurn()
		}
	}
	final := e.State()
	return final.Winner, moves
}

func colorName(c *board.Color) string {
	if c == nil {
		return "none"
	}
	return c.String()
}
