// Package server parses room server flags and starts the runtime.
package server

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/collapse.space/internal/platform/cmd"
	"github.com/louisbranch/collapse.space/internal/server"
)

// Config holds server command configuration.
type Config struct {
	Port          int           `env:"COLLAPSE_SPACE_PORT" envDefault:"8080"`
	Addr          string        `env:"COLLAPSE_SPACE_ADDR"`
	DBPath        string        `env:"COLLAPSE_SPACE_DB_PATH"`
	RoomTTL       time.Duration `env:"COLLAPSE_SPACE_ROOM_TTL" envDefault:"24h"`
	PruneInterval time.Duration `env:"COLLAPSE_SPACE_PRUNE_INTERVAL" envDefault:"1h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite room database path (empty keeps rooms in memory)")
	fs.DurationVar(&cfg.RoomTTL, "room-ttl", cfg.RoomTTL, "Expire rooms idle longer than this (0 disables)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the room synchronization service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(context.Context) error {
		addr := cfg.Addr
		if addr == "" {
			addr = fmt.Sprintf(":%d", cfg.Port)
		}
		return server.Run(ctx, server.Config{
			Addr:          addr,
			DBPath:        cfg.DBPath,
			RoomTTL:       cfg.RoomTTL,
			PruneInterval: cfg.PruneInterval,
		})
	})
}
