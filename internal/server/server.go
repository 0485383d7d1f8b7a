// Package server hosts the room synchronization service.
//
// It serves the websocket store protocol and keeps the backing room
// database pruned of abandoned rooms.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/louisbranch/collapse.space/internal/room"
	"github.com/louisbranch/collapse.space/internal/room/memory"
	"github.com/louisbranch/collapse.space/internal/room/sqlite"
	"github.com/louisbranch/collapse.space/internal/room/ws"
)

const shutdownTimeout = 5 * time.Second

// Config holds the room server runtime configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// DBPath locates the SQLite room database. Empty keeps rooms in
	// memory only.
	DBPath string
	// RoomTTL expires rooms idle longer than this. Zero disables
	// expiry; it only applies to SQLite-backed rooms.
	RoomTTL time.Duration
	// PruneInterval paces expiry sweeps.
	PruneInterval time.Duration
}

// Run serves until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	var store room.Store
	if cfg.DBPath != "" {
		sqlStore, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open room store: %w", err)
		}
		defer sqlStore.Close()
		store = sqlStore
		if cfg.RoomTTL > 0 {
			go pruneLoop(ctx, sqlStore, cfg.RoomTTL, cfg.PruneInterval)
		}
	} else {
		store = memory.New()
	}

	httpServer := &http.Server{Addr: cfg.Addr, Handler: Handler(store)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("server listening at %s", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// Handler routes the websocket store protocol and the health check.
func Handler(store room.Store) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewServer(store))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// pruneLoop periodically expires idle rooms.
func pruneLoop(ctx context.Context, store *sqlite.Store, ttl, interval time.Duration) {
	if interval <= 0 {
		interval = ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.PruneIdle(ctx, ttl)
			if err != nil {
				log.Printf("prune idle rooms: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("expired %d idle rooms", removed)
			}
		}
	}
}
