// Package sqlite implements a room store backed by a SQLite database.
//
// Documents survive process restarts; watch delivery is in-process only,
// fanning out commits made through this store handle. A deployment with one
// game server per database gets the same semantics as the memory store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/collapse.space/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/collapse.space/internal/room"
	"github.com/louisbranch/collapse.space/internal/room/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// watchBuffer sizes subscriber channels, matching the memory store.
const watchBuffer = 64

// Store provides SQLite-backed persistence for room documents.
type Store struct {
	sqlDB *sql.DB

	mu       sync.Mutex
	watchers map[string]map[chan room.Document]struct{}
	now      func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a room SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{
		sqlDB:    sqlDB,
		watchers: make(map[string]map[chan room.Document]struct{}),
		now:      time.Now,
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load returns the current document for the room.
func (s *Store) Load(ctx context.Context, roomID string) (room.Document, error) {
	if err := ctx.Err(); err != nil {
		return room.Document{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT state, connections, revision, updated_at FROM rooms WHERE id = ?", roomID)

	var state []byte
	var connectionsJSON string
	var revision, updatedAt int64
	if err := row.Scan(&state, &connectionsJSON, &revision, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return room.Document{}, room.ErrNotFound
		}
		return room.Document{}, fmt.Errorf("load room %s: %w", roomID, err)
	}

	connections := make(map[string]bool)
	if err := json.Unmarshal([]byte(connectionsJSON), &connections); err != nil {
		return room.Document{}, fmt.Errorf("decode room %s connections: %w", roomID, err)
	}
	return room.Document{
		State:       append(json.RawMessage(nil), state...),
		Connections: connections,
		Revision:    revision,
		UpdatedAt:   fromMillis(updatedAt),
	}, nil
}

// Save commits the document, stamping the next revision, and fans it out to
// in-process watchers in commit order.
func (s *Store) Save(ctx context.Context, roomID string, doc room.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	connectionsJSON, err := json.Marshal(doc.Connections)
	if err != nil {
		return fmt.Errorf("encode room %s connections: %w", roomID, err)
	}

	// The watcher lock brackets the transaction so concurrent saves fan out
	// in the same order they commit.
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin room write: %w", err)
	}

	var revision int64
	err = tx.QueryRowContext(ctx, "SELECT revision FROM rooms WHERE id = ?", roomID).Scan(&revision)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return fmt.Errorf("read room %s revision: %w", roomID, err)
	}

	doc.Revision = revision + 1
	doc.UpdatedAt = s.now()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO rooms (id, state, connections, revision, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    state = excluded.state,
    connections = excluded.connections,
    revision = excluded.revision,
    updated_at = excluded.updated_at
`, roomID, []byte(doc.State), string(connectionsJSON), doc.Revision, toMillis(doc.UpdatedAt)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("write room %s: %w", roomID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit room %s write: %w", roomID, err)
	}

	for ch := range s.watchers[roomID] {
		send(ch, doc.Clone())
	}
	return nil
}

// Watch subscribes to documents committed through this store handle.
func (s *Store) Watch(ctx context.Context, roomID string) (<-chan room.Document, error) {
	s.mu.Lock()
	set, ok := s.watchers[roomID]
	if !ok {
		set = make(map[chan room.Document]struct{})
		s.watchers[roomID] = set
	}
	ch := make(chan room.Document, watchBuffer)
	set[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(set, ch)
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Delete removes the room document. Watchers stay subscribed.
func (s *Store) Delete(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", roomID); err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	return nil
}

// PruneIdle deletes rooms not written to within maxIdle and reports how many
// were removed. The server runs this periodically to expire abandoned rooms.
func (s *Store) PruneIdle(ctx context.Context, maxIdle time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := toMillis(s.now().Add(-maxIdle))
	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM rooms WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune idle rooms: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned rooms: %w", err)
	}
	return removed, nil
}

// send enqueues without blocking; a lagging watcher loses the oldest pending
// revision, never the newest.
func send(ch chan room.Document, doc room.Document) {
	for {
		select {
		case ch <- doc:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
