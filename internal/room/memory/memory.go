// Package memory implements an in-process room store.
//
// It backs local development and tests, and serves as the canonical
// reference for Store semantics: revision stamping, commit-ordered watch
// delivery, and wholesale document replacement.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/louisbranch/collapse.space/internal/room"
)

// watchBuffer sizes subscriber channels. When a watcher lags past it, the
// oldest pending revision is discarded so delivery converges on the latest.
const watchBuffer = 64

// Store is an in-memory room document store.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*entry
	now   func() time.Time
}

type entry struct {
	doc      room.Document
	exists   bool
	watchers map[chan room.Document]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		rooms: make(map[string]*entry),
		now:   time.Now,
	}
}

func (s *Store) room(id string) *entry {
	e, ok := s.rooms[id]
	if !ok {
		e = &entry{watchers: make(map[chan room.Document]struct{})}
		s.rooms[id] = e
	}
	return e
}

// Load returns the current document for the room.
func (s *Store) Load(_ context.Context, roomID string) (room.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[roomID]
	if !ok || !e.exists {
		return room.Document{}, room.ErrNotFound
	}
	return e.doc.Clone(), nil
}

// Save commits the document and fans it out to every watcher in order.
func (s *Store) Save(_ context.Context, roomID string, doc room.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.room(roomID)
	doc.Revision = e.doc.Revision + 1
	doc.UpdatedAt = s.now()
	e.doc = doc.Clone()
	e.exists = true

	for ch := range e.watchers {
		send(ch, e.doc.Clone())
	}
	return nil
}

// Watch subscribes to committed documents for the room.
func (s *Store) Watch(ctx context.Context, roomID string) (<-chan room.Document, error) {
	s.mu.Lock()
	e := s.room(roomID)
	ch := make(chan room.Document, watchBuffer)
	e.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(e.watchers, ch)
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Delete removes the room document. Watchers stay subscribed.
func (s *Store) Delete(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.rooms[roomID]; ok {
		e.exists = false
		e.doc = room.Document{}
	}
	return nil
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
