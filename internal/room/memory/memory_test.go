package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/collapse.space/internal/room"
)

// TestLoadMissingRoom ensures unknown ids report ErrNotFound.
func TestLoadMissingRoom(t *testing.T) {
	s := New()
	if _, err := s.Load(context.Background(), "nope"); !errors.Is(err, room.ErrNotFound) {
		t.Fatalf("Load error = %v, want %v", err, room.ErrNotFound)
	}
}

// TestSaveStampsRevision ensures every commit bumps the revision.
func TestSaveStampsRevision(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := s.Save(ctx, "r1", room.Document{State: json.RawMessage(`{}`)}); err != nil {
			t.Fatalf("Save: %v", err)
		}
		doc, err := s.Load(ctx, "r1")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if doc.Revision != int64(i) {
			t.Fatalf("revision = %d, want %d", doc.Revision, i)
		}
	}
}

// TestWatchDeliversInCommitOrder ensures watchers see revisions in order.
func TestWatchDeliversInCommitOrder(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := s.Watch(ctx, "r1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Save(ctx, "r1", room.Document{}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	for want := int64(1); want <= 3; want++ {
		select {
		case doc := <-updates:
			if doc.Revision != want {
				t.Fatalf("revision = %d, want %d", doc.Revision, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for revision %d", want)
		}
	}
}

// TestWatchClosesOnCancel ensures cancellation ends the stream.
func TestWatchClosesOnCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	updates, err := s.Watch(ctx, "r1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	cancel()

	select {
	case _, ok := <-updates:
		if ok {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}

// TestDeleteReleasesRoom ensures a deleted room id reads as missing.
func TestDeleteReleasesRoom(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Save(ctx, "r1", room.Document{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, "r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, "r1"); !errors.Is(err, room.ErrNotFound) {
		t.Fatalf("Load after delete = %v, want %v", err, room.ErrNotFound)
	}
}

// TestDocumentCloneIsolation ensures stored documents cannot be mutated
// through the caller's maps.
func TestDocumentCloneIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()
	doc := room.Document{Connections: map[string]bool{"a": true}}
	if err := s.Save(ctx, "r1", doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	doc.Connections["a"] = false

	loaded, err := s.Load(ctx, "r1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Connections["a"] {
		t.Fatal("stored document shared the caller's connection map")
	}
}
