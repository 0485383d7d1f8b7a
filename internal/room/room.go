// Package room defines the replicated-document contract for networked play.
//
// A room holds one flat document: the serialized game state plus a presence
// map. The document is the unit of synchronization; writers replace it
// wholesale and the last committed write wins. Concurrent writes are
// prevented by turn ownership in the engine, not by the store.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound indicates the room id has no document.
var ErrNotFound = errors.New("room: not found")

// Document is the full replicated state of one room.
type Document struct {
	// State is the serialized game state. Stores treat it as opaque.
	State json.RawMessage `json:"state,omitempty"`
	// Connections maps client identities to presence flags.
	Connections map[string]bool `json:"connections,omitempty"`
	// Revision is stamped by the store on every committed write.
	Revision int64 `json:"revision"`
	// UpdatedAt is stamped by the store on every committed write.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy safe to hand to another subscriber.
func (d Document) Clone() Document {
	out := d
	if d.State != nil {
		out.State = append(json.RawMessage(nil), d.State...)
	}
	if d.Connections != nil {
		out.Connections = make(map[string]bool, len(d.Connections))
		for id, present := range d.Connections {
			out.Connections[id] = present
		}
	}
	return out
}

// Store is the shared mutable document store mediating networked games.
//
// Updates are delivered to each watcher in commit order. Delivery latency is
// unspecified; a slow watcher may skip intermediate revisions but always
// converges on the latest committed document.
type Store interface {
	// Load returns the current document, or ErrNotFound.
	Load(ctx context.Context, roomID string) (Document, error)
	// Save replaces the document wholesale.
	Save(ctx context.Context, roomID string, doc Document) error
	// Watch streams committed documents until the context is canceled.
	// The returned channel is closed when the watch ends.
	Watch(ctx context.Context, roomID string) (<-chan Document, error)
	// Delete removes the document, releasing the room id.
	Delete(ctx context.Context, roomID string) error
}
