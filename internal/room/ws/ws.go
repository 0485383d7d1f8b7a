// Package ws carries the room store protocol over a websocket.
//
// One socket multiplexes every room: requests carry a client-assigned
// sequence number the server echoes on the reply, and watched rooms push
// unsolicited document messages keyed by room id. The server side wraps any
// room.Store; the client side is itself a room.Store, so the engine never
// knows whether its store is local or remote.
package ws

import (
	"encoding/json"
	"time"
)

// Client-to-server message types.
const (
	typeLoad    = "load"
	typeSave    = "save"
	typeDelete  = "delete"
	typeWatch   = "watch"
	typeUnwatch = "unwatch"
)

// Server-to-client message types.
const (
	typeDocument = "document"
	typeOK       = "ok"
	typeNotFound = "not_found"
	typeError    = "error"
)

// message is the wire envelope for both directions. Unused fields are
// omitted; a document push carries Seq zero and the room id.
type message struct {
	Type        string          `json:"type"`
	Seq         uint64          `json:"seq,omitempty"`
	Room        string          `json:"room,omitempty"`
	State       json.RawMessage `json:"state,omitempty"`
	Connections map[string]bool `json:"connections,omitempty"`
	Revision    int64           `json:"revision,omitempty"`
	UpdatedAt   int64           `json:"updated_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}
