package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/louisbranch/collapse.space/internal/room"
)

// outboundBuffer bounds the per-connection write queue.
const outboundBuffer = 64

// Server exposes a room.Store to websocket clients.
type Server struct {
	store    room.Store
	upgrader websocket.Upgrader
}

// NewServer wraps the store in a websocket handler.
func NewServer(store room.Store) *Server {
	return &Server{
		store:    store,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// ServeHTTP upgrades the request and serves the store protocol until the
// client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	sess := &session{
		store:    s.store,
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(chan message, outboundBuffer),
		watches:  make(map[string]context.CancelFunc),
	}
	sess.run()
}

// session is one client connection.
type session struct {
	store  room.Store
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	outbound chan message

	mu      sync.Mutex
	watches map[string]context.CancelFunc
}

func (s *session) run() {
	defer func() {
		s.cancel()
		s.mu.Lock()
		for _, stop := range s.watches {
			stop()
		}
		s.mu.Unlock()
		_ = s.conn.Close()
	}()

	go s.writeLoop()

	for {
		var msg message
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}
		s.handle(msg)
	}
}

// writeLoop is the sole writer on the connection.
func (s *session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.outbound:
			if err := s.conn.WriteJSON(msg); err != nil {
				s.cancel()
				return
			}
		}
	}
}

func (s *session) send(msg message) {
	select {
	case s.outbound <- msg:
	case <-s.ctx.Done():
	}
}

func (s *session) handle(msg message) {
	switch msg.Type {
	case typeLoad:
		s.handleLoad(msg)
	case typeSave:
		s.handleSave(msg)
	case typeDelete:
		s.handleDelete(msg)
	case typeWatch:
		s.handleWatch(msg)
	case typeUnwatch:
		s.handleUnwatch(msg)
	default:
		s.send(message{Type: typeError, Seq: msg.Seq, Error: "unknown message type"})
	}
}

func (s *session) handleLoad(msg message) {
	doc, err := s.store.Load(s.ctx, msg.Room)
	if errors.Is(err, room.ErrNotFound) {
		s.send(message{Type: typeNotFound, Seq: msg.Seq, Room: msg.Room})
		return
	}
	if err != nil {
		s.send(message{Type: typeError, Seq: msg.Seq, Error: err.Error()})
		return
	}
	s.send(documentMessage(msg.Seq, msg.Room, doc))
}

func (s *session) handleSave(msg message) {
	doc := room.Document{State: msg.State, Connections: msg.Connections}
	if err := s.store.Save(s.ctx, msg.Room, doc); err != nil {
		s.send(message{Type: typeError, Seq: msg.Seq, Error: err.Error()})
		return
	}
	s.send(message{Type: typeOK, Seq: msg.Seq})
}

func (s *session) handleDelete(msg message) {
	if err := s.store.Delete(s.ctx, msg.Room); err != nil {
		s.send(message{Type: typeError, Seq: msg.Seq, Error: err.Error()})
		return
	}
	s.send(message{Type: typeOK, Seq: msg.Seq})
}

func (s *session) handleWatch(msg message) {
	s.mu.Lock()
	if _, ok := s.watches[msg.Room]; ok {
		s.mu.Unlock()
		s.send(message{Type: typeOK, Seq: msg.Seq})
		return
	}
	watchCtx, stop := context.WithCancel(s.ctx)
	s.watches[msg.Room] = stop
	s.mu.Unlock()

	updates, err := s.store.Watch(watchCtx, msg.Room)
	if err != nil {
		stop()
		s.mu.Lock()
		delete(s.watches, msg.Room)
		s.mu.Unlock()
		s.send(message{Type: typeError, Seq: msg.Seq, Error: err.Error()})
		return
	}

	roomID := msg.Room
	go func() {
		for doc := range updates {
			s.send(documentMessage(0, roomID, doc))
		}
	}()
	s.send(message{Type: typeOK, Seq: msg.Seq})
}

func (s *session) handleUnwatch(msg message) {
	s.mu.Lock()
	if stop, ok := s.watches[msg.Room]; ok {
		stop()
		delete(s.watches, msg.Room)
	}
	s.mu.Unlock()
	s.send(message{Type: typeOK, Seq: msg.Seq})
}

func documentMessage(seq uint64, roomID string, doc room.Document) message {
	return message{
		Type:        typeDocument,
		Seq:         seq,
		Room:        roomID,
		State:       doc.State,
		Connections: doc.Connections,
		Revision:    doc.Revision,
		UpdatedAt:   toMillis(doc.UpdatedAt),
	}
}
