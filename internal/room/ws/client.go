package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/louisbranch/collapse.space/internal/room"
)

// ErrClosed indicates the client connection is gone.
var ErrClosed = errors.New("ws: connection closed")

// watchBuffer sizes per-watcher channels, matching the memory store.
const watchBuffer = 64

// Client is a room.Store backed by a websocket connection to a Server.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	seq      uint64
	pending  map[uint64]chan message
	watchers map[string]map[chan room.Document]struct{}
	closed   bool

	done chan struct{}
}

var _ room.Store = (*Client)(nil)

// Dial connects to a room server at the given websocket URL.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := &Client{
		conn:     conn,
		pending:  make(map[uint64]chan message),
		watchers: make(map[string]map[chan room.Document]struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears down the connection. Pending calls fail and watch channels
// close.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.shutdown()
	return err
}

func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, set := range c.watchers {
		for ch := range set {
			close(ch)
		}
	}
	c.watchers = make(map[string]map[chan room.Document]struct{})
	c.mu.Unlock()
	close(c.done)
}

// readLoop dispatches replies by sequence number and fans document pushes
// out to room watchers.
func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Seq != 0 {
			c.mu.Lock()
			reply, ok := c.pending[msg.Seq]
			delete(c.pending, msg.Seq)
			c.mu.Unlock()
			if ok {
				reply <- msg
			}
			continue
		}
		if msg.Type == typeDocument {
			doc := documentFromMessage(msg)
			c.mu.Lock()
			for ch := range c.watchers[msg.Room] {
				send(ch, doc.Clone())
			}
			c.mu.Unlock()
		}
	}
}

// roundTrip sends one request and waits for the matching reply.
func (c *Client) roundTrip(ctx context.Context, msg message) (message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return message{}, ErrClosed
	}
	c.seq++
	msg.Seq = c.seq
	reply := make(chan message, 1)
	c.pending[msg.Seq] = reply
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, msg.Seq)
		c.mu.Unlock()
		return message{}, fmt.Errorf("write %s: %w", msg.Type, err)
	}

	select {
	case out := <-reply:
		if out.Type == typeError {
			return message{}, fmt.Errorf("%s: %s", msg.Type, out.Error)
		}
		return out, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, msg.Seq)
		c.mu.Unlock()
		return message{}, ctx.Err()
	case <-c.done:
		return message{}, ErrClosed
	}
}

// Load fetches the current document for the room.
func (c *Client) Load(ctx context.Context, roomID string) (room.Document, error) {
	reply, err := c.roundTrip(ctx, message{Type: typeLoad, Room: roomID})
	if err != nil {
		return room.Document{}, err
	}
	if reply.Type == typeNotFound {
		return room.Document{}, room.ErrNotFound
	}
	return documentFromMessage(reply), nil
}

// Save commits the document; the server stamps revision and timestamp.
func (c *Client) Save(ctx context.Context, roomID string, doc room.Document) error {
	_, err := c.roundTrip(ctx, message{
		Type:        typeSave,
		Room:        roomID,
		State:       doc.State,
		Connections: doc.Connections,
	})
	return err
}

// Delete removes the room document.
func (c *Client) Delete(ctx context.Context, roomID string) error {
	_, err := c.roundTrip(ctx, message{Type: typeDelete, Room: roomID})
	return err
}

// Watch subscribes to committed documents for the room. The first watcher
// per room starts a server-side watch; the last one leaving stops it.
func (c *Client) Watch(ctx context.Context, roomID string) (<-chan room.Document, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	set, ok := c.watchers[roomID]
	if !ok {
		set = make(map[chan room.Document]struct{})
		c.watchers[roomID] = set
	}
	first := len(set) == 0
	ch := make(chan room.Document, watchBuffer)
	set[ch] = struct{}{}
	c.mu.Unlock()

	if first {
		if _, err := c.roundTrip(ctx, message{Type: typeWatch, Room: roomID}); err != nil {
			c.mu.Lock()
			if !c.closed {
				delete(set, ch)
			}
			c.mu.Unlock()
			return nil, err
		}
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
			return
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		delete(set, ch)
		last := len(set) == 0
		c.mu.Unlock()
		close(ch)
		if last {
			unwatchCtx := context.Background()
			_, _ = c.roundTrip(unwatchCtx, message{Type: typeUnwatch, Room: roomID})
		}
	}()

	return ch, nil
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

func documentFromMessage(msg message) room.Document {
	return room.Document{
		State:       msg.State,
		Connections: msg.Connections,
		Revision:    msg.Revision,
		UpdatedAt:   fromMillis(msg.UpdatedAt),
	}
}
