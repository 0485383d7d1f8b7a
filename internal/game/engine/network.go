package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/collapse.space/internal/room"
)

// ErrNoStore indicates networked play was requested without a room store.
var ErrNoStore = errors.New("engine: no room store configured")

// ErrRoomFull indicates the room already has two participants playing.
var ErrRoomFull = errors.New("engine: room is already playing")

// saveTimeout bounds every write to the shared store.
const saveTimeout = 5 * time.Second

// JoinRoom enters a networked game. A missing room makes the caller host and
// leaves the game waiting; joining a waiting room makes the caller guest,
// flips a fair coin for the host's color, and starts play.
func (e *Engine) JoinRoom(ctx context.Context, roomID string) error {
	e.mu.Lock()
	if e.store == nil {
		e.mu.Unlock()
		return ErrNoStore
	}
	if e.watchCancel != nil {
		e.watchCancel()
		e.watchCancel = nil
	}
	e.cancelTimerLocked()
	e.cancelGraceLocked()
	e.cpu = cpuIdle
	e.history.Clear()

	doc, err := e.store.Load(ctx, roomID)
	switch {
	case errors.Is(err, room.ErrNotFound):
		err = e.hostRoomLocked(ctx, roomID)
	case err != nil:
		err = fmt.Errorf("join room %s: %w", roomID, err)
	default:
		err = e.enterRoomLocked(ctx, roomID, doc)
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	updates, err := e.store.Watch(watchCtx, roomID)
	if err != nil {
		cancel()
		e.mu.Unlock()
		return fmt.Errorf("watch room %s: %w", roomID, err)
	}
	e.watchCancel = cancel
	e.roomID = roomID
	go e.watchLoop(updates)

	done := e.finishLocked(false)
	e.mu.Unlock()
	done()
	return nil
}

// hostRoomLocked writes a fresh waiting document and marks the caller host.
// The host has no color until a guest joins and the coin flip lands.
func (e *Engine) hostRoomLocked(ctx context.Context, roomID string) error {
	state := newGameState(Networked, nil)
	state.Status = StatusWaiting
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	doc := room.Document{
		State:       data,
		Connections: map[string]bool{e.clientID: true},
	}
	if err := e.store.Save(ctx, roomID, doc); err != nil {
		return fmt.Errorf("create room %s: %w", roomID, err)
	}
	e.state = state
	e.isHost = true
	e.localColor = nil
	e.connections = map[string]bool{e.clientID: true}
	return nil
}

// enterRoomLocked joins an existing room document.
func (e *Engine) enterRoomLocked(ctx context.Context, roomID string, doc room.Document) error {
	var remote GameState
	if len(doc.State) > 0 {
		if err := json.Unmarshal(doc.State, &remote); err != nil {
			return fmt.Errorf("decode room %s: %w", roomID, err)
		}
	}
	remote.normalize()
	remote.Mode = Networked

	if remote.Status != StatusWaiting {
		return ErrRoomFull
	}
	if !anyPresent(doc.Connections) {
		// Abandoned waiting room: take it over as host.
		return e.hostRoomLocked(ctx, roomID)
	}

	// Guest: one uniform coin flip decides which participant is Black.
	hostColor := White
	if e.rng.Float64() < 0.5 {
		hostColor = Black
	}
	remote.HostColor = &hostColor
	remote.Status = StatusPlaying
	remote.CurrentPlayer = Black

	data, err := json.Marshal(remote)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if doc.Connections == nil {
		doc.Connections = make(map[string]bool)
	}
	doc.Connections[e.clientID] = true
	if err := e.store.Save(ctx, roomID, room.Document{State: data, Connections: doc.Connections}); err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}

	e.state = remote
	e.isHost = false
	guestColor := hostColor.Other()
	e.localColor = &guestColor
	e.connections = doc.Connections
	return nil
}

// LeaveRoom stops watching and best-effort clears the presence flag so the
// peer can detect departure within the grace window.
func (e *Engine) LeaveRoom(ctx context.Context) {
	e.mu.Lock()
	if e.watchCancel != nil {
		e.watchCancel()
		e.watchCancel = nil
	}
	e.cancelGraceLocked()
	roomID := e.roomID
	e.roomID = ""
	store := e.store
	clientID := e.clientID
	e.mu.Unlock()

	if store == nil || roomID == "" {
		return
	}
	doc, err := store.Load(ctx, roomID)
	if err != nil {
		return
	}
	if doc.Connections == nil {
		doc.Connections = make(map[string]bool)
	}
	doc.Connections[clientID] = false
	if err := store.Save(ctx, roomID, doc); err != nil {
		e.noticef("leave room %s: %v", roomID, err)
	}
}

// watchLoop applies every remote document as a wholesale state replacement.
func (e *Engine) watchLoop(updates <-chan room.Document) {
	for doc := range updates {
		e.mu.Lock()
		var remote GameState
		if len(doc.State) > 0 {
			if err := json.Unmarshal(doc.State, &remote); err != nil {
				e.mu.Unlock()
				e.noticef("malformed room update: %v", err)
				continue
			}
		}
		remote.normalize()
		remote.Mode = Networked
		e.state = remote
		e.connections = doc.Connections
		e.adoptColorLocked(remote)
		e.checkPresenceLocked()
		done := e.finishLocked(false)
		e.mu.Unlock()
		done()
	}
}

// adoptColorLocked learns the local color once the coin flip is replicated.
func (e *Engine) adoptColorLocked(remote GameState) {
	if e.localColor != nil || remote.HostColor == nil {
		return
	}
	color := *remote.HostColor
	if !e.isHost {
		color = color.Other()
	}
	e.localColor = &color
}

// checkPresenceLocked arms the disconnect grace timer when the opponent's
// presence flag is missing, and disarms it when the opponent returns.
func (e *Engine) checkPresenceLocked() {
	if e.state.Status != StatusPlaying {
		return
	}
	if e.opponentPresentLocked() {
		e.cancelGraceLocked()
		return
	}
	if e.graceTimer != nil {
		return
	}
	e.graceTimer = e.clk.AfterFunc(e.delays.Grace, func() {
		e.mu.Lock()
		e.graceTimer = nil
		gone := !e.opponentPresentLocked() && e.state.Status == StatusPlaying
		e.mu.Unlock()
		if gone {
			e.noticef("opponent disconnected")
		}
	})
}

func (e *Engine) opponentPresentLocked() bool {
	for id, present := range e.connections {
		if id != e.clientID && present {
			return true
		}
	}
	return false
}

func (e *Engine) cancelGraceLocked() {
	if e.graceTimer != nil {
		e.graceTimer.Stop()
		e.graceTimer = nil
	}
}

// buildDocumentLocked assembles the full replicated document for a push.
func (e *Engine) buildDocumentLocked(snap GameState) *room.Document {
	data, err := json.Marshal(snap)
	if err != nil {
		e.noticef("marshal state: %v", err)
		return nil
	}
	connections := make(map[string]bool, len(e.connections)+1)
	for id, present := range e.connections {
		connections[id] = present
	}
	connections[e.clientID] = true
	return &room.Document{State: data, Connections: connections}
}

// save writes the document, surfacing failures as a notice. The local state
// stays whatever it was; the next remote delivery reconciles.
func (e *Engine) save(roomID string, doc room.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := e.store.Save(ctx, roomID, doc); err != nil {
		e.noticef("sync write failed: %v", err)
	}
}

func anyPresent(connections map[string]bool) bool {
	for _, present := range connections {
		if present {
			return true
		}
	}
	return false
}
