package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/louisbranch/collapse.space/internal/room"
	"github.com/louisbranch/collapse.space/internal/room/memory"
	"github.com/louisbranch/collapse.space/internal/room/ws"
)

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(Handler(memory.New()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestWebsocketStoreEndpoint(t *testing.T) {
	srv := httptest.NewServer(Handler(memory.New()))
	defer srv.Close()

	client, err := ws.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	doc := room.Document{State: json.RawMessage(`{"turn":1}`), Connections: map[string]bool{}}
	if err := client.Save(ctx, "r1", doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := client.Load(ctx, "r1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Revision != 1 {
		t.Fatalf("revision = %d, want 1", loaded.Revision)
	}
}
