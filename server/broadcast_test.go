package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/promptpipe/promptpipe/run"
)

func wsClientCount(s *Server) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// waitForClients polls until the hub reflects the wanted client count
func waitForClients(t *testing.T, s *Server, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if wsClientCount(s) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Client count never reached %d (have %d)", want, wsClientCount(s))
}

func TestBroadcastMessage(t *testing.T) {
	s := newTestServer(t, nil)

	client := &Client{server: s, sendMsg: make(chan interface{}, 8), id: "test-client"}
	s.clients[client] = true

	sent := s.broadcastMessage(ExecutionMessage{Type: "execution_record"})

	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}

	select {
	case msg := <-client.sendMsg:
		em, ok := msg.(ExecutionMessage)
		if !ok {
			t.Fatalf("Message type = %T, want ExecutionMessage", msg)
		}
		if em.Type != "execution_record" {
			t.Errorf("Type = %q, want execution_record", em.Type)
		}
	default:
		t.Fatal("Message never reached the client channel")
	}
}

func TestBroadcastMessage_FullChannel(t *testing.T) {
	s := newTestServer(t, nil)

	// Unbuffered channel with no reader simulates a stalled client
	client := &Client{server: s, sendMsg: make(chan interface{}), id: "stalled-client"}
	s.clients[client] = true

	sent := s.broadcastMessage(ExecutionMessage{Type: "execution_record"})

	if sent != 0 {
		t.Errorf("sent = %d, want 0 for a stalled client", sent)
	}
	if drops := s.broadcastDrops.Load(); drops != 1 {
		t.Errorf("broadcastDrops = %d, want 1", drops)
	}
}

func TestBroadcastRecord_NoClients(t *testing.T) {
	s := newTestServer(t, nil)

	// Must not panic or block with nobody listening
	s.BroadcastRecord(&run.Record{ID: "rec-1", PromptID: "pmt_x", Status: run.StatusSuccess})
}

func TestHubRegisterUnregister(t *testing.T) {
	s := newTestServer(t, nil)
	go s.runHub()

	client := &Client{server: s, sendMsg: make(chan interface{}, 8), id: "hub-client"}

	s.register <- client
	waitForClients(t, s, 1)

	s.unregister <- client
	waitForClients(t, s, 0)

	// Unregister closes the send channel
	select {
	case _, ok := <-client.sendMsg:
		if ok {
			t.Error("Expected send channel to be closed")
		}
	case <-time.After(time.Second):
		t.Error("Send channel was never closed")
	}
}

func TestHubRejectsBeyondMaxClients(t *testing.T) {
	s := newTestServer(t, nil)

	for i := 0; i < MaxClients; i++ {
		filler := &Client{server: s, sendMsg: make(chan interface{}, 1), id: "filler"}
		s.clients[filler] = true
	}

	rejected := &Client{server: s, sendMsg: make(chan interface{}, 1), id: "one-too-many"}
	s.handleClientRegister(rejected)

	if wsClientCount(s) != MaxClients {
		t.Errorf("Client count = %d, want %d", wsClientCount(s), MaxClients)
	}
	select {
	case _, ok := <-rejected.sendMsg:
		if ok {
			t.Error("Rejected client's channel should be closed")
		}
	default:
		t.Error("Rejected client's channel should be closed")
	}
}

func TestExecutionsWebSocket(t *testing.T) {
	s := newTestServer(t, nil)
	go s.runHub()

	httpServer := httptest.NewServer(s.routes())
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws/executions"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer ws.Close()

	// First frame is the hello with version info
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hello map[string]interface{}
	if err := ws.ReadJSON(&hello); err != nil {
		t.Fatalf("Failed to read hello frame: %v", err)
	}
	if hello["type"] != "hello" {
		t.Errorf("First frame type = %v, want hello", hello["type"])
	}

	waitForClients(t, s, 1)

	rec := &run.Record{
		ID:       "rec-ws-1",
		PromptID: "pmt_ws",
		Trigger:  run.TriggerScheduled,
		Status:   run.StatusSuccess,
	}
	s.BroadcastRecord(rec)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ExecutionMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read execution frame: %v", err)
	}

	if msg.Type != "execution_record" {
		t.Errorf("Type = %q, want execution_record", msg.Type)
	}
	if msg.Record == nil || msg.Record.ID != rec.ID {
		t.Errorf("Record = %+v, want ID %s", msg.Record, rec.ID)
	}
	if msg.Timestamp == 0 {
		t.Error("Timestamp should be set")
	}

	// Closing the connection unregisters the client
	ws.Close()
	waitForClients(t, s, 0)
}

func TestExecutionsWebSocket_RejectsDisallowedOrigin(t *testing.T) {
	s := newTestServer(t, nil)
	go s.runHub()

	httpServer := httptest.NewServer(s.routes())
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws/executions"
	header := http.Header{"Origin": []string{"http://evil.example.com"}}

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		ws.Close()
		t.Fatal("Expected handshake to fail for disallowed origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("Handshake status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}
