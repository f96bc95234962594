// Shared helpers for the WebSocket round-trip tests: a room served through
// httptest, dialing, and envelope send/expect utilities with explicit
// timeouts on every receive.
package server_test

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/internal/server"
	"github.com/parley-chat/parley/internal/wire"
)

const (
	receiveTimeout = 2 * time.Second
	silenceWindow  = 300 * time.Millisecond
)

// newTestRoom configures the server for tests, starts a room behind an
// httptest server, and restores the default configuration on cleanup.
func newTestRoom(t *testing.T) (*server.Room, *httptest.Server) {
	t.Helper()

	server.SetConfig(&server.Config{
		AllowedOrigins: []string{"*"},
	})
	t.Cleanup(func() { server.SetConfig(nil) })

	room := server.NewRoom()
	return room, serveRoom(t, room)
}

// serveRoom starts an httptest server for an already-constructed room.
func serveRoom(t *testing.T, room *server.Room) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(room.Routes())
	t.Cleanup(ts.Close)
	return ts
}

// dial opens a WebSocket connection to the test server's /websocket
// endpoint.
func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/websocket"
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// sendEnvelope writes one protocol frame to the connection.
func sendEnvelope(t *testing.T, conn *websocket.Conn, msgType, sender, content string) {
	t.Helper()

	env := wire.Envelope{Type: msgType, Sender: sender, Content: content}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(env.Encode())); err != nil {
		t.Fatalf("Failed to send %s frame: %v", msgType, err)
	}
}

// readEnvelope reads the next frame, failing the test on timeout or a
// malformed server frame.
func readEnvelope(t *testing.T, conn *websocket.Conn) wire.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(receiveTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}

	env, err := wire.Decode(raw)
	if err != nil {
		t.Fatalf("Server sent malformed frame %q: %v", raw, err)
	}
	return env
}

// expectEnvelope reads the next frame and asserts its type, sender, and
// content.
func expectEnvelope(t *testing.T, conn *websocket.Conn, msgType, sender, content string) {
	t.Helper()

	env := readEnvelope(t, conn)
	if env.Type != msgType {
		t.Fatalf("Expected %s frame, got %s (%+v)", msgType, env.Type, env)
	}
	if env.Sender != sender {
		t.Errorf("Expected sender %q, got %q", sender, env.Sender)
	}
	if env.Content != content {
		t.Errorf("Expected content %q, got %q", content, env.Content)
	}
}

// expectSilence asserts that no frame arrives within the silence window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(silenceWindow)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no frame, got %q", raw)
	}
	if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
		t.Fatalf("Expected read timeout, got %v", err)
	}
}

// join performs the admission handshake for name and consumes the resulting
// join and roster broadcasts on the same connection.
func join(t *testing.T, conn *websocket.Conn, name string) {
	t.Helper()

	sendEnvelope(t, conn, wire.TypeJoin, name, name)
	expectEnvelope(t, conn, wire.TypeJoin, name, name)

	roster := readEnvelope(t, conn)
	if roster.Type != wire.TypeUserlist {
		t.Fatalf("Expected userlist after join, got %s", roster.Type)
	}
}

// drainRoster consumes one frame and asserts it is a userlist, returning its
// content.
func drainRoster(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	env := readEnvelope(t, conn)
	if env.Type != wire.TypeUserlist {
		t.Fatalf("Expected userlist frame, got %s (%+v)", env.Type, env)
	}
	return env.Content
}
