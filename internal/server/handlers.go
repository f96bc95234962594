// Package server exposes the HTTP handlers: the WebSocket upgrade that hands
// a connection off to a session, the embedded chat page, and its assets.
package server

import (
	"embed"
	"io/fs"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/internal/bus"
	"github.com/parley-chat/parley/internal/presence"
)

//go:embed web
var webFS embed.FS

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Room bundles the shared state every session is bound to: the presence
// registry and the broadcast bus.
type Room struct {
	Registry *presence.Registry
	Bus      *bus.Bus
}

// NewRoom creates the room state using the active configuration's bus
// capacity.
func NewRoom() *Room {
	cfg := currentConfig()
	return &Room{
		Registry: presence.NewRegistry(),
		Bus:      bus.New(cfg.BusCapacity),
	}
}

// WebSocketHandler upgrades the request and hands the connection to a new
// session. The handler itself does no protocol work; the first inbound frame
// belongs to the session.
func (rm *Room) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	session := NewSession(conn, rm.Registry, rm.Bus, r.RemoteAddr)
	go session.Run()
}

// IndexHandler serves the embedded chat page.
func IndexHandler(w http.ResponseWriter, _ *http.Request) {
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(page); err != nil {
		log.Printf("Error writing index page: %v", err)
	}
}

// AssetsHandler serves the embedded static assets under /assets/.
func AssetsHandler() http.Handler {
	assets, err := fs.Sub(webFS, "web/assets")
	if err != nil {
		// The subtree is compiled in; a failure here is a build defect.
		panic(err)
	}
	return http.StripPrefix("/assets/", http.FileServer(http.FS(assets)))
}
