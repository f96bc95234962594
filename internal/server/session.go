// Package server drives one WebSocket connection through the chat protocol:
// a reader pump that classifies inbound frames and a writer pump that drains
// the broadcast bus, joined by a one-shot teardown that keeps the presence
// registry and every roster view consistent.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/internal/bus"
	"github.com/parley-chat/parley/internal/presence"
	"github.com/parley-chat/parley/internal/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// directBuffer bounds the queue of private server replies to one client.
	directBuffer = 16

	leaveNotice = "User left"
)

// Session owns one client connection for its whole life. The reader pump is
// the only writer of boundName; the teardown path reads it after both pumps
// have ended, so the slot needs no lock.
type Session struct {
	id       string
	conn     *websocket.Conn
	registry *presence.Registry
	bus      *bus.Bus
	addr     string

	boundName string

	// direct carries server-authored private replies to the writer pump,
	// bypassing the bus so they never reach other clients.
	direct chan wire.Envelope

	maxMessageSize int64
	teardownOnce   sync.Once
}

// NewSession creates a session bound to the shared registry and bus. The
// connection's read limit is applied immediately; the session does nothing
// else until Run.
func NewSession(conn *websocket.Conn, registry *presence.Registry, b *bus.Bus, addr string) *Session {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Session{
		id:             uuid.NewString(),
		conn:           conn,
		registry:       registry,
		bus:            b,
		addr:           addr,
		direct:         make(chan wire.Envelope, directBuffer),
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// Run drives the connection to completion. It subscribes to the bus, starts
// the reader and writer pumps, and when either pump ends it aborts the other
// by cancelling the shared context and closing the socket. Teardown runs
// exactly once after both pumps have returned.
func (s *Session) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := s.bus.Subscribe()

	var wg sync.WaitGroup
	wg.Add(2)

	// Only the writer's goroutine closes the socket: after a terminal
	// refusal the reader cancels, the writer flushes the private reply and
	// then closes, which in turn unblocks a reader stuck in ReadMessage.
	go func() {
		defer wg.Done()
		s.writePump(ctx, sub)
		cancel()
		s.closeConn()
	}()

	go func() {
		defer wg.Done()
		s.readPump()
		cancel()
	}()

	wg.Wait()
	sub.Cancel()
	s.teardownOnce.Do(s.teardown)
}

// readPump reads frames until the socket errors or a terminal protocol
// condition is reached. Closing the connection is the only way to unblock
// it, which is what the writer side does on cancellation.
func (s *Session) readPump() {
	s.setupReadConnection()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		if terminal := s.handleFrame(raw); terminal {
			return
		}
	}
}

// setupReadConnection configures the read deadline and pong handler.
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("session %s: error setting initial read deadline for %s: %v", s.id, s.addr, err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("session %s: error setting read deadline in pong handler for %s: %v", s.id, s.addr, err)
		}
		return nil
	})
}

// handleFrame decodes and classifies one inbound frame. It returns true when
// the session must end (failed admission); every recoverable problem is
// answered privately and reading continues.
func (s *Session) handleFrame(raw []byte) bool {
	env, err := wire.Decode(raw)
	if err != nil {
		log.Printf("session %s: invalid frame from %s: %v", s.id, s.addr, err)
		s.reply(wire.TypeBadRequest, "malformed frame")
		return false
	}

	env = env.Sanitized()

	switch env.Type {
	case wire.TypeHeartbeat:
		// Informational only; no publish, no reply, no timer.
		return false
	case wire.TypeJoin:
		return s.handleJoin(env)
	case wire.TypeMessage:
		s.handleMessage(env)
		return false
	case wire.TypeLeave:
		// Leaves are server-authored; a client frame carries no authority.
		return false
	default:
		s.reply(wire.TypeBadRequest, "unsupported message type")
		return false
	}
}

// handleJoin performs admission. The registry's TryAdmit is the single
// serialization point: of any number of racing joins for one name, exactly
// one session observes true and becomes bound.
func (s *Session) handleJoin(env wire.Envelope) bool {
	if s.boundName != "" {
		s.reply(wire.TypeBadRequest, "already joined")
		return false
	}

	name := env.Content
	if name == "" {
		s.reply(wire.TypeInvalidUsername, "username cannot be empty")
		return true
	}

	if !s.registry.TryAdmit(name) {
		log.Printf("session %s: name %q already in use, refusing %s", s.id, name, s.addr)
		s.reply(wire.TypeInvalidUsername, "username already in use")
		return true
	}

	s.boundName = name
	log.Printf("session %s: %q joined from %s", s.id, name, s.addr)

	s.bus.Publish(env.Encode())
	s.publishRoster("")
	return false
}

// handleMessage relays a chat message. Authorship authority rests with the
// server-side bound name, not the client-supplied sender field.
func (s *Session) handleMessage(env wire.Envelope) {
	if s.boundName == "" {
		s.reply(wire.TypeBadRequest, "join before sending messages")
		return
	}

	if env.Sender != s.boundName {
		s.reply(wire.TypeBadRequest, "Username credentials dont match")
		return
	}

	s.bus.Publish(env.Encode())
}

// reply queues a private server-authored envelope for the writer pump. A
// full queue drops the reply; the client is already not keeping up.
func (s *Session) reply(msgType, reason string) {
	env := wire.Envelope{Type: msgType, Sender: wire.SenderServer, Content: reason}

	select {
	case s.direct <- env:
	default:
		log.Printf("session %s: private reply queue full for %s, dropping %s", s.id, s.addr, msgType)
	}
}

// publishRoster broadcasts a userlist built from the current registry
// snapshot. The snapshot is copied out of the registry's critical section
// before any publish happens.
func (s *Session) publishRoster(exclude string) {
	roster := BuildRoster(s.registry.Snapshot(), exclude)
	reached := s.bus.Publish(roster.Encode())
	log.Printf("session %s: roster update reached %d subscribers", s.id, reached)
}

// writePump forwards bus frames and private replies to the socket, in
// arrival order, and keeps the connection alive with pings. It exits on the
// first write failure, on subscription overrun, or on cancellation.
func (s *Session) writePump(ctx context.Context, sub *bus.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushDirect()
			s.writeCloseMessage()
			return

		case frame, ok := <-sub.C():
			if !ok {
				if err := sub.Err(); errors.Is(err, bus.ErrSlowSubscriber) {
					log.Printf("session %s: %s fell behind the bus, disconnecting", s.id, s.addr)
				}
				s.writeCloseMessage()
				return
			}
			if !s.writeFrame(frame) {
				return
			}

		case env := <-s.direct:
			if !s.writeFrame(env.Encode()) {
				return
			}

		case <-ticker.C:
			if !s.ping() {
				return
			}
		}
	}
}

// flushDirect makes a best effort to deliver queued private replies before
// the pump exits, so a terminal invalid_username still reaches the client.
func (s *Session) flushDirect() {
	for {
		select {
		case env := <-s.direct:
			if !s.writeFrame(env.Encode()) {
				return
			}
		default:
			return
		}
	}
}

// writeFrame writes one text frame and reports whether the pump may continue.
func (s *Session) writeFrame(frame string) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("session %s: error setting write deadline for %s: %v", s.id, s.addr, err)
		return false
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("session %s: error writing to %s: %v", s.id, s.addr, err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame; errors are expected when the peer
// is already gone.
func (s *Session) writeCloseMessage() {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("session %s: error writing close message to %s: %v", s.id, s.addr, err)
		}
	}
}

// ping keeps the connection alive and reports whether the pump may continue.
func (s *Session) ping() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("session %s: error setting write deadline for ping to %s: %v", s.id, s.addr, err)
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("session %s: error writing ping to %s: %v", s.id, s.addr, err)
		}
		return false
	}
	return true
}

// teardown releases the bound name and announces the departure. It runs
// after both pumps have ended; for a session that never bound a name there
// is nothing to undo. The roster is built from the post-release snapshot
// with the leaving name masked in case a concurrent snapshot raced ahead of
// the release.
func (s *Session) teardown() {
	if s.boundName == "" {
		return
	}

	s.registry.Release(s.boundName)

	leave := wire.Envelope{
		Type:    wire.TypeLeave,
		Sender:  s.boundName,
		Content: leaveNotice,
	}
	s.bus.Publish(leave.Encode())
	s.publishRoster(s.boundName)

	log.Printf("session %s: %q left the room", s.id, s.boundName)
}

// closeConn closes the socket, unblocking a reader stuck in ReadMessage.
func (s *Session) closeConn() {
	if err := s.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("session %s: error closing connection to %s: %v", s.id, s.addr, err)
		}
	}
}

// logReadError classifies a read failure for the logs; every read failure
// ends the pump regardless.
func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("session %s: frame from %s exceeded maximum size of %d bytes", s.id, s.addr, s.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("session %s: %s disconnected: %v", s.id, s.addr, err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		log.Printf("session %s: connection to %s closed: %v", s.id, s.addr, err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		log.Printf("session %s: unexpected close from %s: %v", s.id, s.addr, err)
	default:
		log.Printf("session %s: read error from %s: %v", s.id, s.addr, err)
	}
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
