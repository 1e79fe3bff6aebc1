// Package netwrk adapts WebSocket connections onto the engine's message
// inbox and the broadcast hub. The engine itself never sees a socket.
package netwrk

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"pongd/internal/broadcast"
	"pongd/internal/protocol"
)

const (
	// maxInputBatches caps the frame batches one input message may carry.
	// The engine buffers whatever the transport lets through, so the
	// bound on client-supplied input lives here.
	maxInputBatches = 32

	// sendBuffer is the per-peer outbound queue depth. A peer that falls
	// further behind than this is dropped.
	sendBuffer = 64
)

var (
	errSendBufferFull = errors.New("send buffer full")
	errPeerGone       = errors.New("peer gone")
)

type Server struct {
	log   *slog.Logger
	inbox chan<- protocol.Message
	hub   *broadcast.Hub

	upgrader websocket.Upgrader
}

func NewServer(log *slog.Logger, inbox chan<- protocol.Message, hub *broadcast.Hub) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:   log,
		inbox: inbox,
		hub:   hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Auth is out of scope here, so any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the connection and pumps its messages into the engine.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("websocket upgrade failed", "error", err)
		return
	}
	c := &client{
		conn: conn,
		out:  make(chan any, sendBuffer),
		done: make(chan struct{}),
		subs: make(map[string]string),
	}
	go c.writePump()
	go s.readLoop(c)
}

// client is one WebSocket peer. Broadcasts are queued on out and written
// by writePump, so a slow peer backs up its own queue instead of the
// engine goroutine.
type client struct {
	conn *websocket.Conn
	out  chan any
	done chan struct{}
	subs map[string]string // channel -> hub subscriber id
}

// enqueue hands a broadcast payload to the write pump. When the queue is
// full the payload is refused, which makes the hub drop the subscriber.
func (c *client) enqueue(payload any) error {
	select {
	case <-c.done:
		return errPeerGone
	default:
	}
	select {
	case c.out <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

// writePump is the connection's only writer; gorilla allows just one
// concurrent writer per connection.
func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case payload := <-c.out:
			if err := c.write(payload); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// write delivers one broadcast payload. Snapshots go out as binary
// msgpack frames, everything else as the JSON envelope.
func (c *client) write(payload any) error {
	if snap, ok := payload.(protocol.Snapshot); ok {
		b, err := protocol.EncodeSnapshot(snap)
		if err != nil {
			return err
		}
		return c.conn.WriteMessage(websocket.BinaryMessage, b)
	}
	msg, err := protocol.NewMessage(payload)
	if err != nil {
		return err
	}
	b, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) readLoop(c *client) {
	defer func() {
		for channel, id := range c.subs {
			s.hub.Unsubscribe(channel, id)
		}
		close(c.done)
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			s.log.Debug("peer disconnected", "error", err)
			return
		}
		msg, err := protocol.Unmarshal(data)
		if err != nil {
			s.log.Info("dropping invalid message from peer", "error", err)
			continue
		}
		if oversized(msg) {
			s.log.Info("dropping oversized input message", "session", protocol.SessionIDOf(msg.Message))
			continue
		}
		// Any message naming a session subscribes the peer to that
		// session's broadcasts.
		if sid := protocol.SessionIDOf(msg.Message); sid != "" {
			if _, ok := c.subs[sid]; !ok {
				c.subs[sid] = s.hub.Subscribe(sid, c.enqueue)
			}
		}
		s.inbox <- msg
	}
}

// oversized reports whether an inbound message carries more input batches
// than one message may.
func oversized(msg protocol.Message) bool {
	in, ok := msg.Message.(protocol.Input)
	return ok && len(in.Frames) > maxInputBatches
}
