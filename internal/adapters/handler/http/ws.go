package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"pm2gate/internal/core/domain"
	"pm2gate/internal/core/logger"
	"pm2gate/internal/core/ports"
	"pm2gate/internal/core/services"
	"pm2gate/internal/core/stream"
	"pm2gate/internal/core/tail"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // no origin restriction, same as the REST surface
	},
}

// Gateway accepts inbound streaming connections, validates the target
// process, and binds each connection to its own stream session.
type Gateway struct {
	procs    *services.ProcessService
	registry *stream.Registry
	events   ports.EventPublisher // optional
	tailOpts tail.Options
}

func NewGateway(procs *services.ProcessService, registry *stream.Registry, events ports.EventPublisher, tailOpts tail.Options) *Gateway {
	return &Gateway{
		procs:    procs,
		registry: registry,
		events:   events,
		tailOpts: tailOpts,
	}
}

// HandleStream upgrades the connection and serves it until disconnect.
// An unknown process gets a single error frame and a policy-violation
// close; no session is opened for it.
func (g *Gateway) HandleStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	filter := domain.ParseChannelFilter(r.URL.Query().Get("filter"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "err", err)
		return
	}

	proc, err := g.procs.Get(r.Context(), name)
	if err != nil {
		msg := "Process " + name + " not found"
		if !errors.Is(err, domain.ErrProcessNotFound) {
			msg = err.Error()
		}
		g.reject(conn, msg)
		return
	}

	sink := newWSSink(conn)
	go sink.writePump()

	sess, err := stream.Open(r.Context(), proc, filter, sink, g.tailOpts)
	if err != nil {
		logger.Error("stream open failed", "process", name, "err", err)
		sink.Close()
		return
	}

	g.registry.Add(sess)
	g.publishSession(r.Context(), name, "open", sess.ID)

	// Blocks for the connection's lifetime. Whichever signal fires first
	// (client close, transport error, write failure) funnels into the
	// same one-shot teardown below.
	g.readPump(conn, sink)

	g.registry.Remove(sess.ID)
	sess.Close()
	g.publishSession(context.Background(), name, "close", sess.ID)
}

// readPump consumes client frames: a ping message earns exactly one pong,
// and any other payload, malformed or not, is ignored without dropping
// the connection.
func (g *Gateway) readPump(conn *websocket.Conn, sink *wsSink) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := sink.Send(stream.Message{Type: "pong"}); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) reject(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteJSON(stream.Message{Type: "error", Message: message})
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message),
		time.Now().Add(writeWait))
	conn.Close()
}

func (g *Gateway) publishSession(ctx context.Context, process, event, sessionID string) {
	if g.events == nil {
		return
	}
	if err := g.events.PublishSession(ctx, process, event, sessionID); err != nil {
		logger.Warn("session event publish failed", "process", process, "err", err)
	}
}

// wsSink adapts one websocket connection to the stream.Sink interface.
// Outbound frames funnel through a buffered channel into a single write
// pump, since gorilla connections allow only one concurrent writer.
type wsSink struct {
	conn *websocket.Conn
	send chan stream.Message
	done chan struct{}
	once sync.Once
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{
		conn: conn,
		send: make(chan stream.Message, 256),
		done: make(chan struct{}),
	}
}

func (s *wsSink) Send(msg stream.Message) error {
	select {
	case s.send <- msg:
		return nil
	case <-s.done:
		return stream.ErrSinkClosed
	}
}

func (s *wsSink) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// writePump pumps messages to the websocket connection and keeps the
// peer alive with transport pings. It owns the connection's write side
// and closes the socket on exit, which in turn unblocks the read pump.
func (s *wsSink) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
