// Package websocket pushes target events to connected browser clients.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/skyspot/skyspot/pkg/logger"
)

// Event types sent to clients.
const (
	MessageTypeTargetUpdate = "target_update"
	MessageTypeTargetChange = "target_change"
)

// Message is the envelope for every event sent to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client is one connected WebSocket peer.
type Client struct {
	conn   *websocket.Conn
	send   chan *Message
	server *Server
	mu     sync.Mutex
	closed bool
}

// Server is a broadcast hub: every event goes to every connected client.
// Clients that cannot keep up are dropped.
type Server struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *logger.Logger
	mu         sync.RWMutex
}

func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 16),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: log.Named("websocket"),
	}
}

// Run dispatches registrations and broadcasts until the context is
// cancelled, then closes every client.
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("Starting WebSocket hub")

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			count := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", count))

		case client := <-s.unregister:
			s.removeClient(client)

		case message := <-s.broadcast:
			s.dispatch(message)

		case <-ctx.Done():
			// Closing done releases any pump goroutine still trying to
			// register or unregister after the hub has stopped.
			close(s.done)
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				client.shutdown()
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *Server) removeClient(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		client.shutdown()
	}
	s.logger.Debug("Client unregistered", logger.Int("client_count", len(s.clients)))
}

func (s *Server) dispatch(message *Message) {
	s.mu.RLock()
	var stalled []*Client
	for client := range s.clients {
		select {
		case client.send <- message:
		default:
			stalled = append(stalled, client)
		}
	}
	s.mu.RUnlock()

	for _, client := range stalled {
		s.logger.Warn("Dropping slow WebSocket client")
		s.removeClient(client)
	}
}

// Broadcast queues an event for every connected client. It never blocks the
// caller: if the hub itself is saturated the event is dropped.
func (s *Server) Broadcast(event string, payload interface{}) {
	select {
	case s.broadcast <- &Message{Type: event, Data: payload}:
	default:
		s.logger.Warn("Broadcast queue full, dropping event",
			logger.String("event", event))
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleConnection upgrades an HTTP request to a WebSocket session.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan *Message, 64),
		server: s,
	}
	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// readPump discards client input; it exists to detect disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		data, err := json.Marshal(message)
		if err != nil {
			c.server.logger.Error("Failed to marshal message", logger.Error(err))
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// shutdown marks the client closed and releases its writer. Called by the
// hub with its lock held.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
