// Package slides relays the presenter's slide position to every open viewer.
//
// Clients connect to /ws (optionally ?session=<code>). Each session is a room
// with one current slide. A new client is sent {"type":"sync","slide":N} right
// away; a {"type":"change","slide":N} message moves the room and every other
// client in it receives a sync. Without ?session= everyone shares one room.
package slides

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/tomato-slides/internal/metrics"
)

const (
	TypeSync   = "sync"
	TypeChange = "change"
	TypeError  = "error"

	writeWait      = 10 * time.Second
	sendBuffer     = 16
	maxMessageSize = 4096
)

// Message is the relay's only wire format.
type Message struct {
	Type    string `json:"type"`
	Slide   int    `json:"slide"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

// Authorizer decides whether a token may move a session's slides.
type Authorizer interface {
	Authorize(token, sessionCode string) error
}

// Hub owns every room and client. It is safe for concurrent use.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room

	auth     Authorizer
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

type room struct {
	current int
	clients map[*client]struct{}
}

type client struct {
	conn    *websocket.Conn
	session string
	send    chan []byte
	closed  bool
}

// NewHub creates a relay. auth may be nil, in which case any client can change
// slides. allowedOrigins limits browser origins; "*" or an empty list allows all.
func NewHub(auth Authorizer, allowedOrigins []string, logger *slog.Logger) *Hub {
	h := &Hub{
		rooms:  make(map[string]*room),
		auth:   auth,
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

// ServeHTTP upgrades the connection and runs the client's read loop until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		conn:    conn,
		session: r.URL.Query().Get("session"),
		send:    make(chan []byte, sendBuffer),
	}
	h.register(c)
	defer h.unregister(c)
	go c.writeLoop(h.logger)

	conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read ended", slog.String("error", err.Error()))
			}
			return
		}
		h.handle(c, data)
	}
}

// Current returns the slide a session is on.
func (h *Hub) Current(session string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rm, ok := h.rooms[session]; ok {
		return rm.current
	}
	return 0
}

// Clients returns the number of connected clients in a session.
func (h *Hub) Clients(session string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rm, ok := h.rooms[session]; ok {
		return len(rm.clients)
	}
	return 0
}

func (h *Hub) handle(c *client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("malformed slide message", slog.String("session", c.session), slog.String("error", err.Error()))
		return
	}
	if msg.Type != TypeChange {
		return
	}
	if msg.Slide < 0 {
		h.logger.Warn("negative slide index ignored", slog.String("session", c.session), slog.Int("slide", msg.Slide))
		return
	}
	if h.auth != nil {
		if err := h.auth.Authorize(msg.Token, c.session); err != nil {
			h.logger.Warn("slide change rejected", slog.String("session", c.session), slog.String("error", err.Error()))
			h.sendTo(c, Message{Type: TypeError, Slide: h.Current(c.session), Message: "presenter token required"})
			return
		}
	}

	h.change(c, msg.Slide)
}

// change moves the room and syncs every client except the sender.
func (h *Hub) change(from *client, slide int) {
	data, _ := json.Marshal(Message{Type: TypeSync, Slide: slide})

	h.mu.Lock()
	defer h.mu.Unlock()

	rm := h.roomLocked(from.session)
	rm.current = slide
	for c := range rm.clients {
		if c != from {
			h.enqueueLocked(c, data)
		}
	}
	h.logger.Info("slide changed", slog.String("session", from.session), slog.Int("slide", slide))
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm := h.roomLocked(c.session)
	rm.clients[c] = struct{}{}
	data, _ := json.Marshal(Message{Type: TypeSync, Slide: rm.current})
	h.enqueueLocked(c, data)

	metrics.SlideClients.Inc()
	h.logger.Info("websocket connected", slog.String("session", c.session), slog.Int("clients", len(rm.clients)))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if rm, ok := h.rooms[c.session]; ok {
		delete(rm.clients, c)
		// Keep the room (and its current slide) for late joiners.
	}
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	h.mu.Unlock()

	c.conn.Close()
	metrics.SlideClients.Dec()
	h.logger.Info("websocket closed", slog.String("session", c.session))
}

func (h *Hub) sendTo(c *client, msg Message) {
	data, _ := json.Marshal(msg)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enqueueLocked(c, data)
}

// enqueueLocked never blocks: a client too slow to keep up is disconnected.
func (h *Hub) enqueueLocked(c *client, data []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("slow websocket client dropped", slog.String("session", c.session))
		c.conn.Close()
	}
}

func (h *Hub) roomLocked(session string) *room {
	rm, ok := h.rooms[session]
	if !ok {
		rm = &room{clients: make(map[*client]struct{})}
		h.rooms[session] = rm
	}
	return rm
}

func (c *client) writeLoop(logger *slog.Logger) {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Debug("websocket write failed", slog.String("error", err.Error()))
			c.conn.Close()
			// Drain so the hub never sees a full buffer for a dead client.
			for range c.send {
			}
			return
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
