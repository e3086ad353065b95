package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-ticketvote/internal/models"
	"go-ticketvote/internal/screens"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Message is every frame sent to a browser
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`

	// Topic limits a broadcast to clients of one screen; empty reaches all
	Topic string `json:"-"`
}

// Hub tracks connected screen clients and fans out broadcasts
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	quit       chan struct{}

	upgrader websocket.Upgrader
}

// NewHub creates a hub accepting upgrades from allowedOrigins ("*" allows any)
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 256),
		quit:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Run serves registrations and broadcasts until ctx ends
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			close(h.quit)
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			log.Printf("[WS] Client %s connected to %s", c.id, c.topic)
		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				c.close()
			}
			h.mu.Unlock()
			log.Printf("[WS] Client %s disconnected", c.id)
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if msg.Topic == "" || msg.Topic == c.topic {
					c.send(msg)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues msg for every matching client
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("⚠ [WS] Broadcast queue full, %s message dropped", msg.Type)
	}
}

// ClientCount is the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// hand passes c to the Run loop, or closes c once the hub has stopped
func (h *Hub) hand(ch chan<- *Client, c *Client) {
	select {
	case ch <- c:
	case <-h.quit:
		c.close()
	}
}

// Screen is the server side of one page, driven by its client
type Screen interface {
	Handle(ctx context.Context, cmd screens.Command) error
	Run(ctx context.Context)
	Close()
}

// ScreenFactory builds the screen of a new connection
type ScreenFactory func(out screens.Renderer) Screen

// ServeScreen upgrades the request and runs a screen over the connection
// until the browser goes away.
func (h *Hub) ServeScreen(w http.ResponseWriter, r *http.Request, topic string, newScreen ScreenFactory) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	c := &Client{
		id:       uuid.New().String(),
		topic:    topic,
		conn:     conn,
		outbound: make(chan Message, sendBuffer),
		done:     make(chan struct{}),
	}
	screen := newScreen(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		screen.Close()
		h.hand(h.unregister, c)
	}()

	h.hand(h.register, c)
	c.send(Message{Type: "hello", Data: map[string]string{"clientId": c.id, "screen": topic}})

	go screen.Run(ctx)
	go c.writePump()
	c.readPump(ctx, screen)
}

// Client is one browser connection. It renders its screen.
type Client struct {
	id    string
	topic string
	conn  *websocket.Conn

	outbound  chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) Render(view interface{}) {
	c.send(Message{Type: "view", Data: view})
}

func (c *Client) Notify(n models.Notice) {
	c.send(Message{Type: "notice", Data: n})
}

func (c *Client) Redirect(url string) {
	c.send(Message{Type: "redirect", Data: map[string]string{"url": url}})
}

func (c *Client) send(msg Message) {
	select {
	case <-c.done:
	case c.outbound <- msg:
	default:
		log.Printf("⚠ [WS] Client %s is slow, %s message dropped", c.id, msg.Type)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readPump(ctx context.Context, screen Screen) {
	defer c.conn.Close()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd screens.Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Client %s read error: %v", c.id, err)
			}
			return
		}
		if err := screen.Handle(ctx, cmd); err != nil {
			c.send(Message{Type: "error", Data: map[string]string{"action": cmd.Action, "error": err.Error()}})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("[WS] Client %s write error: %v", c.id, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
