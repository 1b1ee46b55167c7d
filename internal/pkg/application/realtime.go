package application

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

//Message types pushed to realtime clients
const (
	MessageTypeChanged = "changed"
	MessageTypePing    = "ping"
	MessageTypePong    = "pong"
)

//Message is a realtime notification. For MessageTypeChanged, View names the dashboard view to refetch.
type Message struct {
	Type string `json:"type"`
	View string `json:"view,omitempty"`
}

//Hub keeps the set of connected realtime clients and broadcasts view changes to them
type Hub struct {
	log       logging.Logger
	upgrader  websocket.Upgrader
	broadcast chan Message

	register   chan *client
	unregister chan *client
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]bool
}

//NewHub creates a hub. Run must be called for it to deliver anything.
func NewHub(log logging.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
		broadcast:  make(chan Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    map[*client]bool{},
	}
}

//Run delivers broadcasts until ctx is done and then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			metrics.RealtimeClients.Inc()
		case c := <-h.unregister:
			h.remove(c)
		case message := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- message:
				case <-c.done:
				default:
					// a client that cannot keep up is dropped, it will reconnect and refetch
					go h.leave(c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.stop()
		metrics.RealtimeClients.Dec()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		c.stop()
		metrics.RealtimeClients.Dec()
	}
}

//NotifyChanged queues a change notification for view. It never blocks; when the queue is
//full the notification is dropped.
func (h *Hub) NotifyChanged(view string) {
	select {
	case h.broadcast <- Message{Type: MessageTypeChanged, View: view}:
	default:
		h.log.Warnf("Realtime queue full, dropping change notification for %s", view)
	}
}

//ServeWS upgrades the request and registers the connection as a realtime client
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("Failed to upgrade realtime connection: %s", err.Error())
		return
	}

	c := newClient(h, conn)
	if !h.join(c) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

//client is served by a read and a write pump. The hub disconnects a client by closing
//done, send is never closed.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	done     chan struct{}
	stopOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	return &client{
		hub:  h,
		conn: conn,
		send: make(chan Message, 64),
		done: make(chan struct{}),
	}
}

func (c *client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.stop()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msg := Message{}
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warnf("Unexpected realtime close: %s", err.Error())
			}
			return
		}

		if msg.Type == MessageTypePing {
			select {
			case <-c.done:
				return
			case c.send <- Message{Type: MessageTypePong}:
			default:
			}
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
