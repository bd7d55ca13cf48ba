package websocket

import (
	"context"
	"net/http"
	"sync"

	"snackorder/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer in front of the API
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is delivered to every client of CompanyID.
type Message struct {
	CompanyID uuid.UUID
	Payload   []byte
}

// Client is one dashboard connection, bound to its company room.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	CompanyID uuid.UUID
	Send      chan []byte
}

// Hub keeps one room of clients per company and fans messages out to a room.
type Hub struct {
	rooms      map[uuid.UUID]map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]struct{}),
		broadcast:  make(chan Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.Named("websocket"),
	}
}

// Publish queues payload for the company's clients. It never blocks the
// caller; when the queue is full the message is dropped and false returned.
func (h *Hub) Publish(companyID uuid.UUID, payload []byte) bool {
	select {
	case h.broadcast <- Message{CompanyID: companyID, Payload: payload}:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected clients across all companies.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// Run dispatches registrations and messages until ctx is done. On exit every
// client channel is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, room := range h.rooms {
				for client := range room {
					h.drop(client)
				}
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[client.CompanyID]
			if !ok {
				room = make(map[*Client]struct{})
				h.rooms[client.CompanyID] = room
			}
			room[client] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("client connected", zap.String("company_id", client.CompanyID.String()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.rooms[client.CompanyID][client]; ok {
				h.drop(client)
				h.log.Debug("client disconnected", zap.String("company_id", client.CompanyID.String()))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.rooms[msg.CompanyID] {
				select {
				case client.Send <- msg.Payload:
				default:
					// Slow consumer; it reconnects and refetches.
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(client *Client) {
	room := h.rooms[client.CompanyID]
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, client.CompanyID)
	}
	close(client.Send)
}

// writePump drains Send into the connection until the hub closes it.
func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards inbound frames and unregisters on disconnect.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("read failed", zap.Error(err))
			}
			break
		}
	}
}

// ServeWs upgrades an authenticated request. The token travels as a query
// parameter because browsers cannot set headers on websocket handshakes.
func ServeWs(hub *Hub, c *gin.Context, secret []byte) {
	identity, err := middleware.ParseIdentity(c.Query("token"), secret)
	if err != nil {
		hub.log.Info("connection rejected", zap.Error(err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	client := &Client{Hub: hub, Conn: conn, CompanyID: identity.CompanyID, Send: make(chan []byte, 256)}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
