package models

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed
	maxMessageSize = 512

	sendBuffer = 256
)

// Hub tracks live websocket clients and routes events to them by tent and user.
type Hub struct {
	clients map[*Client]bool

	register   chan hubOp
	unregister chan hubOp
	stopped    chan struct{}

	// tent ID -> user ID -> connections. Clients that did not pick a tent
	// live under the empty tent ID.
	tentClients map[string]map[string][]*Client

	mu sync.RWMutex
}

// Client represents a WebSocket connection
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	UserID string
	TentID string
}

// hubOp is acknowledged once the run loop has applied it.
type hubOp struct {
	client *Client
	done   chan struct{}
}

// Event is the envelope pushed to websocket clients.
type Event struct {
	Type    string      `json:"type"`
	TentID  string      `json:"tent_id,omitempty"`
	Payload interface{} `json:"payload"`
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:    make(chan hubOp),
		unregister:  make(chan hubOp),
		stopped:     make(chan struct{}),
		clients:     make(map[*Client]bool),
		tentClients: make(map[string]map[string][]*Client),
	}
}

// NewClient builds a client bound to this hub.
func (h *Hub) NewClient(conn *websocket.Conn, userID, tentID string) *Client {
	return &Client{
		Hub:    h,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		UserID: userID,
		TentID: tentID,
	}
}

// Register hands a client to the run loop and waits until it is routable.
func (h *Hub) Register(c *Client) {
	h.submit(h.register, c)
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.submit(h.unregister, c)
}

// submit is a no-op once Run has returned.
func (h *Hub) submit(ch chan hubOp, c *Client) {
	op := hubOp{client: c, done: make(chan struct{})}
	select {
	case ch <- op:
		<-op.done
	case <-h.stopped:
	}
}

// Run processes registrations until ctx is cancelled, then closes every
// remaining client. It must only be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case op := <-h.register:
			h.add(op.client)
			close(op.done)
		case op := <-h.unregister:
			h.remove(op.client)
			close(op.done)
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
			}
			h.clients = make(map[*Client]bool)
			h.tentClients = make(map[string]map[string][]*Client)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	users, exists := h.tentClients[client.TentID]
	if !exists {
		users = make(map[string][]*Client)
		h.tentClients[client.TentID] = users
	}
	users[client.UserID] = append(users[client.UserID], client)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	if users, exists := h.tentClients[client.TentID]; exists {
		clients := users[client.UserID]
		for i, c := range clients {
			if c == client {
				users[client.UserID] = append(clients[:i], clients[i+1:]...)
				break
			}
		}
		if len(users[client.UserID]) == 0 {
			delete(users, client.UserID)
		}
		if len(users) == 0 {
			delete(h.tentClients, client.TentID)
		}
	}

	close(client.Send)
}

// SendMessageToUser sends a message to every connection of a user, across
// all tents. It reports whether at least one connection accepted it.
func (h *Hub) SendMessageToUser(userID string, message []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, users := range h.tentClients {
		delivered += deliver(users[userID], message)
	}
	return delivered > 0
}

// PushEvent marshals an event and sends it to one user. An event bound to a
// tent reaches only the user's connections watching that tent plus their
// unscoped ones; an event without a tent reaches every connection.
func (h *Hub) PushEvent(userID string, event Event) (bool, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return false, err
	}
	if event.TentID == "" {
		return h.SendMessageToUser(userID, data), nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := deliver(h.tentClients[event.TentID][userID], data)
	delivered += deliver(h.tentClients[""][userID], data)
	return delivered > 0, nil
}

// deliver never blocks; a client whose buffer is full misses the message.
func deliver(clients []*Client, message []byte) int {
	n := 0
	for _, client := range clients {
		select {
		case client.Send <- message:
			n++
		default:
		}
	}
	return n
}

// IsUserConnected checks if a user has any active connections in a tent
func (h *Hub) IsUserConnected(tentID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tentClients[tentID][userID]) > 0
}

// ReadPump drains the connection so pongs and close frames are processed.
// Clients only listen; anything they send is discarded.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
