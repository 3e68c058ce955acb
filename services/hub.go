package services

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is the wire envelope for both directions of the socket transport.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func encodeEvent(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: event, Data: raw})
}

// Client is one live socket connection for one user. A user on several
// devices holds several clients.
type Client struct {
	ID     string
	UserID uint
	Name   string

	Conn *websocket.Conn
	Send chan []byte
}

func NewClient(id string, userID uint, name string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		Name:   name,
		Conn:   conn,
		Send:   make(chan []byte, 64),
	}
}

// WriteLoop drains the send channel onto the socket. Runs as its own
// goroutine per client; exits when the channel closes or a write fails.
func (c *Client) WriteLoop() {
	for msg := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	c.Conn.Close()
}

// Hub tracks live connections, their personal channels (by user id) and the
// conversation rooms they joined. It carries no business logic; the delivery
// pipeline calls into it after commits.
type Hub struct {
	mu       sync.RWMutex
	users    map[uint]map[*Client]struct{}
	rooms    map[uint]map[*Client]struct{}
	byClient map[*Client]map[uint]struct{} // rooms per client, for cleanup

	Presence PresenceTracker
}

func NewHub(presence PresenceTracker) *Hub {
	return &Hub{
		users:    make(map[uint]map[*Client]struct{}),
		rooms:    make(map[uint]map[*Client]struct{}),
		byClient: make(map[*Client]map[uint]struct{}),
		Presence: presence,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.users[c.UserID] == nil {
		h.users[c.UserID] = make(map[*Client]struct{})
	}
	h.users[c.UserID][c] = struct{}{}
	h.byClient[c] = make(map[uint]struct{})
	h.mu.Unlock()

	h.Presence.Connect(c.UserID, c.ID)
	log.Printf("🔵 client %s connected for user %d", c.ID, c.UserID)
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.users[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.UserID)
		}
	}
	for roomID := range h.byClient[c] {
		if room, ok := h.rooms[roomID]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	delete(h.byClient, c)
	h.mu.Unlock()

	close(c.Send)
	h.Presence.Disconnect(c.UserID, c.ID)
	log.Printf("🔴 client %s disconnected for user %d", c.ID, c.UserID)
}

// JoinRoom subscribes the client to a conversation's events. Authorization
// (active participant) is the caller's job; the hub does not hit the store.
func (h *Hub) JoinRoom(c *Client, conversationID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = make(map[*Client]struct{})
	}
	h.rooms[conversationID][c] = struct{}{}
	if h.byClient[c] == nil {
		h.byClient[c] = make(map[uint]struct{})
	}
	h.byClient[c][conversationID] = struct{}{}
}

func (h *Hub) LeaveRoom(c *Client, conversationID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	delete(h.byClient[c], conversationID)
}

// InRoom reports whether any of the user's connections joined the room.
// Used to skip the targeted notification for participants already viewing
// the conversation.
func (h *Hub) InRoom(conversationID, userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// BroadcastToRoom fans an event out to every connection in the room, minus
// the optional excluded client. Slow consumers are skipped, not waited on.
func (h *Hub) BroadcastToRoom(conversationID uint, event string, data interface{}, except *Client) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		log.Println("hub: failed to encode event:", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		if c == except {
			continue
		}
		select {
		case c.Send <- payload:
		default:
			log.Printf("hub: dropping %s for slow client %s", event, c.ID)
		}
	}
}

// SendToUser delivers an event to every connection on a user's personal
// channel. Returns false when the user has no live connection.
func (h *Hub) SendToUser(userID uint, event string, data interface{}) bool {
	payload, err := encodeEvent(event, data)
	if err != nil {
		log.Println("hub: failed to encode event:", err)
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := h.users[userID]
	if len(clients) == 0 {
		return false
	}
	for c := range clients {
		select {
		case c.Send <- payload:
		default:
			log.Printf("hub: dropping %s for slow client %s", event, c.ID)
		}
	}
	return true
}

// SendToClient targets one connection, used for the send acknowledgement.
func (h *Hub) SendToClient(c *Client, event string, data interface{}) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		log.Println("hub: failed to encode event:", err)
		return
	}
	select {
	case c.Send <- payload:
	default:
		log.Printf("hub: dropping %s for slow client %s", event, c.ID)
	}
}
