package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// routedEvent is an internal struct for routing events to their audience:
// either one customer's connections or every staff connection.
type routedEvent struct {
	UserID  uuid.UUID
	ToStaff bool
	Event   Event
}

// Hub maintains the set of active clients and broadcasts messages to them.
// Every connection joins its user's room; staff connections additionally
// join the shared staff room.
type Hub struct {
	// Registered clients by user ID
	rooms map[uuid.UUID]map[*Client]bool

	// Staff room, all staff connections regardless of user
	staff map[*Client]bool

	// Inbound messages from clients (register/unregister)
	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *routedEvent

	// Mutex for thread-safe room access
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		staff:      make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *routedEvent, 256),
	}
}

// Run starts the hub's main loop
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.userID] == nil {
				h.rooms[client.userID] = make(map[*Client]bool)
			}
			h.rooms[client.userID][client] = true
			if client.staff {
				h.staff[client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.userID]; ok {
				if _, exists := clients[client]; exists {
					h.drop(client)
					close(client.send)
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			var clients map[*Client]bool
			if event.ToStaff {
				clients = h.staff
			} else {
				clients = h.rooms[event.UserID]
			}

			// Marshal event to JSON once
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, close and unregister
					h.drop(client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes a client from every room it joined. Caller holds h.mu.
func (h *Hub) drop(client *Client) {
	delete(h.rooms[client.userID], client)
	if len(h.rooms[client.userID]) == 0 {
		delete(h.rooms, client.userID)
	}
	delete(h.staff, client)
}

// BroadcastToUser sends an event to all of one customer's connections.
// This is the public API for handlers to broadcast events.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event Event) {
	h.broadcast <- &routedEvent{UserID: userID, Event: event}
}

// BroadcastToStaff sends an event to every connected staff member.
func (h *Hub) BroadcastToStaff(event Event) {
	h.broadcast <- &routedEvent{ToStaff: true, Event: event}
}
