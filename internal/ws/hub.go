package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event is a message pushed to restaurant dashboards.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// restaurantEvent routes an event to a single restaurant's room.
type restaurantEvent struct {
	RestaurantID uuid.UUID
	Event        Event
}

// Hub tracks connected dashboard clients per restaurant and fans events
// out to them.
type Hub struct {
	// Registered clients keyed by restaurant ID.
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *restaurantEvent

	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *restaurantEvent, 256),
	}
}

// Run starts the hub's main loop. Call as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.restaurantID] == nil {
				h.rooms[client.restaurantID] = make(map[*Client]bool)
			}
			h.rooms[client.restaurantID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.restaurantID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.restaurantID)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			clients := h.rooms[event.RestaurantID]

			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, close and unregister.
					close(client.send)
					delete(h.rooms[event.RestaurantID], client)
					if len(h.rooms[event.RestaurantID]) == 0 {
						delete(h.rooms, event.RestaurantID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToRestaurant sends an event to every client watching the
// given restaurant's order feed.
func (h *Hub) BroadcastToRestaurant(restaurantID uuid.UUID, event Event) {
	h.broadcast <- &restaurantEvent{
		RestaurantID: restaurantID,
		Event:        event,
	}
}
