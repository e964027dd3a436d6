package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/timqwees/delivery-api/internal/auth"
	"github.com/timqwees/delivery-api/internal/enum"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is irrelevant, access is gated by JWT
	},
}

// Client represents a single WebSocket connection.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	restaurantID uuid.UUID
	send         chan []byte
}

// ReadPump pumps messages from the WebSocket connection to the hub.
// Dashboard clients never send application messages; the read loop only
// detects disconnects.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			break
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// OwnershipChecker reports whether userID owns the restaurant.
type OwnershipChecker func(ctx context.Context, userID, restaurantID uuid.UUID) (bool, error)

// ServeWS handles WebSocket requests for a restaurant's live order feed.
// Endpoint: WS /ws/restaurants/{rid}/orders?token=JWT
// Admins may watch any restaurant; owners only their own.
func ServeWS(hub *Hub, jwtSecret string, ownsRestaurant OwnershipChecker, w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(jwtSecret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		http.Error(w, "invalid restaurant id", http.StatusBadRequest)
		return
	}

	if claims.Role != enum.UserRoleAdmin {
		if claims.Role != enum.UserRoleOwner {
			http.Error(w, "restaurant access denied", http.StatusForbidden)
			return
		}
		owns, err := ownsRestaurant(r.Context(), claims.UserID, restaurantID)
		if err != nil {
			log.Printf("ERROR: check restaurant ownership: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !owns {
			http.Error(w, "restaurant access denied", http.StatusForbidden)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:          hub,
		conn:         conn,
		restaurantID: restaurantID,
		send:         make(chan []byte, 256),
	}
	client.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
