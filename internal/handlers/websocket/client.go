package websocket

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client is one connected bidder or spectator. The hub owns the Send
// channel: only the hub sends on it and only the hub closes it, so the
// read and write pumps never race the broadcast path.
type Client struct {
	ID          string
	Email       string
	Role        string
	Conn        *websocket.Conn
	Send        chan []byte   // Channel for outgoing messages
	RateLimiter *rate.Limiter // Rate limiter to prevent bid spamming

	mu    sync.Mutex      // protects rooms
	rooms map[string]bool // auction ids this client joined
}

// Joined reports whether the client watches the given auction.
func (c *Client) Joined(auctionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[auctionID]
}

func (c *Client) join(auctionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rooms == nil {
		c.rooms = make(map[string]bool)
	}
	c.rooms[auctionID] = true
}

// ReadMessages listens for incoming messages until the connection drops.
// The hub unregisters the client when this returns.
func (c *Client) ReadMessages(handleMessage func(*Client, []byte)) {
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			log.Debugf("Connection closed for client %s: %v", c.ID, err)
			return
		}
		handleMessage(c, message)
	}
}

// WriteMessages sends outgoing messages until the hub closes Send, then
// drops the connection.
func (c *Client) WriteMessages() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Debugf("Error sending message to client %s: %v", c.ID, err)
			return
		}
	}
}
