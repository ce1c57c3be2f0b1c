package websocket

import (
	"net/http"
	"sync"

	"github.com/babulele/AgroMarketHub-sub000/internal/auction"
	"github.com/babulele/AgroMarketHub-sub000/internal/auth"
	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Authenticator validates the session cookie on the upgrade request.
type Authenticator interface {
	FromCookie(r *http.Request) (auth.Session, error)
}

// Hub tracks connected clients and fans accepted bids and auction-end
// events out to the clients watching each auction.
type Hub struct {
	engine  *auction.Engine
	manager *auction.Manager
	auth    Authenticator

	mu      sync.Mutex
	clients map[*Client]bool
}

func NewHub(engine *auction.Engine, authn Authenticator) *Hub {
	return &Hub{
		engine:  engine,
		auth:    authn,
		clients: make(map[*Client]bool),
	}
}

// SetManager wires the lifecycle manager after construction. The manager's
// settlement notifier fans out to this hub, so the two are built in stages.
func (h *Hub) SetManager(m *auction.Manager) {
	h.manager = m
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleAuctionWebSocket authenticates the request and upgrades it to a
// WebSocket connection.
func (h *Hub) HandleAuctionWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := h.auth.FromCookie(r)
	if err != nil {
		log.Error("Invalid session on websocket upgrade: ", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Infof("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:          sess.UserID,
		Email:       sess.Email,
		Role:        sess.Role,
		Conn:        conn,
		Send:        make(chan []byte, 16),
		RateLimiter: rate.NewLimiter(1, 3),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	go func() {
		client.ReadMessages(h.HandleMessage)
		h.unregister(client)
	}()
	go client.WriteMessages()
}

// unregister removes a client and closes its send channel. Send is only
// ever closed here and in broadcast, both under the lock and only while
// the client is still registered, so it cannot be closed twice or sent to
// after close.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
	h.mu.Unlock()
	client.Conn.Close()
}

// send delivers one message to one client, skipping clients already
// unregistered. All sends on a client's channel go through here or through
// broadcast so they serialize with the close in unregister.
func (h *Hub) send(client *Client, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.Send <- message:
	default:
	}
}

// broadcast sends a message to every client watching the auction.
func (h *Hub) broadcast(auctionID string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.Joined(auctionID) {
			continue
		}
		select {
		case client.Send <- message:
		default:
			// Slow client; drop it. The write pump closes the connection
			// once Send drains.
			delete(h.clients, client)
			close(client.Send)
		}
	}
}

// BidAccepted is registered as an engine observer: every committed bid is
// pushed to the auction's watchers.
func (h *Hub) BidAccepted(a types.Auction, b types.Bid) {
	msg, err := marshalEvent("bid", bidEvent{
		AuctionID:         b.AuctionID,
		BidID:             b.ID,
		Amount:            b.Amount,
		Quantity:          b.Quantity,
		CurrentHighestBid: a.CurrentHighestBid,
		MinimumNextBid:    a.MinimumNextBid(),
	})
	if err != nil {
		log.Errorf("Failed to marshal bid event: %v", err)
		return
	}
	h.broadcast(b.AuctionID, msg)
}

// AuctionSettled pushes the end-of-auction event to watchers. Wired as a
// settlement notifier alongside the broker publisher.
func (h *Hub) AuctionSettled(rec types.Settlement) {
	msg, err := marshalEvent("auction_end", rec)
	if err != nil {
		log.Errorf("Failed to marshal settlement event: %v", err)
		return
	}
	h.broadcast(rec.AuctionID, msg)
}
