package websocket

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/babulele/AgroMarketHub-sub000/internal/auction"
	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"github.com/charmbracelet/log"
)

type Message struct {
	Type string          `json:"type"` // "join", "bid", "update"
	Data json.RawMessage `json:"data"`
}

type bidEvent struct {
	AuctionID         string `json:"auction_id"`
	BidID             string `json:"bid_id"`
	Amount            int    `json:"amount"`
	Quantity          int    `json:"quantity"`
	CurrentHighestBid int    `json:"current_highest_bid"`
	MinimumNextBid    int    `json:"minimum_next_bid"`
}

func marshalEvent(eventType string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: eventType, Data: payload})
}

type errorEvent struct {
	Message   string             `json:"message"`
	Rejection *auction.Rejection `json:"rejection,omitempty"`
}

func (h *Hub) sendError(client *Client, message string, rej *auction.Rejection) {
	msg, err := marshalEvent("error", errorEvent{Message: message, Rejection: rej})
	if err != nil {
		log.Errorf("Failed to marshal error event: %v", err)
		return
	}
	h.send(client, msg)
}

// ParseMessage validates and parses incoming messages.
func ParseMessage(rawMessage []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(rawMessage, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// HandleMessage routes the message based on its type.
func (h *Hub) HandleMessage(client *Client, rawMessage []byte) {
	if !client.RateLimiter.Allow() {
		log.Warnf("Rate limit exceeded for client %s", client.ID)
		h.sendError(client, "Rate limit exceeded", nil)
		return
	}

	msg, err := ParseMessage(rawMessage)
	if err != nil {
		log.Infof("Invalid message from client %s: %v", client.ID, err)
		h.sendError(client, "Invalid message format", nil)
		return
	}

	switch msg.Type {
	case "join":
		h.handleJoinMessage(client, msg.Data)
	case "bid":
		h.handleBidMessage(client, msg.Data)
	case "update":
		h.handleUpdateMessage(client, msg.Data)
	default:
		log.Infof("Unknown message type from client %s: %s", client.ID, msg.Type)
		h.sendError(client, "Unknown message type", nil)
	}
}

type joinMessage struct {
	AuctionID string `json:"auction_id"`
}

func (h *Hub) handleJoinMessage(client *Client, data json.RawMessage) {
	var join joinMessage
	if err := json.Unmarshal(data, &join); err != nil || join.AuctionID == "" {
		h.sendError(client, "Invalid join message", nil)
		return
	}

	// Reconcile status first so the snapshot the client receives is never
	// a stale "active" past the deadline.
	a, err := h.manager.Observe(context.Background(), join.AuctionID)
	if err != nil {
		h.sendError(client, "Auction not found", nil)
		return
	}

	client.join(join.AuctionID)
	log.Debugf("Client %s joined auction %s", client.ID, join.AuctionID)

	msg, err := marshalEvent("auction_state", a)
	if err != nil {
		log.Errorf("Failed to marshal auction state: %v", err)
		return
	}
	h.send(client, msg)
}

type bidMessage struct {
	AuctionID string `json:"auction_id"`
	Amount    int    `json:"amount"`
	Quantity  int    `json:"quantity"`
}

// handleBidMessage runs a bid through the same arbitration path as the REST
// API; the engine observer broadcasts accepted bids to the room.
func (h *Hub) handleBidMessage(client *Client, data json.RawMessage) {
	var bidMsg bidMessage
	if err := json.Unmarshal(data, &bidMsg); err != nil || bidMsg.AuctionID == "" {
		h.sendError(client, "Invalid bid message", nil)
		return
	}
	if client.Role != types.RoleBuyer {
		h.sendError(client, "Only buyers can place bids", nil)
		return
	}
	if bidMsg.Amount <= 0 || bidMsg.Quantity <= 0 {
		h.sendError(client, "Bid amount and quantity must be positive", nil)
		return
	}

	ctx := context.Background()
	if _, err := h.manager.Observe(ctx, bidMsg.AuctionID); err != nil {
		h.sendError(client, "Auction not found", nil)
		return
	}

	_, err := h.engine.SubmitBid(ctx, bidMsg.AuctionID, client.ID, bidMsg.Amount, bidMsg.Quantity)
	if err != nil {
		var rej *auction.Rejection
		if errors.As(err, &rej) {
			h.sendError(client, rej.Error(), rej)
			return
		}
		log.Error("Error arbitrating bid: ", err)
		h.sendError(client, "Internal server error", nil)
		return
	}
	// Accepted bids reach the client through the room broadcast.
}

func (h *Hub) handleUpdateMessage(client *Client, data json.RawMessage) {
	var join joinMessage
	if err := json.Unmarshal(data, &join); err != nil || join.AuctionID == "" {
		h.sendError(client, "Invalid update message", nil)
		return
	}
	a, err := h.manager.Observe(context.Background(), join.AuctionID)
	if err != nil {
		h.sendError(client, "Auction not found", nil)
		return
	}
	msg, err := marshalEvent("auction_state", a)
	if err != nil {
		log.Errorf("Failed to marshal auction state: %v", err)
		return
	}
	h.send(client, msg)
}
