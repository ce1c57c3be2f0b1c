package types

import (
	"time"
)

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role"`
	County   string `json:"county,omitempty"`
}

// User roles as used by the surrounding marketplace. Only buyers may bid;
// only farmers may create, close or cancel auctions.
const (
	RoleFarmer = "farmer"
	RoleBuyer  = "buyer"
	RoleAdmin  = "admin"
)

// AuctionStatus is the lifecycle state of an auction. Transitions are
// monotonic: draft -> active -> closed|cancelled, plus draft -> cancelled.
// Closed and cancelled are terminal.
type AuctionStatus string

const (
	StatusDraft     AuctionStatus = "draft"
	StatusActive    AuctionStatus = "active"
	StatusClosed    AuctionStatus = "closed"
	StatusCancelled AuctionStatus = "cancelled"
)

// Terminal reports whether no further transition may leave the status.
func (s AuctionStatus) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

type Auction struct {
	ID          string `json:"id"`
	FarmerID    string `json:"farmerId"`
	ProductID   string `json:"productId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// All amounts are whole KES. CurrentHighestBid is zero until the first
	// accepted bid; the increment baseline is StartingPrice in that case.
	StartingPrice     int `json:"startingPrice"`
	ReservePrice      int `json:"reservePrice,omitempty"` // 0 = no reserve
	CurrentHighestBid int `json:"currentHighestBid"`
	MinimumIncrement  int `json:"minimumBidIncrement"`

	Quantity int    `json:"quantity"`
	Unit     string `json:"unit"`

	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`

	Status          AuctionStatus `json:"status"`
	WinningBidID    *string       `json:"winningBidId,omitempty"`
	WinningBuyerID  *string       `json:"winningBuyerId,omitempty"`
	WinningQuantity int           `json:"winningQuantity,omitempty"`
	BidCount        int           `json:"bidCount"`

	County    string `json:"county"`
	SubCounty string `json:"subCounty,omitempty"`

	// Version is the optimistic-concurrency token maintained by the store.
	// It increments on every committed mutation of the running state.
	Version int `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasReserve reports whether the farmer set a reserve price.
func (a *Auction) HasReserve() bool {
	return a.ReservePrice > 0
}

// Baseline is the amount the next bid is measured against: the current
// highest bid, or the starting price before any bid was accepted.
func (a *Auction) Baseline() int {
	if a.CurrentHighestBid > 0 {
		return a.CurrentHighestBid
	}
	return a.StartingPrice
}

// MinimumNextBid is the smallest amount the next bid may carry.
func (a *Auction) MinimumNextBid() int {
	return a.Baseline() + a.MinimumIncrement
}

type Bid struct {
	ID          string    `json:"id"`
	AuctionID   string    `json:"auctionId"`
	BuyerID     string    `json:"buyerId"`
	Amount      int       `json:"amount"`
	Quantity    int       `json:"quantity"`
	Winning     bool      `json:"isWinning"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Settlement is the single record emitted when an auction transitions into
// closed. It is the only interface between the bidding core and the external
// order/payment pipeline; consumers must handle at-least-once delivery.
type Settlement struct {
	AuctionID      string    `json:"auctionId"`
	NoWinner       bool      `json:"noWinner"`
	WinningBuyerID string    `json:"winningBuyerId,omitempty"`
	WinningBidID   string    `json:"winningBidId,omitempty"`
	Amount         int       `json:"amount,omitempty"`
	Quantity       int       `json:"quantity,omitempty"`
	ClosedAt       time.Time `json:"closedAt"`
}
