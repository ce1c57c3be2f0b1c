package auction

import (
	"context"
	"errors"
	"time"

	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
)

// Sentinel errors shared by all Store implementations.
var (
	// ErrNotFound is returned when the referenced auction does not exist.
	ErrNotFound = errors.New("auction not found")
	// ErrConflict is returned by Tx.Commit when another writer committed to
	// the same auction first. The engine retries a bounded number of times.
	ErrConflict = errors.New("concurrent auction update conflict")
)

// Clock supplies the current time. Lifecycle transitions and the bidding
// window check both go through it so tests can drive the deadline.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock used in production.
var SystemClock Clock = ClockFunc(time.Now)

// Filter narrows ListAuctions. Zero values mean "any". Category filtering is
// resolved by the transport layer into product IDs via the catalog
// collaborator; the store itself knows nothing about product categories.
type Filter struct {
	Status     types.AuctionStatus
	County     string
	ProductIDs []string
	FarmerID   string
	Page       int
	PerPage    int
}

// Tx is a serialized view of a single auction record. Between Begin and
// Commit/Rollback no other writer can interleave with this auction; bids on
// other auctions are unaffected. Exactly one of Commit or Rollback must be
// called.
type Tx interface {
	// Auction returns the record as of Begin. Mutating the snapshot has no
	// effect; all writes go through Accept.
	Auction() *types.Auction

	// Accept applies the full effect of a winning bid as one atomic unit:
	// demote the previous winning bid, persist the new bid with the winning
	// flag set and a server-assigned submission timestamp, update the
	// auction's running state and append the bid to history. The returned
	// bid carries its assigned ID and timestamp. Nothing is observable by
	// readers until Commit succeeds.
	Accept(ctx context.Context, bid types.Bid) (types.Bid, error)

	Commit(ctx context.Context) error
	Rollback() error
}

// Store is the durable source of truth for auctions and bids. All running
// state mutations are linearized per auction id.
type Store interface {
	CreateAuction(ctx context.Context, a types.Auction) (types.Auction, error)
	GetAuction(ctx context.Context, id string) (types.Auction, error)
	ListAuctions(ctx context.Context, f Filter) ([]types.Auction, error)
	ListBids(ctx context.Context, auctionID string) ([]types.Bid, error)
	ListBidsByBuyer(ctx context.Context, buyerID string) ([]types.Bid, error)

	// Begin opens the per-auction serialization point. Returns ErrNotFound
	// if the auction does not exist.
	Begin(ctx context.Context, auctionID string) (Tx, error)

	// TransitionStatus conditionally moves the auction from one status to
	// another. The boolean reports whether this call performed the
	// transition; a false result with a nil error means the auction was no
	// longer in the from status. This is the guard that keeps settlement
	// single-fire under concurrent lazy-close observations.
	TransitionStatus(ctx context.Context, id string, from, to types.AuctionStatus) (types.Auction, bool, error)

	// ListDue returns auctions whose status no longer matches the clock:
	// drafts whose start date has passed and actives whose end date has
	// passed. Used by the lifecycle sweep.
	ListDue(ctx context.Context, now time.Time) ([]types.Auction, error)
}

// Inventory is the external product-catalog collaborator. The engine only
// needs the available quantity to validate auction terms at creation.
type Inventory interface {
	Available(ctx context.Context, productID string) (int, error)
}

// InventoryFunc adapts a function to the Inventory interface.
type InventoryFunc func(ctx context.Context, productID string) (int, error)

func (f InventoryFunc) Available(ctx context.Context, productID string) (int, error) {
	return f(ctx, productID)
}
