package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"github.com/charmbracelet/log"
)

// defaultMaxRetries bounds how often a bid is retried after a commit
// conflict before it fails with RejectContention.
const defaultMaxRetries = 3

// Observer is notified after a bid has committed. Used for the live
// WebSocket broadcast and the current-bid cache; observer failures never
// affect the accepted bid.
type Observer func(a types.Auction, b types.Bid)

// Engine arbitrates incoming bids against auction state. All decisions for
// one auction happen inside the store's per-auction serialization point, so
// two bids on the same auction can never both read the same baseline.
type Engine struct {
	store      Store
	clock      Clock
	maxRetries int
	observers  []Observer
}

func NewEngine(store Store, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock
	}
	return &Engine{store: store, clock: clock, maxRetries: defaultMaxRetries}
}

// Observe registers a post-commit observer. Not safe to call concurrently
// with SubmitBid; register everything during wiring.
func (e *Engine) Observe(fn Observer) {
	e.observers = append(e.observers, fn)
}

// SubmitBid decides accept or reject for one incoming bid. On success the
// returned bid carries its server-assigned ID and submission timestamp and is
// the auction's new winning bid. On rejection the error is a *Rejection with
// a code the caller can branch on; rejected bids are never persisted.
func (e *Engine) SubmitBid(ctx context.Context, auctionID, buyerID string, amount, quantity int) (types.Bid, error) {
	for attempt := 0; ; attempt++ {
		tx, err := e.store.Begin(ctx, auctionID)
		if errors.Is(err, ErrNotFound) {
			return types.Bid{}, reject(RejectNotFound)
		}
		if err != nil {
			return types.Bid{}, fmt.Errorf("opening auction %s for bidding: %w", auctionID, err)
		}

		a := tx.Auction()
		if rej := Arbitrate(a, e.clock.Now(), amount, quantity); rej != nil {
			tx.Rollback()
			return types.Bid{}, rej
		}

		accepted, err := tx.Accept(ctx, types.Bid{
			AuctionID: auctionID,
			BuyerID:   buyerID,
			Amount:    amount,
			Quantity:  quantity,
			Winning:   true,
		})
		if err != nil {
			tx.Rollback()
			return types.Bid{}, fmt.Errorf("recording bid on auction %s: %w", auctionID, err)
		}

		if err := tx.Commit(ctx); err != nil {
			if errors.Is(err, ErrConflict) {
				if attempt < e.maxRetries {
					log.Debugf("Bid on auction %s hit commit conflict, retrying (%d/%d)", auctionID, attempt+1, e.maxRetries)
					continue
				}
				log.Warnf("Bid on auction %s exhausted %d retries under contention", auctionID, e.maxRetries)
				return types.Bid{}, reject(RejectContention)
			}
			return types.Bid{}, fmt.Errorf("committing bid on auction %s: %w", auctionID, err)
		}

		log.Debugf("Auction %s accepted bid %s: KES %d for %d %s by %s",
			auctionID, accepted.ID, accepted.Amount, accepted.Quantity, a.Unit, buyerID)

		updated := *a
		updated.CurrentHighestBid = accepted.Amount
		updated.WinningBidID = &accepted.ID
		updated.WinningBuyerID = &accepted.BuyerID
		updated.WinningQuantity = accepted.Quantity
		updated.BidCount++
		for _, fn := range e.observers {
			fn(updated, accepted)
		}
		return accepted, nil
	}
}

// Arbitrate runs the acceptance preconditions in order; the first failure
// wins and later checks are skipped. A nil result means the bid is
// acceptable against this snapshot of the auction.
func Arbitrate(a *types.Auction, now time.Time, amount, quantity int) *Rejection {
	if a.Status != types.StatusActive {
		return reject(RejectNotActive)
	}
	// The window check stands on its own: between the deadline passing and
	// the lifecycle sweep flipping the status, the record still says active.
	if now.Before(a.StartDate) || now.After(a.EndDate) {
		return reject(RejectOutsideWindow)
	}
	if quantity <= 0 || quantity > a.Quantity {
		return reject(RejectInvalidQuantity)
	}
	if min := a.MinimumNextBid(); amount < min {
		return &Rejection{
			Code:      RejectBidTooLow,
			Minimum:   min,
			Baseline:  a.Baseline(),
			Increment: a.MinimumIncrement,
		}
	}
	// The reserve price stays hidden at bid time: bids below it are
	// recorded and can win the ranking, but settlement yields no winner
	// unless the final highest bid satisfies the reserve.
	return nil
}
