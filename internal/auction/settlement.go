package auction

import (
	"context"
	"time"

	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"github.com/charmbracelet/log"
)

// Notifier receives the settlement decision for a closed auction. It fires
// exactly once per auction close (the conditional status transition is the
// guard); downstream transports may still deliver at-least-once, so
// consumers deduplicate by auction id.
type Notifier interface {
	Settle(ctx context.Context, rec types.Settlement) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, rec types.Settlement) error

func (f NotifierFunc) Settle(ctx context.Context, rec types.Settlement) error {
	return f(ctx, rec)
}

// LogNotifier writes settlements to the log. Used when no broker is
// configured.
func LogNotifier() Notifier {
	return NotifierFunc(func(_ context.Context, rec types.Settlement) error {
		if rec.NoWinner {
			log.Infof("Auction %s settled with no winner", rec.AuctionID)
			return nil
		}
		log.Infof("Auction %s settled: buyer %s wins at KES %d for %d units",
			rec.AuctionID, rec.WinningBuyerID, rec.Amount, rec.Quantity)
		return nil
	})
}

// MultiNotifier fans a settlement out to several notifiers, returning the
// first error after all have been invoked.
func MultiNotifier(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, rec types.Settlement) error {
		var first error
		for _, n := range notifiers {
			if err := n.Settle(ctx, rec); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

// BuildSettlement derives the settlement record from a closed auction's
// final state. A highest bid below the reserve price yields no winner even
// though bids exist.
func BuildSettlement(a types.Auction, closedAt time.Time) types.Settlement {
	rec := types.Settlement{AuctionID: a.ID, ClosedAt: closedAt}
	if a.WinningBidID == nil || a.WinningBuyerID == nil {
		rec.NoWinner = true
		return rec
	}
	if a.HasReserve() && a.CurrentHighestBid < a.ReservePrice {
		rec.NoWinner = true
		return rec
	}
	rec.WinningBidID = *a.WinningBidID
	rec.WinningBuyerID = *a.WinningBuyerID
	rec.Amount = a.CurrentHighestBid
	rec.Quantity = a.WinningQuantity
	return rec
}
