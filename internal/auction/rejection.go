package auction

import "fmt"

// RejectCode is the closed set of reasons the engine refuses a bid. Callers
// branch on the code rather than parsing messages.
type RejectCode string

const (
	RejectNotFound        RejectCode = "not_found"
	RejectNotActive       RejectCode = "not_active"
	RejectOutsideWindow   RejectCode = "outside_window"
	RejectInvalidQuantity RejectCode = "invalid_quantity"
	RejectBidTooLow       RejectCode = "bid_too_low"
	RejectContention      RejectCode = "contention"
)

// Rejection is returned by SubmitBid when a bid fails arbitration. For
// BidTooLow it carries the numbers the bidder needs to correct and resubmit
// without re-fetching the auction. No partial state is ever committed before
// a Rejection is returned, so Contention is always safe to retry unchanged.
type Rejection struct {
	Code      RejectCode `json:"code"`
	Minimum   int        `json:"minimum,omitempty"`   // required minimum bid (BidTooLow)
	Baseline  int        `json:"baseline,omitempty"`  // current highest or starting price
	Increment int        `json:"increment,omitempty"` // auction's minimum increment
}

func (r *Rejection) Error() string {
	switch r.Code {
	case RejectNotFound:
		return "auction not found"
	case RejectNotActive:
		return "auction is not active"
	case RejectOutsideWindow:
		return "auction bidding window is closed"
	case RejectInvalidQuantity:
		return "bid quantity exceeds auctioned quantity"
	case RejectBidTooLow:
		return fmt.Sprintf("bid must be at least KES %d (current highest: KES %d + minimum increment: KES %d)",
			r.Minimum, r.Baseline, r.Increment)
	case RejectContention:
		return "auction is receiving too many concurrent bids, retry"
	}
	return string(r.Code)
}

// Retryable reports whether resubmitting the identical bid can succeed.
// Only contention failures qualify; business rejections need a changed bid.
func (r *Rejection) Retryable() bool {
	return r.Code == RejectContention
}

func reject(code RejectCode) *Rejection {
	return &Rejection{Code: code}
}
