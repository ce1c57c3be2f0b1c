package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// seedAuction creates an active auction directly in the store with the
// given listing terms.
func seedAuction(t *testing.T, store *MemStore, a types.Auction) types.Auction {
	t.Helper()
	if a.ID == "" {
		a.ID = "auction-1"
	}
	if a.FarmerID == "" {
		a.FarmerID = "farmer-1"
	}
	if a.Status == "" {
		a.Status = types.StatusActive
	}
	if a.MinimumIncrement == 0 {
		a.MinimumIncrement = 50
	}
	if a.Quantity == 0 {
		a.Quantity = 10
	}
	if a.Unit == "" {
		a.Unit = "kg"
	}
	if a.StartDate.IsZero() {
		a.StartDate = testStart
	}
	if a.EndDate.IsZero() {
		a.EndDate = testStart.Add(24 * time.Hour)
	}
	created, err := store.CreateAuction(context.Background(), a)
	require.NoError(t, err)
	return created
}

func newTestEngine(t *testing.T) (*Engine, *MemStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock(testStart.Add(time.Hour))
	store := NewMemStore(clock)
	return NewEngine(store, clock), store, clock
}

func requireRejection(t *testing.T, err error, code RejectCode) *Rejection {
	t.Helper()
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, code, rej.Code)
	return rej
}

func TestSubmitBid_AuctionNotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.SubmitBid(context.Background(), "missing", "buyer-1", 1000, 1)
	requireRejection(t, err, RejectNotFound)
}

func TestSubmitBid_NotActive(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	for _, status := range []types.AuctionStatus{types.StatusDraft, types.StatusClosed, types.StatusCancelled} {
		a := seedAuction(t, store, types.Auction{ID: "auction-" + string(status), StartingPrice: 1000, Status: status})

		_, err := engine.SubmitBid(context.Background(), a.ID, "buyer-1", 2000, 1)
		requireRejection(t, err, RejectNotActive)
	}
}

func TestSubmitBid_OutsideWindow(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	a := seedAuction(t, store, types.Auction{StartingPrice: 1000})

	// Status still says active but the deadline has passed; the window
	// check must reject before the lifecycle sweep flips the status.
	clock.Set(a.EndDate.Add(time.Second))
	_, err := engine.SubmitBid(context.Background(), a.ID, "buyer-1", 2000, 1)
	requireRejection(t, err, RejectOutsideWindow)

	// Before the window opens the same rejection applies.
	clock.Set(a.StartDate.Add(-time.Minute))
	_, err = engine.SubmitBid(context.Background(), a.ID, "buyer-1", 2000, 1)
	requireRejection(t, err, RejectOutsideWindow)

	bids, err := store.ListBids(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, bids, "rejected bids must never be persisted")
}

func TestSubmitBid_InvalidQuantity(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	a := seedAuction(t, store, types.Auction{StartingPrice: 1000, Quantity: 10})

	_, err := engine.SubmitBid(context.Background(), a.ID, "buyer-1", 2000, 11)
	requireRejection(t, err, RejectInvalidQuantity)

	_, err = engine.SubmitBid(context.Background(), a.ID, "buyer-1", 2000, 0)
	requireRejection(t, err, RejectInvalidQuantity)
}

func TestSubmitBid_TooLowReportsMinimum(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	a := seedAuction(t, store, types.Auction{StartingPrice: 1000, MinimumIncrement: 50})

	_, err := engine.SubmitBid(context.Background(), a.ID, "buyer-1", 1040, 1)
	rej := requireRejection(t, err, RejectBidTooLow)
	assert.Equal(t, 1050, rej.Minimum)
	assert.Equal(t, 1000, rej.Baseline)
	assert.Equal(t, 50, rej.Increment)
}

func TestSubmitBid_BaselineMovesToHighestBid(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	a := seedAuction(t, store, types.Auction{StartingPrice: 1000, MinimumIncrement: 50})

	_, err := engine.SubmitBid(context.Background(), a.ID, "buyer-1", 1100, 1)
	require.NoError(t, err)

	// 1100 is now the baseline, so 1149 misses the 1150 minimum.
	_, err = engine.SubmitBid(context.Background(), a.ID, "buyer-2", 1149, 1)
	rej := requireRejection(t, err, RejectBidTooLow)
	assert.Equal(t, 1150, rej.Minimum)
	assert.Equal(t, 1100, rej.Baseline)
}

func TestSubmitBid_ReserveDoesNotBlockBids(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	a := seedAuction(t, store, types.Auction{StartingPrice: 1000, ReservePrice: 2000, MinimumIncrement: 50})

	// The reserve is hidden from bidders: a bid below it is still accepted
	// and becomes the winning bid. Whether it actually wins the produce is
	// decided at settlement.
	bid, err := engine.SubmitBid(context.Background(), a.ID, "buyer-1", 1500, 1)
	require.NoError(t, err)
	assert.True(t, bid.Winning)

	got, err := store.GetAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1500, got.CurrentHighestBid)
}

func TestSubmitBid_AcceptUpdatesRunningState(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	a := seedAuction(t, store, types.Auction{StartingPrice: 1000, MinimumIncrement: 50, Quantity: 10})

	first, err := engine.SubmitBid(context.Background(), a.ID, "buyer-1", 1100, 5)
	require.NoError(t, err)
	require.True(t, first.Winning)
	require.NotEmpty(t, first.ID)

	second, err := engine.SubmitBid(context.Background(), a.ID, "buyer-2", 1200, 10)
	require.NoError(t, err)

	got, err := store.GetAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1200, got.CurrentHighestBid)
	require.NotNil(t, got.WinningBidID)
	assert.Equal(t, second.ID, *got.WinningBidID)
	require.NotNil(t, got.WinningBuyerID)
	assert.Equal(t, "buyer-2", *got.WinningBuyerID)
	assert.Equal(t, 10, got.WinningQuantity)
	assert.Equal(t, 2, got.BidCount)

	// Exactly one bid carries the winning flag and it is the latest.
	bids, err := store.ListBids(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.False(t, bids[0].Winning, "previous winner must be demoted")
	assert.True(t, bids[1].Winning)
	assert.True(t, bids[1].SubmittedAt.After(bids[0].SubmittedAt))
}

// Scenario from the marketplace playbook: starting 1000, reserve 1500,
// increment 50, quantity 10.
func TestSubmitBid_ReserveScenario(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	a := seedAuction(t, store, types.Auction{
		StartingPrice:    1000,
		ReservePrice:     1500,
		MinimumIncrement: 50,
		Quantity:         10,
	})
	ctx := context.Background()

	// Bid A: below the 1050 minimum.
	_, err := engine.SubmitBid(ctx, a.ID, "buyer-a", 1040, 1)
	rej := requireRejection(t, err, RejectBidTooLow)
	assert.Equal(t, 1050, rej.Minimum)

	// Bid B: clears the increment; the hidden reserve does not block it.
	_, err = engine.SubmitBid(ctx, a.ID, "buyer-b", 1100, 5)
	require.NoError(t, err)

	// Bid C outbids B but still sits under the reserve.
	bid, err := engine.SubmitBid(ctx, a.ID, "buyer-c", 1200, 10)
	require.NoError(t, err)
	assert.True(t, bid.Winning)

	got, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1200, got.CurrentHighestBid)
	// Settlement below the reserve yields no winner; see the lifecycle tests.
}

func TestSubmitBid_NearSimultaneousArrivals(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	a := seedAuction(t, store, types.Auction{StartingPrice: 1000, MinimumIncrement: 50})
	ctx := context.Background()

	// Baseline 1100 after the opening bid.
	_, err := engine.SubmitBid(ctx, a.ID, "buyer-0", 1100, 1)
	require.NoError(t, err)

	// 1150 arrives fractionally earlier, 1200 re-evaluates against the new
	// 1150 baseline and still clears the 1200 minimum.
	_, err = engine.SubmitBid(ctx, a.ID, "buyer-1", 1150, 1)
	require.NoError(t, err)
	_, err = engine.SubmitBid(ctx, a.ID, "buyer-2", 1200, 1)
	require.NoError(t, err)

	bids, err := store.ListBids(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.False(t, bids[1].Winning)
	assert.True(t, bids[2].Winning)
	assert.Equal(t, 1200, bids[2].Amount)
}

func TestSubmitBid_ObserversSeeCommittedState(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	a := seedAuction(t, store, types.Auction{StartingPrice: 1000, MinimumIncrement: 50})

	var observed []types.Bid
	engine.Observe(func(a types.Auction, b types.Bid) {
		assert.Equal(t, b.Amount, a.CurrentHighestBid)
		observed = append(observed, b)
	})

	_, err := engine.SubmitBid(context.Background(), a.ID, "buyer-1", 1100, 1)
	require.NoError(t, err)
	_, err = engine.SubmitBid(context.Background(), a.ID, "buyer-1", 1040, 1)
	requireRejection(t, err, RejectBidTooLow)

	require.Len(t, observed, 1, "observers fire only for accepted bids")
}

func TestSubmitBid_ConcurrentBidsKeepInvariants(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	a := seedAuction(t, store, types.Auction{StartingPrice: 1000, MinimumIncrement: 50, Quantity: 10})
	ctx := context.Background()

	const bidders = 32
	var wg sync.WaitGroup
	accepted := make([]bool, bidders)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.SubmitBid(ctx, a.ID, "buyer", 1050+50*i, 1)
			if err == nil {
				accepted[i] = true
				return
			}
			var rej *Rejection
			if !errors.As(err, &rej) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	bids, err := store.ListBids(ctx, a.ID)
	require.NoError(t, err)
	require.NotEmpty(t, bids)

	// History amounts are strictly increasing by at least the increment in
	// arrival order, whatever the interleaving was.
	winners := 0
	maxAmount := 0
	prev := a.StartingPrice
	for _, b := range bids {
		assert.GreaterOrEqual(t, b.Amount, prev+50)
		prev = b.Amount
		if b.Winning {
			winners++
		}
		if b.Amount > maxAmount {
			maxAmount = b.Amount
		}
	}
	assert.Equal(t, 1, winners)
	assert.True(t, bids[len(bids)-1].Winning, "winner is the most recently accepted bid")

	got, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, maxAmount, got.CurrentHighestBid)

	// The top amount can always be accepted, no matter the arrival order.
	topAccepted := accepted[bidders-1]
	assert.True(t, topAccepted, "highest bid must always be acceptable")
}

func TestSubmitBid_NoLateAcceptanceRace(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	a := seedAuction(t, store, types.Auction{StartingPrice: 1000, MinimumIncrement: 50})
	ctx := context.Background()

	// In-flight bids that reach arbitration after the deadline are
	// rejected even though the status field still reads active.
	var wg sync.WaitGroup
	clock.Set(a.EndDate.Add(time.Millisecond))
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.SubmitBid(ctx, a.ID, "buyer", 1050+50*i, 1)
			requireRejection(t, err, RejectOutsideWindow)
		}(i)
	}
	wg.Wait()

	bids, err := store.ListBids(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, bids)
}

func TestArbitrate_PreconditionOrder(t *testing.T) {
	now := testStart.Add(time.Hour)
	a := &types.Auction{
		Status:           types.StatusClosed,
		StartingPrice:    1000,
		ReservePrice:     2000,
		MinimumIncrement: 50,
		Quantity:         10,
		StartDate:        testStart,
		EndDate:          testStart.Add(30 * time.Minute), // window also expired
	}

	// Status wins over window, window over quantity, quantity over amount.
	assert.Equal(t, RejectNotActive, Arbitrate(a, now, 0, 0).Code)
	a.Status = types.StatusActive
	assert.Equal(t, RejectOutsideWindow, Arbitrate(a, now, 0, 0).Code)
	a.EndDate = testStart.Add(24 * time.Hour)
	assert.Equal(t, RejectInvalidQuantity, Arbitrate(a, now, 0, 0).Code)
	assert.Equal(t, RejectBidTooLow, Arbitrate(a, now, 1049, 1).Code)
	// The reserve never rejects a bid; 1100 clears the increment and passes.
	assert.Nil(t, Arbitrate(a, now, 1100, 1))
	assert.Nil(t, Arbitrate(a, now, 2000, 1))
}
