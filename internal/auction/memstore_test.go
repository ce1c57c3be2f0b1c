package auction

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_ListAuctionsFilters(t *testing.T) {
	clock := newFakeClock(testStart)
	store := NewMemStore(clock)
	ctx := context.Background()

	seed := []types.Auction{
		{ID: "a1", FarmerID: "farmer-1", ProductID: "maize", Status: types.StatusActive, County: "Nakuru"},
		{ID: "a2", FarmerID: "farmer-1", ProductID: "beans", Status: types.StatusActive, County: "Kiambu"},
		{ID: "a3", FarmerID: "farmer-2", ProductID: "maize", Status: types.StatusClosed, County: "Nakuru"},
		{ID: "a4", FarmerID: "farmer-2", ProductID: "avocado", Status: types.StatusDraft, County: "Murang'a"},
	}
	for i, a := range seed {
		a.StartDate = testStart
		a.EndDate = testStart.Add(24 * time.Hour)
		a.CreatedAt = testStart.Add(time.Duration(i) * time.Minute)
		_, err := store.CreateAuction(ctx, a)
		require.NoError(t, err)
	}

	ids := func(auctions []types.Auction) []string {
		out := make([]string, len(auctions))
		for i, a := range auctions {
			out[i] = a.ID
		}
		return out
	}

	got, err := store.ListAuctions(ctx, Filter{Status: types.StatusActive})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids(got))

	got, err = store.ListAuctions(ctx, Filter{County: "Nakuru"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a3"}, ids(got))

	got, err = store.ListAuctions(ctx, Filter{ProductIDs: []string{"maize", "beans"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2", "a3"}, ids(got))

	got, err = store.ListAuctions(ctx, Filter{FarmerID: "farmer-2"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a3", "a4"}, ids(got))

	got, err = store.ListAuctions(ctx, Filter{Status: types.StatusActive, County: "Kiambu"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, ids(got))

	// Newest listings come first.
	got, err = store.ListAuctions(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a4", "a3", "a2", "a1"}, ids(got))
}

func TestMemStore_ListAuctionsPagination(t *testing.T) {
	clock := newFakeClock(testStart)
	store := NewMemStore(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.CreateAuction(ctx, types.Auction{
			ID:        fmt.Sprintf("a%d", i),
			Status:    types.StatusActive,
			CreatedAt: testStart.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	page1, err := store.ListAuctions(ctx, Filter{Page: 1, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "a4", page1[0].ID)

	page3, err := store.ListAuctions(ctx, Filter{Page: 3, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "a0", page3[0].ID)

	empty, err := store.ListAuctions(ctx, Filter{Page: 4, PerPage: 2})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemStore_TransitionStatusConditional(t *testing.T) {
	clock := newFakeClock(testStart)
	store := NewMemStore(clock)
	ctx := context.Background()

	a, err := store.CreateAuction(ctx, types.Auction{ID: "a1", Status: types.StatusActive})
	require.NoError(t, err)

	updated, swapped, err := store.TransitionStatus(ctx, a.ID, types.StatusActive, types.StatusClosed)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, types.StatusClosed, updated.Status)

	// The same transition a second time reports the swap was lost.
	updated, swapped, err = store.TransitionStatus(ctx, a.ID, types.StatusActive, types.StatusClosed)
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.Equal(t, types.StatusClosed, updated.Status)

	_, _, err = store.TransitionStatus(ctx, "missing", types.StatusActive, types.StatusClosed)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_RollbackDiscardsPendingBid(t *testing.T) {
	clock := newFakeClock(testStart)
	store := NewMemStore(clock)
	ctx := context.Background()

	a, err := store.CreateAuction(ctx, types.Auction{ID: "a1", Status: types.StatusActive})
	require.NoError(t, err)

	tx, err := store.Begin(ctx, a.ID)
	require.NoError(t, err)
	_, err = tx.Accept(ctx, types.Bid{AuctionID: a.ID, BuyerID: "buyer-1", Amount: 1100, Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	bids, err := store.ListBids(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, bids)

	got, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CurrentHighestBid)
	assert.Zero(t, got.BidCount)
}

func TestMemStore_MonotonicSubmissionTimestamps(t *testing.T) {
	// A frozen clock cannot tell arrivals apart; the store still assigns
	// strictly increasing timestamps within one auction.
	clock := newFakeClock(testStart)
	store := NewMemStore(clock)
	ctx := context.Background()

	a, err := store.CreateAuction(ctx, types.Auction{ID: "a1", Status: types.StatusActive})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		tx, err := store.Begin(ctx, a.ID)
		require.NoError(t, err)
		_, err = tx.Accept(ctx, types.Bid{AuctionID: a.ID, BuyerID: "buyer-1", Amount: 1000 + i, Quantity: 1})
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))
	}

	bids, err := store.ListBids(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.True(t, bids[1].SubmittedAt.After(bids[0].SubmittedAt))
	assert.True(t, bids[2].SubmittedAt.After(bids[1].SubmittedAt))
}

func TestMemStore_ListBidsByBuyer(t *testing.T) {
	clock := newFakeClock(testStart)
	store := NewMemStore(clock)
	engine := NewEngine(store, clock)
	ctx := context.Background()

	clock.Set(testStart.Add(time.Hour))
	for _, id := range []string{"a1", "a2"} {
		seedAuction(t, store, types.Auction{ID: id, StartingPrice: 1000})
	}

	_, err := engine.SubmitBid(ctx, "a1", "buyer-1", 1100, 1)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = engine.SubmitBid(ctx, "a2", "buyer-1", 1050, 1)
	require.NoError(t, err)
	_, err = engine.SubmitBid(ctx, "a1", "buyer-2", 1200, 1)
	require.NoError(t, err)

	mine, err := store.ListBidsByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	// Most recent first.
	assert.Equal(t, "a2", mine[0].AuctionID)
	assert.Equal(t, "a1", mine[1].AuctionID)
}
