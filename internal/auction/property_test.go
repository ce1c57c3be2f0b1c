package auction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"pgregory.net/rapid"
)

// submitAll runs a sequence of bid amounts through a fresh engine and
// returns the amounts that were accepted, in acceptance order.
func submitAll(t *rapid.T, amounts []int) []int {
	clock := newFakeClock(testStart.Add(time.Hour))
	store := NewMemStore(clock)
	engine := NewEngine(store, clock)

	a, err := store.CreateAuction(context.Background(), types.Auction{
		ID:               "auction-prop",
		FarmerID:         "farmer-1",
		Status:           types.StatusActive,
		StartingPrice:    1000,
		MinimumIncrement: 50,
		Quantity:         10,
		Unit:             "kg",
		StartDate:        testStart,
		EndDate:          testStart.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seeding auction: %v", err)
	}

	var accepted []int
	for i, amount := range amounts {
		_, err := engine.SubmitBid(context.Background(), a.ID, "buyer", amount, 1)
		if err == nil {
			accepted = append(accepted, amount)
			continue
		}
		var rej *Rejection
		if !errors.As(err, &rej) {
			t.Fatalf("bid %d (KES %d): unexpected error %v", i, amount, err)
		}
		if rej.Code != RejectBidTooLow {
			t.Fatalf("bid %d (KES %d): unexpected rejection %s", i, amount, rej.Code)
		}
	}
	return accepted
}

func TestSubmitBid_AcceptedLadderProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amounts := rapid.SliceOfN(rapid.IntRange(0, 5000), 1, 40).Draw(t, "amounts")
		accepted := submitAll(t, amounts)

		// Whatever the arrival order, accepted amounts climb by at least the
		// increment from the starting price.
		prev := 1000 - 50
		for i, amount := range accepted {
			if amount < prev+50 {
				t.Fatalf("accepted[%d] = %d breaks the ladder (previous %d, increment 50)", i, amount, prev)
			}
			prev = amount
		}

		// If any bid clears the opening minimum, bidding ends within one
		// increment of the overall maximum: the maximum itself is only ever
		// rejected against a baseline less than 50 below it.
		max := 0
		for _, amount := range amounts {
			if amount > max {
				max = amount
			}
		}
		if max >= 1050 {
			if len(accepted) == 0 {
				t.Fatalf("bid of %d cleared the opening minimum yet nothing was accepted", max)
			}
			final := accepted[len(accepted)-1]
			if final > max || final < max-49 {
				t.Fatalf("final winning amount %d not within one increment of maximum %d", final, max)
			}
		} else if len(accepted) != 0 {
			t.Fatalf("no bid cleared the minimum yet %v were accepted", accepted)
		}
	})
}

func TestSubmitBid_SameArrivalOrderIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amounts := rapid.SliceOfN(rapid.IntRange(900, 3000), 1, 30).Draw(t, "amounts")

		first := submitAll(t, amounts)
		second := submitAll(t, amounts)

		if len(first) != len(second) {
			t.Fatalf("same arrival order accepted %v then %v", first, second)
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("same arrival order accepted %v then %v", first, second)
			}
		}
	})
}
