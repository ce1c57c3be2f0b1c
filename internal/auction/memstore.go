package auction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"github.com/google/uuid"
)

// MemStore is an in-memory Store. The serialization point is a mutex per
// auction record held from Begin to Commit/Rollback, so bids on different
// auctions never block each other and a Tx on one auction can never observe
// a torn write. Used by tests and single-node deployments.
type MemStore struct {
	mu       sync.RWMutex // guards the map itself
	auctions map[string]*memRecord
	clock    Clock
}

type memRecord struct {
	mu      sync.Mutex // per-auction serialization point
	auction types.Auction
	bids    []types.Bid
}

func NewMemStore(clock Clock) *MemStore {
	if clock == nil {
		clock = SystemClock
	}
	return &MemStore{auctions: make(map[string]*memRecord), clock: clock}
}

func (s *MemStore) CreateAuction(_ context.Context, a types.Auction) (types.Auction, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = &memRecord{auction: a}
	return a, nil
}

func (s *MemStore) record(id string) (*memRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.auctions[id]
	return rec, ok
}

func (s *MemStore) GetAuction(_ context.Context, id string) (types.Auction, error) {
	rec, ok := s.record(id)
	if !ok {
		return types.Auction{}, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.auction, nil
}

func (s *MemStore) ListAuctions(_ context.Context, f Filter) ([]types.Auction, error) {
	s.mu.RLock()
	records := make([]*memRecord, 0, len(s.auctions))
	for _, rec := range s.auctions {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	var out []types.Auction
	for _, rec := range records {
		rec.mu.Lock()
		a := rec.auction
		rec.mu.Unlock()
		if matches(a, f) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Page, f.PerPage), nil
}

func matches(a types.Auction, f Filter) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.County != "" && a.County != f.County {
		return false
	}
	if f.FarmerID != "" && a.FarmerID != f.FarmerID {
		return false
	}
	if len(f.ProductIDs) > 0 {
		found := false
		for _, id := range f.ProductIDs {
			if a.ProductID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func paginate(auctions []types.Auction, page, perPage int) []types.Auction {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(auctions) {
		return nil
	}
	end := start + perPage
	if end > len(auctions) {
		end = len(auctions)
	}
	return auctions[start:end]
}

func (s *MemStore) ListBids(_ context.Context, auctionID string) ([]types.Bid, error) {
	rec, ok := s.record(auctionID)
	if !ok {
		return nil, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]types.Bid, len(rec.bids))
	copy(out, rec.bids)
	return out, nil
}

func (s *MemStore) ListBidsByBuyer(_ context.Context, buyerID string) ([]types.Bid, error) {
	s.mu.RLock()
	records := make([]*memRecord, 0, len(s.auctions))
	for _, rec := range s.auctions {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	var out []types.Bid
	for _, rec := range records {
		rec.mu.Lock()
		for _, b := range rec.bids {
			if b.BuyerID == buyerID {
				out = append(out, b)
			}
		}
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (s *MemStore) Begin(_ context.Context, auctionID string) (Tx, error) {
	rec, ok := s.record(auctionID)
	if !ok {
		return nil, ErrNotFound
	}
	rec.mu.Lock()
	snapshot := rec.auction
	return &memTx{store: s, rec: rec, snapshot: snapshot}, nil
}

func (s *MemStore) TransitionStatus(_ context.Context, id string, from, to types.AuctionStatus) (types.Auction, bool, error) {
	rec, ok := s.record(id)
	if !ok {
		return types.Auction{}, false, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.auction.Status != from {
		return rec.auction, false, nil
	}
	rec.auction.Status = to
	rec.auction.Version++
	rec.auction.UpdatedAt = s.clock.Now()
	return rec.auction, true, nil
}

func (s *MemStore) ListDue(_ context.Context, now time.Time) ([]types.Auction, error) {
	s.mu.RLock()
	records := make([]*memRecord, 0, len(s.auctions))
	for _, rec := range s.auctions {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	var due []types.Auction
	for _, rec := range records {
		rec.mu.Lock()
		a := rec.auction
		rec.mu.Unlock()
		switch {
		case a.Status == types.StatusDraft && !a.StartDate.After(now):
			due = append(due, a)
		case a.Status == types.StatusActive && now.After(a.EndDate):
			due = append(due, a)
		}
	}
	return due, nil
}

type memTx struct {
	store    *MemStore
	rec      *memRecord
	snapshot types.Auction
	pending  *types.Bid
	done     bool
}

func (tx *memTx) Auction() *types.Auction {
	return &tx.snapshot
}

func (tx *memTx) Accept(_ context.Context, bid types.Bid) (types.Bid, error) {
	bid.ID = uuid.NewString()
	bid.Winning = true
	bid.SubmittedAt = tx.store.clock.Now()
	// Submission timestamps stay strictly monotonic per auction even when
	// the clock resolution cannot tell two arrivals apart.
	if n := len(tx.rec.bids); n > 0 {
		if last := tx.rec.bids[n-1].SubmittedAt; !bid.SubmittedAt.After(last) {
			bid.SubmittedAt = last.Add(time.Nanosecond)
		}
	}
	tx.pending = &bid
	return bid, nil
}

func (tx *memTx) Commit(_ context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	defer tx.rec.mu.Unlock()

	if tx.pending != nil {
		for i := range tx.rec.bids {
			tx.rec.bids[i].Winning = false
		}
		tx.rec.bids = append(tx.rec.bids, *tx.pending)

		a := &tx.rec.auction
		a.CurrentHighestBid = tx.pending.Amount
		a.WinningBidID = &tx.pending.ID
		a.WinningBuyerID = &tx.pending.BuyerID
		a.WinningQuantity = tx.pending.Quantity
		a.BidCount++
		a.Version++
		a.UpdatedAt = tx.pending.SubmittedAt
	}
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.pending = nil
	tx.rec.mu.Unlock()
	return nil
}
