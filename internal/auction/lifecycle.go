package auction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/babulele/AgroMarketHub-sub000/pkg/errors"
	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// DefaultMinimumIncrement is applied when the farmer does not set one
// (KES 50, matching marketplace policy).
const DefaultMinimumIncrement = 50

// ErrNotOwner is returned when someone other than the auction's farmer
// attempts to close or cancel it. No state is mutated.
var ErrNotOwner = errors.New("requester does not own this auction")

// ErrInvalidTransition is returned for transitions the state machine does
// not allow, e.g. cancelling an already closed auction.
var ErrInvalidTransition = errors.New("invalid auction status transition")

// Terms are the farmer-supplied listing terms for a new auction.
type Terms struct {
	ProductID        string    `json:"productId"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	StartingPrice    int       `json:"startingPrice"`
	ReservePrice     int       `json:"reservePrice"`
	Quantity         int       `json:"quantity"`
	Unit             string    `json:"unit"`
	MinimumIncrement int       `json:"minimumBidIncrement"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	County           string    `json:"county"`
	SubCounty        string    `json:"subCounty"`
}

// Manager is the single lifecycle authority: it owns every status
// transition so bidding, listing and settlement all observe the same
// time-window logic instead of re-deriving it.
type Manager struct {
	store     Store
	clock     Clock
	inventory Inventory
	notifier  Notifier
}

func NewManager(store Store, clock Clock, inventory Inventory, notifier Notifier) *Manager {
	if clock == nil {
		clock = SystemClock
	}
	if notifier == nil {
		notifier = LogNotifier()
	}
	return &Manager{store: store, clock: clock, inventory: inventory, notifier: notifier}
}

// CreateAuction validates the terms, confirms the product has enough
// inventory and persists the auction. If the window has already opened the
// auction goes live immediately instead of passing through draft.
func (m *Manager) CreateAuction(ctx context.Context, farmerID string, t Terms) (types.Auction, error) {
	now := m.clock.Now()
	if err := validateTerms(t, now); err != nil {
		return types.Auction{}, err
	}

	available, err := m.inventory.Available(ctx, t.ProductID)
	if err != nil {
		return types.Auction{}, fmt.Errorf("checking inventory for product %s: %w", t.ProductID, err)
	}
	if t.Quantity > available {
		return types.Auction{}, apperrors.New(apperrors.ErrInventory,
			fmt.Sprintf("insufficient inventory: %d available, %d requested", available, t.Quantity))
	}

	increment := t.MinimumIncrement
	if increment == 0 {
		increment = DefaultMinimumIncrement
	}
	unit := t.Unit
	if unit == "" {
		unit = "kg"
	}
	status := types.StatusDraft
	if !t.StartDate.After(now) {
		status = types.StatusActive
	}

	a := types.Auction{
		ID:               uuid.NewString(),
		FarmerID:         farmerID,
		ProductID:        t.ProductID,
		Title:            strings.TrimSpace(t.Title),
		Description:      strings.TrimSpace(t.Description),
		StartingPrice:    t.StartingPrice,
		ReservePrice:     t.ReservePrice,
		MinimumIncrement: increment,
		Quantity:         t.Quantity,
		Unit:             unit,
		StartDate:        t.StartDate,
		EndDate:          t.EndDate,
		Status:           status,
		County:           t.County,
		SubCounty:        t.SubCounty,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := m.store.CreateAuction(ctx, a)
	if err != nil {
		return types.Auction{}, fmt.Errorf("creating auction: %w", err)
	}
	log.Infof("Auction %s created by farmer %s (%s, qty %d %s)", created.ID, farmerID, created.Status, created.Quantity, created.Unit)
	return created, nil
}

func validateTerms(t Terms, now time.Time) error {
	switch {
	case t.ProductID == "":
		return apperrors.New(apperrors.ErrValidation, "productId is required")
	case strings.TrimSpace(t.Title) == "":
		return apperrors.New(apperrors.ErrValidation, "title is required")
	case t.StartingPrice < 0:
		return apperrors.New(apperrors.ErrValidation, "starting price cannot be negative")
	case t.Quantity < 1:
		return apperrors.New(apperrors.ErrValidation, "quantity must be at least 1")
	case t.MinimumIncrement < 0:
		return apperrors.New(apperrors.ErrValidation, "minimum bid increment cannot be negative")
	case t.ReservePrice != 0 && t.ReservePrice < t.StartingPrice:
		return apperrors.New(apperrors.ErrValidation, "reserve price cannot be below starting price")
	case t.StartDate.IsZero() || t.EndDate.IsZero():
		return apperrors.New(apperrors.ErrValidation, "startDate and endDate are required")
	case !t.EndDate.After(t.StartDate):
		return apperrors.New(apperrors.ErrValidation, "endDate must be after startDate")
	case !t.EndDate.After(now):
		return apperrors.New(apperrors.ErrValidation, "endDate must be in the future")
	case t.County == "":
		return apperrors.New(apperrors.ErrValidation, "county is required")
	}
	return nil
}

// Observe lazily reconciles one auction's status with the clock: a draft
// whose start date has passed opens, an active auction whose end date has
// passed closes and settles. Calling it repeatedly at the same instant is a
// no-op after the first transition.
func (m *Manager) Observe(ctx context.Context, id string) (types.Auction, error) {
	a, err := m.store.GetAuction(ctx, id)
	if err != nil {
		return types.Auction{}, err
	}
	return m.reconcile(ctx, a)
}

func (m *Manager) reconcile(ctx context.Context, a types.Auction) (types.Auction, error) {
	if a.Status.Terminal() {
		return a, nil
	}
	now := m.clock.Now()

	if a.Status == types.StatusDraft && !a.StartDate.After(now) {
		updated, swapped, err := m.store.TransitionStatus(ctx, a.ID, types.StatusDraft, types.StatusActive)
		if err != nil {
			return types.Auction{}, fmt.Errorf("opening auction %s: %w", a.ID, err)
		}
		if swapped {
			log.Infof("Auction %s opened", a.ID)
		}
		a = updated
	}

	if a.Status == types.StatusActive && now.After(a.EndDate) {
		updated, swapped, err := m.store.TransitionStatus(ctx, a.ID, types.StatusActive, types.StatusClosed)
		if err != nil {
			return types.Auction{}, fmt.Errorf("closing auction %s: %w", a.ID, err)
		}
		a = updated
		// Only the observer that performed the transition settles; a
		// concurrent observation sees swapped == false and stays quiet.
		if swapped {
			m.settle(ctx, a, now)
		}
	}

	return a, nil
}

// Close is the farmer's manual override: it closes an active auction
// immediately, regardless of the end date. Non-owners get ErrNotOwner with
// no state change.
func (m *Manager) Close(ctx context.Context, id, requesterID string) (types.Auction, error) {
	a, err := m.store.GetAuction(ctx, id)
	if err != nil {
		return types.Auction{}, err
	}
	if a.FarmerID != requesterID {
		log.Warnf("User %s attempted to close auction %s owned by %s", requesterID, id, a.FarmerID)
		return types.Auction{}, ErrNotOwner
	}
	switch a.Status {
	case types.StatusClosed:
		return a, nil
	case types.StatusCancelled, types.StatusDraft:
		return types.Auction{}, ErrInvalidTransition
	}

	now := m.clock.Now()
	updated, swapped, err := m.store.TransitionStatus(ctx, id, types.StatusActive, types.StatusClosed)
	if err != nil {
		return types.Auction{}, fmt.Errorf("closing auction %s: %w", id, err)
	}
	if swapped {
		log.Infof("Auction %s closed by farmer %s", id, requesterID)
		m.settle(ctx, updated, now)
	}
	return updated, nil
}

// Cancel withdraws a draft or active auction. Recorded bids remain in
// history but none is winning-eligible; no settlement is emitted.
func (m *Manager) Cancel(ctx context.Context, id, requesterID string) (types.Auction, error) {
	a, err := m.store.GetAuction(ctx, id)
	if err != nil {
		return types.Auction{}, err
	}
	if a.FarmerID != requesterID {
		log.Warnf("User %s attempted to cancel auction %s owned by %s", requesterID, id, a.FarmerID)
		return types.Auction{}, ErrNotOwner
	}
	switch a.Status {
	case types.StatusCancelled:
		return a, nil
	case types.StatusClosed:
		return types.Auction{}, ErrInvalidTransition
	}

	updated, swapped, err := m.store.TransitionStatus(ctx, id, a.Status, types.StatusCancelled)
	if err != nil {
		return types.Auction{}, fmt.Errorf("cancelling auction %s: %w", id, err)
	}
	if !swapped {
		// Lost a race with the sweep or another request; report the state
		// the auction actually ended up in.
		if updated.Status == types.StatusCancelled {
			return updated, nil
		}
		return types.Auction{}, ErrInvalidTransition
	}
	log.Infof("Auction %s cancelled by farmer %s", id, requesterID)
	return updated, nil
}

func (m *Manager) settle(ctx context.Context, a types.Auction, closedAt time.Time) {
	rec := BuildSettlement(a, closedAt)
	if err := m.notifier.Settle(ctx, rec); err != nil {
		// The transition already committed; delivery is at-least-once and
		// the broker path has its own retries, so log and move on.
		log.Errorf("Failed to emit settlement for auction %s: %v", a.ID, err)
	}
}

// Sweep reconciles every auction whose status lags the clock. It is safe to
// run from multiple processes; the conditional transitions keep it
// idempotent.
func (m *Manager) Sweep(ctx context.Context) error {
	due, err := m.store.ListDue(ctx, m.clock.Now())
	if err != nil {
		return fmt.Errorf("listing due auctions: %w", err)
	}
	for _, a := range due {
		if _, err := m.reconcile(ctx, a); err != nil {
			log.Errorf("Sweep failed for auction %s: %v", a.ID, err)
		}
	}
	return nil
}

// Run sweeps on a fixed interval until the context is cancelled. Precision
// is not required: the engine re-checks the bidding window on every bid, so
// a late sweep can never let a late bid through.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Infof("Auction lifecycle sweep running every %s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Info("Auction lifecycle sweep stopped")
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				log.Errorf("Lifecycle sweep failed: %v", err)
			}
		}
	}
}
