package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/babulele/AgroMarketHub-sub000/internal/auction"
	"github.com/babulele/AgroMarketHub-sub000/internal/auth"
	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
)

func (h *Handler) handleCreateAuction(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var terms auction.Terms
	if err := json.NewDecoder(r.Body).Decode(&terms); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.manager.CreateAuction(r.Context(), sess.UserID, terms)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "Auction created successfully", map[string]any{"auction": created})
}

func (h *Handler) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := auction.Filter{
		County:  q.Get("county"),
		Page:    atoiDefault(q.Get("page"), 1),
		PerPage: atoiDefault(q.Get("limit"), 20),
	}
	if status := q.Get("status"); status != "" {
		f.Status = types.AuctionStatus(status)
	} else {
		// Marketplace browsing defaults to live auctions.
		f.Status = types.StatusActive
	}

	if category := q.Get("category"); category != "" {
		if h.catalog == nil {
			writeError(w, http.StatusBadRequest, "Category filtering is not available")
			return
		}
		ids, err := h.catalog.ProductIDsByCategory(r.Context(), category)
		if err != nil {
			log.Errorf("Failed to resolve category %q: %v", category, err)
			writeError(w, http.StatusBadGateway, "Failed to resolve product category")
			return
		}
		if len(ids) == 0 {
			writeData(w, http.StatusOK, "", map[string]any{"auctions": []types.Auction{}})
			return
		}
		f.ProductIDs = ids
	}

	auctions, err := h.store.ListAuctions(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"auctions": auctions})
}

func (h *Handler) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// Observe reconciles the status with the clock before the client sees
	// it, so an expired auction never shows as active.
	a, err := h.manager.Observe(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	bids, err := h.store.ListBids(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"auction": a, "bids": bids})
}

type bidRequest struct {
	Amount   int `json:"amount"`
	Quantity int `json:"quantity"`
}

func (h *Handler) handleSubmitBid(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	id := mux.Vars(r)["id"]

	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Amount <= 0 || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "amount and quantity must be positive")
		return
	}

	// Lazily open drafts whose window started; the engine still re-checks
	// status and window under the serialization point.
	if _, err := h.manager.Observe(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	bid, err := h.engine.SubmitBid(r.Context(), id, sess.UserID, req.Amount, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "Bid placed successfully", map[string]any{"bid": bid})
}

func (h *Handler) handleCloseAuction(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	a, err := h.manager.Close(r.Context(), mux.Vars(r)["id"], sess.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, "Auction closed successfully", map[string]any{"auction": a})
}

func (h *Handler) handleCancelAuction(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	a, err := h.manager.Cancel(r.Context(), mux.Vars(r)["id"], sess.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, "Auction cancelled", map[string]any{"auction": a})
}

func (h *Handler) handleFarmerAuctions(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	f := auction.Filter{
		FarmerID: sess.UserID,
		Page:     atoiDefault(r.URL.Query().Get("page"), 1),
		PerPage:  atoiDefault(r.URL.Query().Get("limit"), 20),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		f.Status = types.AuctionStatus(status)
	}
	auctions, err := h.store.ListAuctions(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"auctions": auctions})
}

func (h *Handler) handleBuyerBids(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	bids, err := h.store.ListBidsByBuyer(r.Context(), sess.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"bids": bids})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
