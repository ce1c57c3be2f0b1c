package rest

import (
	"context"
	"net/http"

	"github.com/babulele/AgroMarketHub-sub000/internal/auction"
	"github.com/babulele/AgroMarketHub-sub000/internal/auth"
	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
)

// Authenticator validates the request's session and returns the caller's
// identity. Satisfied by auth.Validator; tests swap in a stub.
type Authenticator interface {
	FromCookie(r *http.Request) (auth.Session, error)
}

// CategoryResolver turns a product-category filter into product ids. The
// catalog client implements it; nil disables category filtering.
type CategoryResolver interface {
	ProductIDsByCategory(ctx context.Context, category string) ([]string, error)
}

// HealthReporter exposes storage health for the /health endpoint.
type HealthReporter interface {
	Health() map[string]string
}

// Handler serves the auction JSON API.
type Handler struct {
	engine   *auction.Engine
	manager  *auction.Manager
	store    auction.Store
	auth     Authenticator
	catalog  CategoryResolver
	health   HealthReporter
}

func NewHandler(engine *auction.Engine, manager *auction.Manager, store auction.Store, authn Authenticator) *Handler {
	return &Handler{engine: engine, manager: manager, store: store, auth: authn}
}

// WithCatalog enables category filtering on the auction list.
func (h *Handler) WithCatalog(c CategoryResolver) *Handler {
	h.catalog = c
	return h
}

// WithHealth wires the /health endpoint to a storage health reporter.
func (h *Handler) WithHealth(r HealthReporter) *Handler {
	h.health = r
	return h
}

// Router builds the API routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auctions", h.requireRole(roleFarmer, h.handleCreateAuction)).Methods(http.MethodPost)
	api.HandleFunc("/auctions", h.handleListAuctions).Methods(http.MethodGet)
	api.HandleFunc("/auctions/mine", h.requireRole(roleFarmer, h.handleFarmerAuctions)).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id}", h.handleGetAuction).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id}/bids", h.requireRole(roleBuyer, h.handleSubmitBid)).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id}/close", h.requireRole(roleFarmer, h.handleCloseAuction)).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id}/cancel", h.requireRole(roleFarmer, h.handleCancelAuction)).Methods(http.MethodPost)
	api.HandleFunc("/bids/mine", h.requireRole(roleBuyer, h.handleBuyerBids)).Methods(http.MethodGet)
	return r
}

const (
	roleFarmer = "farmer"
	roleBuyer  = "buyer"
)

type authedHandler func(w http.ResponseWriter, r *http.Request, sess auth.Session)

// requireRole authenticates the request and checks the caller's role before
// dispatching.
func (h *Handler) requireRole(role string, next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.auth.FromCookie(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if sess.Role != role {
			log.Warnf("User %s (%s) denied access to %s %s", sess.UserID, sess.Role, r.Method, r.URL.Path)
			writeError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
		next(w, r, sess)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
		return
	}
	stats := h.health.Health()
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, stats)
}
