package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/babulele/AgroMarketHub-sub000/internal/auction"
	apperrors "github.com/babulele/AgroMarketHub-sub000/pkg/errors"
	"github.com/charmbracelet/log"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	// Rejection is set when a bid fails arbitration so clients can branch
	// on the code and correct the bid without re-fetching the auction.
	Rejection *auction.Rejection `json:"rejection,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// writeDomainError maps core errors onto HTTP responses. Everything the
// caller can act on gets a 4xx with detail; only unexpected failures fall
// through to 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var rej *auction.Rejection
	if errors.As(err, &rej) {
		status := http.StatusBadRequest
		switch {
		case rej.Code == auction.RejectNotFound:
			status = http.StatusNotFound
		case rej.Retryable():
			// The bid itself was fine; the client should simply resubmit.
			status = http.StatusConflict
		}
		writeJSON(w, status, envelope{Success: false, Message: rej.Error(), Rejection: rej})
		return
	}

	switch {
	case errors.Is(err, auction.ErrNotFound):
		writeError(w, http.StatusNotFound, "Auction not found")
		return
	case errors.Is(err, auction.ErrNotOwner):
		writeError(w, http.StatusForbidden, "You can only manage your own auctions")
		return
	case errors.Is(err, auction.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Auction status does not allow this action")
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.ErrValidation, apperrors.ErrInventory:
			writeError(w, http.StatusBadRequest, appErr.Message)
			return
		case http.StatusUnauthorized:
			writeError(w, http.StatusUnauthorized, appErr.Message)
			return
		}
	}

	log.Errorf("Unhandled error in request: %v", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
